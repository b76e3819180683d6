package content

import (
	"errors"
	"fmt"
)

// validate performs all structural checks on a dataset.
// Returns a combined error describing all problems found, or nil if valid.
func validate(reading []ReadingSet, listening []ListeningSet, speaking []SpeakingTask, writing []WritingTask) error {
	var errs []error

	seen := make(map[string]bool, len(reading))
	for _, s := range reading {
		if s.ID == "" {
			errs = append(errs, errors.New("reading set with empty id"))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate reading set id %q", s.ID))
		}
		seen[s.ID] = true

		if len(s.Questions) == 0 {
			errs = append(errs, fmt.Errorf("reading set %q has no questions", s.ID))
		}
		qids := make(map[string]bool, len(s.Questions))
		for _, q := range s.Questions {
			if q.ID == "" {
				errs = append(errs, fmt.Errorf("reading set %q: question with empty id", s.ID))
			} else if qids[q.ID] {
				errs = append(errs, fmt.Errorf("reading set %q: duplicate question id %q", s.ID, q.ID))
			}
			qids[q.ID] = true
			if len(q.Options) < 2 {
				errs = append(errs, fmt.Errorf("reading question %q needs at least two options", q.ID))
			}
			if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
				errs = append(errs, fmt.Errorf("reading question %q: correct_index %d out of range", q.ID, q.CorrectIndex))
			}
		}
	}

	seen = make(map[string]bool, len(listening))
	for _, s := range listening {
		if s.ID == "" {
			errs = append(errs, errors.New("listening set with empty id"))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate listening set id %q", s.ID))
		}
		seen[s.ID] = true

		if s.AudioRef == "" {
			errs = append(errs, fmt.Errorf("listening set %q has no audio_ref", s.ID))
		}
		if len(s.Questions) == 0 {
			errs = append(errs, fmt.Errorf("listening set %q has no questions", s.ID))
		}
		nums := make(map[int]bool, len(s.Questions))
		for _, q := range s.Questions {
			if nums[q.Number] {
				errs = append(errs, fmt.Errorf("listening set %q: duplicate question number %d", s.ID, q.Number))
			}
			nums[q.Number] = true
			if len(q.Options) < 2 {
				errs = append(errs, fmt.Errorf("listening set %q question %d needs at least two options", s.ID, q.Number))
			}
			if _, ok := q.Options.Lookup(q.CorrectKey); !ok {
				errs = append(errs, fmt.Errorf("listening set %q question %d: correct_key %q not among options", s.ID, q.Number, q.CorrectKey))
			}
		}
	}

	for i, t := range speaking {
		if t.Part < 1 || t.Part > 3 {
			errs = append(errs, fmt.Errorf("speaking task %d: part %d must be 1, 2 or 3", i, t.Part))
		}
		if t.Prompt == "" {
			errs = append(errs, fmt.Errorf("speaking task %d has an empty prompt", i))
		}
	}

	for i, t := range writing {
		if t.TaskType != 1 && t.TaskType != 2 {
			errs = append(errs, fmt.Errorf("writing task %d: task_type %d must be 1 or 2", i, t.TaskType))
		}
		if t.Prompt == "" {
			errs = append(errs, fmt.Errorf("writing task %d has an empty prompt", i))
		}
	}

	return errors.Join(errs...)
}

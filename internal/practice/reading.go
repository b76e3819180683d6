package practice

import (
	"context"
	"strconv"

	"github.com/bandcoach/bandcoach/internal/callback"
	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/i18n"
	"github.com/bandcoach/bandcoach/internal/scoring"
	"github.com/bandcoach/bandcoach/internal/store"
	"github.com/bandcoach/bandcoach/internal/transport"
)

// readingFlow opens the first passage and walks through its questions.
type readingFlow struct {
	e *Engine
}

func (f *readingFlow) begin(ctx context.Context, t *turn) error {
	sets := f.e.Content.ReadingSets()
	if len(sets) == 0 || len(sets[0].Questions) == 0 {
		return contentUnavailable("no reading sets")
	}
	set := sets[0]
	kb, err := f.keyboard(t, set.Questions[0])
	if err != nil {
		return err
	}

	t.st.ContentRef = set.ID
	t.st.Cursor = 0
	f.pend(t.st, set.Questions[0])
	if err := t.st.advance(StageAwaiting); err != nil {
		return err
	}
	if err := f.e.open(ctx, t, set.ID); err != nil {
		return err
	}

	f.e.say(ctx, t, nil, "reading.passage", i18n.Args{"title": set.Title, "passage": set.Passage})
	f.ask(ctx, t, set, kb)
	return nil
}

func (f *readingFlow) selectTask(_ context.Context, _ *turn, target string) error {
	return outOfSync("reading has no task selection (got %q)", target)
}

func (f *readingFlow) pend(st *State, q content.ReadingQuestion) {
	st.PendingID = q.ID
	st.Expected = strconv.Itoa(q.CorrectIndex)
	st.Prompt = q.Text
}

// keyboard builds one button per option of q; the payload carries the
// option index.
func (f *readingFlow) keyboard(t *turn, q content.ReadingQuestion) (transport.Keyboard, error) {
	kb := make(transport.Keyboard, 0, len(q.Options)+1)
	for i, opt := range q.Options {
		b, err := f.e.choice(opt, callback.Answer(content.Reading, q.ID, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		kb = append(kb, []transport.Button{b})
	}
	return append(kb, f.e.cancelRow(t, content.Reading)), nil
}

func (f *readingFlow) ask(ctx context.Context, t *turn, set content.ReadingSet, kb transport.Keyboard) {
	q, _ := set.Question(t.st.Cursor)
	f.e.say(ctx, t, kb, "reading.question", i18n.Args{
		"number": t.st.Cursor + 1,
		"total":  len(set.Questions),
		"text":   q.Text,
	})
}

func (f *readingFlow) answer(ctx context.Context, t *turn, in input) error {
	if !in.button() {
		f.e.say(ctx, t, nil, "general.use_buttons")
		return nil
	}
	st := t.st
	if in.Target != st.PendingID {
		return outOfSync("reading answer for %q, pending %q", in.Target, st.PendingID)
	}
	set, ok := f.e.Content.ReadingSet(st.ContentRef)
	if !ok {
		return outOfSync("reading set %q no longer exists", st.ContentRef)
	}
	q, ok := set.Question(st.Cursor)
	if !ok || q.ID != in.Target {
		return outOfSync("reading cursor %d does not hold %q", st.Cursor, in.Target)
	}
	idx, err := callback.Int(in.Option)
	if err != nil || idx < 0 || idx >= len(q.Options) {
		return outOfSync("reading option %q", in.Option)
	}

	if err := st.advance(StageScoring); err != nil {
		return err
	}
	correct := scoring.Choice(idx, q.CorrectIndex)
	entry := store.Entry{
		Step:       st.Cursor,
		QuestionID: q.ID,
		Question:   q.Text,
		Answer:     q.Options[idx],
		Expected:   q.Options[q.CorrectIndex],
		Correct:    &correct,
		At:         f.e.Now(),
	}
	record := func(sess *store.PracticeSession) error { return sess.RecordAnswer(entry) }
	verdict := func() {
		if correct {
			f.e.say(ctx, t, nil, "reading.correct")
		} else {
			f.e.say(ctx, t, nil, "reading.incorrect", i18n.Args{"answer": q.Options[q.CorrectIndex]})
		}
	}

	st.Cursor++
	if next, more := set.Question(st.Cursor); more {
		kb, err := f.keyboard(t, next)
		if err != nil {
			return err
		}
		f.pend(st, next)
		if err := st.advance(StageAwaiting); err != nil {
			return err
		}
		if _, err := f.e.commit(ctx, t, record); err != nil {
			return err
		}
		verdict()
		f.ask(ctx, t, set, kb)
		return nil
	}

	st.PendingID, st.Expected = "", ""
	sess, err := f.e.complete(ctx, t, record, func(s *store.PracticeSession) float64 {
		return scoring.Percent(s.CorrectAnswers, s.TotalQuestions)
	})
	if err != nil {
		return err
	}
	verdict()
	f.e.say(ctx, t, nil, "reading.complete", i18n.Args{
		"correct": sess.CorrectAnswers,
		"total":   sess.TotalQuestions,
		"percent": formatPercent(*sess.Score),
	})
	f.e.wrapUp(ctx, t, sess)
	return nil
}

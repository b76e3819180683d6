package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bandcoach/bandcoach/internal/content"
)

// Status is the lifecycle position of a PracticeSession row.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	// StatusCancelled marks a session the learner abandoned. It is kept
	// for audit and never scored.
	StatusCancelled Status = "cancelled"
	// StatusFailed marks a session ended by a scoring service failure.
	StatusFailed Status = "failed"
)

// Entry kinds stored in SessionData.
const (
	EntryAnswer = "answer"
	EntryError  = "error"
)

// PracticeSession is one attempt at a section.
type PracticeSession struct {
	ID             string
	UserID         int64
	ChatID         int64
	Section        content.Section
	Variant        string // listening set id, reading set id, speaking part, writing task
	Status         Status
	Stage          string
	StartedAt      time.Time
	CompletedAt    *time.Time
	UpdatedAt      time.Time
	TotalQuestions int
	CorrectAnswers int
	Score          *float64
	Data           SessionData

	// Resumption key: enough to rebuild the in-memory conversation state
	// after a restart.
	Cursor     int
	ContentRef string
	Checkpoint json.RawMessage
}

// SessionData is the append-only log of a session's steps.
type SessionData struct {
	Entries []Entry `json:"entries"`
}

// Entry is one recorded step: an answer with its grading, or an error.
type Entry struct {
	Kind       string          `json:"kind"`
	Step       int             `json:"step"`
	QuestionID string          `json:"question_id,omitempty"`
	Question   string          `json:"question,omitempty"`
	Part       int             `json:"part,omitempty"`
	Answer     string          `json:"answer,omitempty"`
	Expected   string          `json:"expected,omitempty"`
	Correct    *bool           `json:"correct,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Band       *float64        `json:"band,omitempty"`
	Feedback   json.RawMessage `json:"feedback,omitempty"`
	Error      string          `json:"error,omitempty"`
	At         time.Time       `json:"at"`
}

func (e Entry) key() string {
	return fmt.Sprintf("%d/%s/%d", e.Step, e.QuestionID, e.Part)
}

// Active reports whether the session can still accept answers.
func (p *PracticeSession) Active() bool {
	return p.Status == StatusActive
}

// RecordAnswer appends a graded answer and updates the counters. Recording
// the same step twice returns ErrDuplicateAnswer and changes nothing.
func (p *PracticeSession) RecordAnswer(e Entry) error {
	if !p.Active() {
		return ErrNotActive
	}
	e.Kind = EntryAnswer
	k := e.key()
	for _, prev := range p.Data.Entries {
		if prev.Kind == EntryAnswer && prev.key() == k {
			return ErrDuplicateAnswer
		}
	}
	p.Data.Entries = append(p.Data.Entries, e)
	p.TotalQuestions++
	if e.Correct != nil && *e.Correct {
		p.CorrectAnswers++
	}
	return nil
}

// Bands returns the band scores recorded so far, in order.
func (p *PracticeSession) Bands() []float64 {
	var out []float64
	for _, e := range p.Data.Entries {
		if e.Kind == EntryAnswer && e.Band != nil {
			out = append(out, *e.Band)
		}
	}
	return out
}

// Complete finalizes the session with its score.
func (p *PracticeSession) Complete(at time.Time, score float64) error {
	if !p.Active() {
		return ErrNotActive
	}
	p.Status = StatusCompleted
	p.CompletedAt = &at
	p.Score = &score
	return nil
}

// Cancel marks the session abandoned. completed_at stays empty.
func (p *PracticeSession) Cancel() error {
	if !p.Active() {
		return ErrNotActive
	}
	p.Status = StatusCancelled
	return nil
}

// Fail records why the session could not be scored and ends it.
func (p *PracticeSession) Fail(at time.Time, step int, reason string) error {
	if !p.Active() {
		return ErrNotActive
	}
	p.Data.Entries = append(p.Data.Entries, Entry{Kind: EntryError, Step: step, Error: reason, At: at})
	p.Status = StatusFailed
	return nil
}

// check verifies the row-level invariants before a write.
func (p *PracticeSession) check() error {
	if p.CorrectAnswers < 0 || p.TotalQuestions < p.CorrectAnswers {
		return fmt.Errorf("%w: correct=%d total=%d", ErrInvariant, p.CorrectAnswers, p.TotalQuestions)
	}
	if (p.CompletedAt != nil) != (p.Status == StatusCompleted) {
		return fmt.Errorf("%w: status %s with completed_at=%v", ErrInvariant, p.Status, p.CompletedAt)
	}
	switch p.Status {
	case StatusActive, StatusCompleted, StatusCancelled, StatusFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvariant, p.Status)
	}
	return nil
}

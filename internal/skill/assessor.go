package skill

import "fmt"

// MaxBand is the top of the IELTS band scale.
const MaxBand = 9.0

// Outcome is the part of a finished practice session the assessor needs.
type Outcome struct {
	SessionID      string
	TotalQuestions int
	CorrectAnswers int
	// Band is set for speaking and writing sessions, which are graded on
	// the 0-9 scale instead of by counting correct answers.
	Band *float64
}

// Fraction converts the outcome to 0..1. The second result is false when
// the session has no score to assess.
func (o Outcome) Fraction() (float64, bool) {
	if o.TotalQuestions == 0 {
		return 0, false
	}
	if o.Band != nil {
		return *o.Band / MaxBand, true
	}
	return float64(o.CorrectAnswers) / float64(o.TotalQuestions), true
}

// Assessor maps session outcomes onto skill levels.
type Assessor struct {
	table Table
}

// NewAssessor creates an assessor over a validated threshold table.
func NewAssessor(table Table) (*Assessor, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("skill thresholds: %w", err)
	}
	return &Assessor{table: append(Table(nil), table...)}, nil
}

// Table returns a copy of the thresholds in use.
func (a *Assessor) Table() Table {
	return append(Table(nil), a.table...)
}

// Assess computes the level for an outcome. It returns a transition only
// when the computed level differs from current; a nil result means nothing
// should be written and nothing announced. Sessions without questions are
// never assessed.
func (a *Assessor) Assess(userID int64, current Level, o Outcome) *Transition {
	fraction, ok := o.Fraction()
	if !ok {
		return nil
	}
	next := a.table.LevelFor(fraction)
	if next == current {
		return nil
	}
	return &Transition{
		UserID:   userID,
		From:     current,
		To:       next,
		Fraction: fraction,
		Trigger:  o.SessionID,
	}
}

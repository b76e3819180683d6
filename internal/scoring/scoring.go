// Package scoring grades learner answers. Multiple-choice answers are
// compared locally; speaking and writing answers go through the AI tutor.
package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/llm"
	"github.com/bandcoach/bandcoach/internal/tutor"
)

// DataFormatError means the scoring service answered with something that
// could not be parsed as feedback.
type DataFormatError struct {
	Section content.Section
	Err     error
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("%s feedback malformed: %v", e.Section, e.Err)
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// ServiceError is any other scoring service failure.
type ServiceError struct {
	Section content.Section
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s scoring failed: %v", e.Section, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Assessor is the AI side of scoring. *tutor.Tutor implements it.
type Assessor interface {
	ScoreSpeaking(ctx context.Context, req tutor.SpeakingRequest) (*tutor.SpeakingFeedback, error)
	ScoreWriting(ctx context.Context, req tutor.WritingRequest) (*tutor.WritingFeedback, error)
}

// Scorer grades answers for every section.
type Scorer struct {
	ai Assessor
}

// New creates a Scorer. ai may be nil when only multiple-choice sections
// are served.
func New(ai Assessor) *Scorer {
	return &Scorer{ai: ai}
}

// Choice reports whether the selected option equals the correct one.
func Choice[K comparable](selected, correct K) bool {
	return selected == correct
}

// Speaking scores one transcribed answer.
func (s *Scorer) Speaking(ctx context.Context, req tutor.SpeakingRequest) (*tutor.SpeakingFeedback, error) {
	if s.ai == nil {
		return nil, &ServiceError{Section: content.Speaking, Err: errors.New("no AI assessor configured")}
	}
	fb, err := s.ai.ScoreSpeaking(ctx, req)
	if err != nil {
		return nil, classify(content.Speaking, err)
	}
	return fb, nil
}

// Writing scores one essay.
func (s *Scorer) Writing(ctx context.Context, req tutor.WritingRequest) (*tutor.WritingFeedback, error) {
	if s.ai == nil {
		return nil, &ServiceError{Section: content.Writing, Err: errors.New("no AI assessor configured")}
	}
	fb, err := s.ai.ScoreWriting(ctx, req)
	if err != nil {
		return nil, classify(content.Writing, err)
	}
	return fb, nil
}

func classify(section content.Section, err error) error {
	var inv *llm.ErrInvalidResponse
	var trunc *llm.ErrMaxTokensExceeded
	if errors.As(err, &inv) || errors.As(err, &trunc) {
		return &DataFormatError{Section: section, Err: err}
	}
	return &ServiceError{Section: section, Err: err}
}

// Percent returns 100*correct/total, or 0 for an empty session.
func Percent(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(correct) / float64(total)
}

// MeanBand averages the bands collected over a session.
func MeanBand(bands []float64) float64 {
	if len(bands) == 0 {
		return 0
	}
	return lo.Sum(bands) / float64(len(bands))
}

package practice

import (
	"errors"
	"fmt"

	"github.com/bandcoach/bandcoach/internal/scoring"
	"github.com/bandcoach/bandcoach/internal/store"
)

// ErrorKind classifies the failures a learner can see.
type ErrorKind string

const (
	// KindContentUnavailable: no exercise to offer. No session is created.
	KindContentUnavailable ErrorKind = "content_unavailable"
	// KindOutOfSync: the input does not match the conversation state. The
	// in-memory state is dropped and nothing is written.
	KindOutOfSync ErrorKind = "out_of_sync"
	// KindScoringFailure: transcription or AI scoring failed. The session
	// is kept with status failed.
	KindScoringFailure ErrorKind = "scoring_failure"
	// KindPersistence: a store write failed. The conversation state is
	// left at its last committed step.
	KindPersistence ErrorKind = "persistence_failure"
	// KindInternal covers everything else.
	KindInternal ErrorKind = "internal"
)

// FlowError carries an ErrorKind through the flow code to the engine
// boundary.
type FlowError struct {
	Kind ErrorKind
	Err  error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FlowError) Unwrap() error { return e.Err }

// ErrOutOfSync is the cause recorded for stale or foreign input.
var ErrOutOfSync = errors.New("input does not match the active question")

func contentUnavailable(format string, args ...any) error {
	return &FlowError{Kind: KindContentUnavailable, Err: fmt.Errorf(format, args...)}
}

func outOfSync(format string, args ...any) error {
	return &FlowError{Kind: KindOutOfSync, Err: fmt.Errorf("%w: "+format, append([]any{ErrOutOfSync}, args...)...)}
}

func scoringFailure(err error) error {
	return &FlowError{Kind: KindScoringFailure, Err: err}
}

// internalFailure marks a defect on the bot's side, such as content that
// cannot be turned into buttons.
func internalFailure(err error) error {
	return &FlowError{Kind: KindInternal, Err: err}
}

// persistence wraps a store error. Sessions that were ended or answers
// already recorded by an earlier event mean the input is stale.
func persistence(err error) error {
	if errors.Is(err, store.ErrNotActive) || errors.Is(err, store.ErrDuplicateAnswer) || errors.Is(err, store.ErrNotFound) {
		return &FlowError{Kind: KindOutOfSync, Err: err}
	}
	return &FlowError{Kind: KindPersistence, Err: err}
}

// KindOf classifies any error returned by a flow.
func KindOf(err error) ErrorKind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var dfe *scoring.DataFormatError
	var se *scoring.ServiceError
	if errors.As(err, &dfe) || errors.As(err, &se) {
		return KindScoringFailure
	}
	return KindInternal
}

func messageKey(kind ErrorKind) string {
	switch kind {
	case KindContentUnavailable:
		return "errors.no_material"
	case KindOutOfSync:
		return "errors.session_expired"
	case KindScoringFailure:
		return "errors.scoring_failed"
	case KindPersistence:
		return "errors.storage_failed"
	default:
		return "errors.generic"
	}
}

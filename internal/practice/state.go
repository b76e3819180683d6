package practice

import (
	"encoding/json"
	"fmt"

	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/store"
)

// Key identifies a conversation.
type Key struct {
	UserID int64
	ChatID int64
}

// State is the in-memory conversation state of one running flow.
type State struct {
	Key       Key
	SessionID string // empty while selecting a task
	Section   content.Section
	Stage     Stage

	// ContentRef names the exercise (reading/listening set id, speaking
	// part, writing task type). Cursor indexes its questions.
	ContentRef string
	Cursor     int

	// PendingID identifies the question awaiting an answer and Expected
	// holds its correct option.
	PendingID string
	Expected  string

	Prompt string
	Topic  string
	Part   int

	// ImageRef is the chart shown with a Task 1 prompt.
	ImageRef string

	Bands       []float64
	Transcripts []string

	Lang string
}

func (s *State) clone() *State {
	c := *s
	c.Bands = append([]float64(nil), s.Bands...)
	c.Transcripts = append([]string(nil), s.Transcripts...)
	return &c
}

// advance moves the state machine, refusing transitions the table does
// not allow.
func (s *State) advance(to Stage) error {
	if !s.Stage.CanTransition(to) {
		return fmt.Errorf("%s flow: illegal transition %s -> %s", s.Section, s.Stage, to)
	}
	s.Stage = to
	return nil
}

// checkpoint holds the scratch fields persisted with the session row.
type checkpoint struct {
	PendingID   string    `json:"pending_id,omitempty"`
	Expected    string    `json:"expected,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Topic       string    `json:"topic,omitempty"`
	Part        int       `json:"part,omitempty"`
	ImageRef    string    `json:"image_ref,omitempty"`
	Bands       []float64 `json:"bands,omitempty"`
	Transcripts []string  `json:"transcripts,omitempty"`
	Lang        string    `json:"lang,omitempty"`
}

// persist copies the resumption key onto a session row.
func (s *State) persist(sess *store.PracticeSession) error {
	cp, err := json.Marshal(checkpoint{
		PendingID:   s.PendingID,
		Expected:    s.Expected,
		Prompt:      s.Prompt,
		Topic:       s.Topic,
		Part:        s.Part,
		ImageRef:    s.ImageRef,
		Bands:       s.Bands,
		Transcripts: s.Transcripts,
		Lang:        s.Lang,
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	sess.Stage = string(s.Stage)
	sess.Cursor = s.Cursor
	sess.ContentRef = s.ContentRef
	sess.Checkpoint = cp
	return nil
}

// restore rebuilds conversation state from an active session row. A row
// left in the scoring stage never got its result, so it resumes waiting
// for the answer again.
func restore(sess *store.PracticeSession) (*State, error) {
	var cp checkpoint
	if len(sess.Checkpoint) > 0 {
		if err := json.Unmarshal(sess.Checkpoint, &cp); err != nil {
			return nil, fmt.Errorf("session %s checkpoint: %w", sess.ID, err)
		}
	}
	stage := Stage(sess.Stage)
	if stage == StageScoring {
		stage = StageAwaiting
	}
	if !stage.valid() || stage.Terminal() || stage == StageSelecting {
		return nil, fmt.Errorf("session %s: cannot resume from stage %q", sess.ID, sess.Stage)
	}
	return &State{
		Key:         Key{UserID: sess.UserID, ChatID: sess.ChatID},
		SessionID:   sess.ID,
		Section:     sess.Section,
		Stage:       stage,
		ContentRef:  sess.ContentRef,
		Cursor:      sess.Cursor,
		PendingID:   cp.PendingID,
		Expected:    cp.Expected,
		Prompt:      cp.Prompt,
		Topic:       cp.Topic,
		Part:        cp.Part,
		ImageRef:    cp.ImageRef,
		Bands:       cp.Bands,
		Transcripts: cp.Transcripts,
		Lang:        cp.Lang,
	}, nil
}

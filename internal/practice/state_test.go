package practice

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/scoring"
	"github.com/bandcoach/bandcoach/internal/store"
	"github.com/bandcoach/bandcoach/internal/transport"
)

func TestStage_Transitions(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageSelecting, StageAwaiting, true},
		{StageSelecting, StageCancelled, true},
		{StageSelecting, StageScoring, false},
		{StageAwaiting, StageScoring, true},
		{StageAwaiting, StageCancelled, true},
		{StageAwaiting, StageCompleted, false},
		{StageScoring, StageAwaiting, true},
		{StageScoring, StageCompleted, true},
		{StageScoring, StageCancelled, true},
		{StageCompleted, StageAwaiting, false},
		{StageCancelled, StageSelecting, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if !StageCompleted.Terminal() || !StageCancelled.Terminal() || StageScoring.Terminal() {
		t.Error("only completed and cancelled are terminal")
	}
}

func TestState_AdvanceRejectsIllegalMove(t *testing.T) {
	st := &State{Section: content.Reading, Stage: StageSelecting}
	if err := st.advance(StageCompleted); err == nil {
		t.Fatal("expected error for selecting -> completed")
	}
	if st.Stage != StageSelecting {
		t.Errorf("stage changed to %s after rejected move", st.Stage)
	}
}

func TestState_PersistRestore(t *testing.T) {
	st := &State{
		Key:         Key{UserID: 1, ChatID: 2},
		SessionID:   "s-1",
		Section:     content.Speaking,
		Stage:       StageAwaiting,
		ContentRef:  "2",
		Cursor:      1,
		ImageRef:    "writing/chart.png",
		PendingID:   "3",
		Prompt:      "Why do people travel?",
		Topic:       "journey",
		Part:        3,
		Bands:       []float64{6.5},
		Transcripts: []string{"I went to Lisbon."},
		Lang:        "es",
	}
	sess := &store.PracticeSession{ID: "s-1", UserID: 1, ChatID: 2, Section: content.Speaking}
	if err := st.persist(sess); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if sess.Stage != string(StageAwaiting) || sess.Cursor != 1 || sess.ContentRef != "2" {
		t.Errorf("row = stage %q cursor %d ref %q", sess.Stage, sess.Cursor, sess.ContentRef)
	}

	got, err := restore(sess)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !reflect.DeepEqual(got, st) {
		t.Errorf("restore =\n%+v\nwant\n%+v", got, st)
	}
}

func TestRestore_ScoringResumesAwaiting(t *testing.T) {
	sess := &store.PracticeSession{ID: "s", Section: content.Writing, Stage: string(StageScoring)}
	st, err := restore(sess)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if st.Stage != StageAwaiting {
		t.Errorf("stage = %s, want %s", st.Stage, StageAwaiting)
	}
}

func TestRestore_Rejects(t *testing.T) {
	tests := []struct {
		name string
		sess store.PracticeSession
	}{
		{"completed", store.PracticeSession{Stage: string(StageCompleted)}},
		{"selecting", store.PracticeSession{Stage: string(StageSelecting)}},
		{"unknown stage", store.PracticeSession{Stage: "thinking"}},
		{"bad checkpoint", store.PracticeSession{Stage: string(StageAwaiting), Checkpoint: []byte("{")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := restore(&tt.sess); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	k := Key{UserID: 1, ChatID: 1}
	r.Put(&State{Key: k, Stage: StageAwaiting, Bands: []float64{5}})

	st, _ := r.Get(k)
	st.Stage = StageScoring
	st.Bands[0] = 9

	again, ok := r.Get(k)
	if !ok {
		t.Fatal("state missing")
	}
	if again.Stage != StageAwaiting || again.Bands[0] != 5 {
		t.Errorf("registry was mutated through a copy: %+v", again)
	}
	r.Delete(k)
	if r.Len() != 0 {
		t.Errorf("Len = %d after delete", r.Len())
	}
}

func TestRegistry_LockSerializesKey(t *testing.T) {
	r := NewRegistry()
	k := Key{UserID: 7, ChatID: 7}

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := r.Lock(k)
			defer unlock()
			mu.Lock()
			inside++
			maxInside = max(maxInside, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
	if len(r.locks) != 0 {
		t.Errorf("%d lock entries left behind", len(r.locks))
	}
}

func TestDispatcher_OrderPerConversation(t *testing.T) {
	var mu sync.Mutex
	seen := map[int64][]string{}
	d := NewDispatcher(func(_ context.Context, ev transport.Event) {
		mu.Lock()
		seen[ev.User.ID] = append(seen[ev.User.ID], ev.Text)
		mu.Unlock()
	})

	const n = 50
	for i := range n {
		for _, uid := range []int64{1, 2} {
			d.Submit(context.Background(), transport.Event{Kind: transport.KindText, User: transport.User{ID: uid}, ChatID: uid, Text: fmt.Sprint(i)})
		}
	}
	d.Close()

	for _, uid := range []int64{1, 2} {
		if len(seen[uid]) != n {
			t.Fatalf("user %d: handled %d events, want %d", uid, len(seen[uid]), n)
		}
		for i, text := range seen[uid] {
			if text != fmt.Sprint(i) {
				t.Fatalf("user %d: event %d = %q, out of order", uid, i, text)
			}
		}
	}
	if d.Submit(context.Background(), transport.Event{}) {
		t.Error("Submit accepted an event after Close")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"content", contentUnavailable("none"), KindContentUnavailable},
		{"stale", outOfSync("q %d", 1), KindOutOfSync},
		{"ended session", persistence(fmt.Errorf("update: %w", store.ErrNotActive)), KindOutOfSync},
		{"duplicate", persistence(store.ErrDuplicateAnswer), KindOutOfSync},
		{"write failed", persistence(errors.New("disk full")), KindPersistence},
		{"scoring", scoringFailure(errors.New("timeout")), KindScoringFailure},
		{"bare scorer error", &scoring.ServiceError{Section: content.Writing, Err: errors.New("503")}, KindScoringFailure},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %s, want %s", got, tt.want)
			}
		})
	}
	if !errors.Is(outOfSync("x"), ErrOutOfSync) {
		t.Error("outOfSync does not wrap ErrOutOfSync")
	}
}

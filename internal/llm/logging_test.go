package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bandcoach/bandcoach/internal/store"
)

type recordingRecorder struct {
	mu     sync.Mutex
	events []store.LLMRequestEvent
	err    error
}

func (r *recordingRecorder) AppendLLMRequest(_ context.Context, ev store.LLMRequestEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func TestLoggingProvider_RecordsSuccess(t *testing.T) {
	mock := NewMockProvider(MockResponse{
		Content: json.RawMessage(`{"estimated_band":7}`),
		Usage:   Usage{InputTokens: 12, OutputTokens: 4},
	})
	rec := &recordingRecorder{}
	p := WithLogging(mock, "mock", rec, nil)

	ctx := WithSession(WithPurpose(context.Background(), "score-speaking"), "sess-9")
	if _, err := p.Generate(ctx, Request{System: "sys", Messages: []Message{{Role: RoleUser, Content: "hi"}}}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if !ev.Success || ev.Purpose != "score-speaking" || ev.SessionID != "sess-9" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.InputTokens != 12 || ev.ResponseBody != `{"estimated_band":7}` {
		t.Fatalf("event usage/body = %+v", ev)
	}
}

func TestLoggingProvider_RecordsFailureAndIgnoresRecorderError(t *testing.T) {
	mock := NewMockProvider(MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}})
	rec := &recordingRecorder{err: errors.New("disk full")}
	p := WithLogging(mock, "mock", rec, nil)

	_, err := p.Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected provider error to pass through, got %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].Success || rec.events[0].ErrorMessage == "" {
		t.Fatalf("events = %+v", rec.events)
	}
}

func TestLoggingProvider_NilRecorder(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	p := WithLogging(mock, "mock", nil, nil)
	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("generate: %v", err)
	}
}

func TestLoggingProvider_SummarisesImages(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{"estimated_band":6}`)})
	rec := &recordingRecorder{}
	p := WithLogging(mock, "mock", rec, nil)

	if _, err := p.Generate(context.Background(), chartRequest()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	body := rec.events[0].RequestBody
	for _, want := range []string{"[system]", "<image image/png, 4 bytes>", "Grade this report.", "[schema: band-only]"} {
		if !strings.Contains(body, want) {
			t.Errorf("request body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, chart.base64()) {
		t.Error("image bytes leaked into the event log")
	}
}

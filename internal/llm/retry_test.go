package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"
)

var fastRetry = RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}

var okReply = MockResponse{Content: json.RawMessage(`{"ok":true}`)}

func down() MockResponse { return MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}} }

func badJSON() MockResponse {
	return MockResponse{Err: &ErrInvalidResponse{Content: json.RawMessage(`nope`), Err: errors.New("not JSON")}}
}

func TestRetryProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       RetryConfig
		replies   []MockResponse
		wantErr   bool
		wantCalls int
	}{
		{"first try", fastRetry, []MockResponse{okReply}, false, 1},
		{"outage then success", fastRetry, []MockResponse{down(), okReply}, false, 2},
		{"outage every time", fastRetry, []MockResponse{down(), down(), down(), okReply}, true, 3},
		{"rate limit honours hint", fastRetry, []MockResponse{{Err: &ErrRateLimit{RetryAfter: time.Millisecond}}, okReply}, false, 2},
		{"truncated reply not retried", fastRetry, []MockResponse{{Err: &ErrMaxTokensExceeded{}}, okReply}, true, 1},
		{"bad schema retried once", fastRetry, []MockResponse{badJSON(), badJSON(), okReply}, true, 2},
		{"bad schema then success", fastRetry, []MockResponse{badJSON(), okReply}, false, 2},
		{"silence not retried", fastRetry, []MockResponse{{Err: ErrEmptyTranscript}, okReply}, true, 1},
		{"zero attempts means one", RetryConfig{}, []MockResponse{down(), okReply}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider(tt.replies...)
			resp, err := WithRetry(mock, tt.cfg, nil).Generate(context.Background(), Request{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(resp.Content) != `{"ok":true}` {
				t.Errorf("content = %s", resp.Content)
			}
			if mock.CallCount() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", mock.CallCount(), tt.wantCalls)
			}
		})
	}
}

func TestRetryProvider_StopsOnCancel(t *testing.T) {
	mock := NewMockProvider(down(), okReply)
	slow := RetryConfig{MaxAttempts: 3, InitialWait: time.Hour, MaxWait: time.Hour, Multiplier: 1}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := WithRetry(mock, slow, nil).Generate(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", mock.CallCount())
	}
}

func TestRetryProvider_ModelID(t *testing.T) {
	if id := WithRetry(NewMockProvider(), fastRetry, nil).ModelID(); id != "mock" {
		t.Fatalf("ModelID = %q", id)
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := newBackoff(RetryConfig{MaxAttempts: 5, InitialWait: 100 * time.Millisecond, MaxWait: 300 * time.Millisecond, Multiplier: 2}, nil)
	within := func(d, want time.Duration) bool {
		return d >= want*8/10 && d <= want*12/10
	}
	plain := errors.New("x")
	if d := b.delay(1, plain); !within(d, 100*time.Millisecond) {
		t.Errorf("attempt 1 delay = %s", d)
	}
	if d := b.delay(2, plain); !within(d, 200*time.Millisecond) {
		t.Errorf("attempt 2 delay = %s", d)
	}
	if d := b.delay(4, plain); !within(d, 300*time.Millisecond) {
		t.Errorf("attempt 4 delay = %s, want capped", d)
	}
	if d := b.delay(1, &ErrRateLimit{RetryAfter: 7 * time.Second}); d != 7*time.Second {
		t.Errorf("rate limit delay = %s, want Retry-After", d)
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.header != "" {
			h.Set("Retry-After", tt.header)
		}
		if got := retryAfter(h, now); got != tt.want {
			t.Errorf("retryAfter(%q) = %s, want %s", tt.header, got, tt.want)
		}
	}
}

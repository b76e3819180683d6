package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempAudio(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "answer.mp3")
	if err := os.WriteFile(p, []byte("ID3fake"), 0o600); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return p
}

func TestOpenAITranscriber_HappyPath(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotModel = r.FormValue("model")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"  I grew up in a small coastal town.  "}`))
	}))
	t.Cleanup(server.Close)

	tr, err := NewOpenAITranscriber(TranscribeConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("new transcriber: %v", err)
	}
	text, err := tr.Transcribe(context.Background(), writeTempAudio(t))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "I grew up in a small coastal town." {
		t.Fatalf("text = %q", text)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", gotModel)
	}
}

func TestOpenAITranscriber_EmptyTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":""}`))
	}))
	t.Cleanup(server.Close)

	tr, err := NewOpenAITranscriber(TranscribeConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("new transcriber: %v", err)
	}
	if _, err := tr.Transcribe(context.Background(), writeTempAudio(t)); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
}

func TestNewOpenAITranscriber_RequiresKey(t *testing.T) {
	if _, err := NewOpenAITranscriber(TranscribeConfig{}); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestRetryTranscriber_RetriesTransient(t *testing.T) {
	mock := NewMockTranscriber(
		MockTranscript{Err: &ErrProviderUnavailable{}},
		MockTranscript{Text: "hello"},
	)
	tr := WithTranscribeRetry(mock, fastRetry, nil)
	text, err := tr.Transcribe(context.Background(), "a.ogg")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello" || len(mock.Paths) != 2 {
		t.Fatalf("text = %q after %d calls", text, len(mock.Paths))
	}
}

func TestRetryTranscriber_EmptyNotRetried(t *testing.T) {
	mock := NewMockTranscriber(
		MockTranscript{Err: ErrEmptyTranscript},
		MockTranscript{Text: "never"},
	)
	tr := WithTranscribeRetry(mock, fastRetry, nil)
	if _, err := tr.Transcribe(context.Background(), "a.ogg"); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
	if len(mock.Paths) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.Paths))
	}
}

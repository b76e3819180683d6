package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Transcriber turns a recorded answer into text.
type Transcriber interface {
	// Transcribe reads the audio file at path and returns its transcript.
	Transcribe(ctx context.Context, path string) (string, error)
}

// TranscribeConfig configures speech-to-text.
type TranscribeConfig struct {
	// Provider is "openai" or "mock".
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`    // Default: whisper-1
	Language string `mapstructure:"language"` // ISO-639-1 hint, default "en"
}

// OpenAITranscriber implements Transcriber with the Whisper API.
type OpenAITranscriber struct {
	client   *openai.Client
	model    string
	language string
}

// NewOpenAITranscriber creates a Whisper-backed transcriber.
func NewOpenAITranscriber(cfg TranscribeConfig) (*OpenAITranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required for transcription")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	return &OpenAITranscriber{
		client:   openai.NewClientWithConfig(config),
		model:    model,
		language: lang,
	}, nil
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: path,
		Language: t.language,
		Prompt:   "An IELTS speaking test answer.",
	})
	if err != nil {
		return "", openAIError(err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// RetryTranscriber retries transient transcription failures.
type RetryTranscriber struct {
	inner Transcriber
	b     backoff
}

// WithTranscribeRetry wraps a Transcriber with the same backoff policy
// used for generation.
func WithTranscribeRetry(t Transcriber, cfg RetryConfig, log *zap.Logger) Transcriber {
	return &RetryTranscriber{inner: t, b: newBackoff(cfg, log)}
}

func (r *RetryTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	var text string
	err := r.b.run(ctx, func() error {
		var err error
		text, err = r.inner.Transcribe(ctx, path)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// MockTranscriber returns canned transcripts in FIFO order and records the
// paths it was asked to read.
type MockTranscriber struct {
	mu      sync.Mutex
	results []MockTranscript
	Paths   []string
}

// MockTranscript is one canned transcription result.
type MockTranscript struct {
	Text string
	Err  error
}

// NewMockTranscriber creates a MockTranscriber with the given results.
func NewMockTranscriber(results ...MockTranscript) *MockTranscriber {
	return &MockTranscriber{results: results}
}

func (m *MockTranscriber) Transcribe(_ context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Paths = append(m.Paths, path)
	if len(m.results) == 0 {
		return "", &ErrProviderUnavailable{}
	}
	r := m.results[0]
	m.results = m.results[1:]
	return r.Text, r.Err
}

// Add queues another canned result.
func (m *MockTranscriber) Add(r MockTranscript) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
}

// NewTranscriber builds the configured transcriber with retries applied.
func NewTranscriber(cfg TranscribeConfig, retry RetryConfig, log *zap.Logger) (Transcriber, error) {
	switch cfg.Provider {
	case "", "openai":
		t, err := NewOpenAITranscriber(cfg)
		if err != nil {
			return nil, err
		}
		return WithTranscribeRetry(t, retry, log), nil
	case "mock":
		return NewMockTranscriber(), nil
	}
	return nil, fmt.Errorf("unknown transcription provider: %q", cfg.Provider)
}

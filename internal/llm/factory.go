package llm

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const openRouterURL = "https://openrouter.ai/api/v1"

// NewProvider builds the configured vendor and wraps it so that every
// attempt is recorded and transient failures are retried:
//
//	caller -> retry -> event log -> vendor
//
// The mock provider is returned bare.
func NewProvider(ctx context.Context, cfg Config, recorder EventRecorder, log *zap.Logger) (Provider, error) {
	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", cfg.Provider, err)
	}
	return WithRetry(WithLogging(base, cfg.Provider, recorder, log), cfg.Retry, log), nil
}

// NewOpenRouterProvider talks to OpenRouter through its OpenAI-compatible
// API. Requests carry the app attribution headers OpenRouter ranks by.
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter API key is required")
	}
	conf := openai.DefaultConfig(cfg.APIKey)
	conf.BaseURL = cfg.BaseURL
	if conf.BaseURL == "" {
		conf.BaseURL = openRouterURL
	}
	conf.HTTPClient = &http.Client{Transport: attribution{next: http.DefaultTransport}}
	return newOpenAI(conf, cfg.Model), nil
}

// attribution stamps OpenRouter's optional app headers on each request.
type attribution struct {
	next http.RoundTripper
}

func (a attribution) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("HTTP-Referer", "https://github.com/bandcoach/bandcoach")
	r.Header.Set("X-Title", "bandcoach")
	return a.next.RoundTrip(r)
}

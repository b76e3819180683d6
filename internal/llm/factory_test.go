package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewProvider(t *testing.T) {
	if _, err := NewProvider(context.Background(), Config{Provider: "carrier-pigeon"}, nil, nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	p, err := NewProvider(context.Background(), Config{Provider: "mock"}, nil, nil)
	if err != nil {
		t.Fatalf("mock provider: %v", err)
	}
	if _, ok := p.(*MockProvider); !ok {
		t.Errorf("mock provider wrapped as %T", p)
	}

	cfg := DefaultConfig()
	cfg.Provider = "anthropic"
	cfg.Anthropic.APIKey = "sk-ant"
	p, err = NewProvider(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("anthropic provider: %v", err)
	}
	if _, ok := p.(*RetryProvider); !ok {
		t.Errorf("outermost layer = %T, want *RetryProvider", p)
	}
	if p.ModelID() != "claude-haiku-4-5-20251001" {
		t.Errorf("model = %q", p.ModelID())
	}

	cfg.Anthropic.APIKey = ""
	if _, err := NewProvider(context.Background(), cfg, nil, nil); err == nil {
		t.Error("expected error for missing anthropic key")
	}
}

func TestOpenRouterProvider_Attribution(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openAIReply(`{"estimated_band":6}`, "stop"))
	}))
	t.Cleanup(srv.Close)

	p, err := NewOpenRouterProvider(OpenRouterConfig{APIKey: "sk-or", Model: "google/gemini-2.0-flash-exp", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenRouterProvider: %v", err)
	}
	if p.ModelID() != "google/gemini-2.0-flash-exp" {
		t.Errorf("model = %q, OpenRouter ids must pass through", p.ModelID())
	}
	if _, err := p.Generate(context.Background(), chartRequest()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.Get("X-Title") != "bandcoach" || got.Get("HTTP-Referer") == "" {
		t.Errorf("attribution headers missing: %v", got)
	}
	if got.Get("Authorization") != "Bearer sk-or" {
		t.Errorf("authorization = %q", got.Get("Authorization"))
	}
}

func TestOpenRouterProvider_Defaults(t *testing.T) {
	if _, err := NewOpenRouterProvider(OpenRouterConfig{Model: "x"}); err == nil {
		t.Fatal("expected error for missing key")
	}
	p, err := NewOpenRouterProvider(OpenRouterConfig{APIKey: "sk-or", Model: "x"})
	if err != nil {
		t.Fatalf("NewOpenRouterProvider: %v", err)
	}
	if p.client == nil {
		t.Fatal("client not built")
	}
}

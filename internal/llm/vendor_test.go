package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

var chart = Image{MediaType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}

var bandSchema = &Schema{
	Name: "band-only",
	Definition: map[string]any{
		"type":       "object",
		"properties": map[string]any{"estimated_band": map[string]any{"type": "number"}},
		"required":   []any{"estimated_band"},
	},
}

// fakeAPI serves one canned JSON reply and keeps the decoded request body.
type fakeAPI struct {
	status int
	reply  map[string]any
	got    map[string]any
}

func (f *fakeAPI) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&f.got)
		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
		_ = json.NewEncoder(w).Encode(f.reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func anthropicAgainst(t *testing.T, f *fakeAPI) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey("test-key"), option.WithBaseURL(f.serve(t).URL), option.WithMaxRetries(0))
	return &AnthropicProvider{client: &client, model: "claude-sonnet-4-20250514"}
}

func openAIAgainst(t *testing.T, f *fakeAPI) *OpenAIProvider {
	conf := openai.DefaultConfig("test-key")
	conf.BaseURL = f.serve(t).URL + "/v1"
	return &OpenAIProvider{client: openai.NewClientWithConfig(conf), model: "gpt-4o-mini"}
}

func anthropicReply(text, stop string) map[string]any {
	return map[string]any{
		"id": "msg_test", "type": "message", "role": "assistant",
		"model":       "claude-sonnet-4-20250514",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"stop_reason": stop,
		"usage":       map[string]any{"input_tokens": 50, "output_tokens": 30},
	}
}

func openAIReply(text, finish string) map[string]any {
	return map[string]any{
		"id": "chatcmpl-test", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": text},
			"finish_reason": finish,
		}},
		"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 25, "total_tokens": 65},
	}
}

func chartRequest() Request {
	return Request{
		System:    "You are an IELTS examiner.",
		Messages:  []Message{{Role: RoleUser, Content: "Grade this report.", Images: []Image{chart}}},
		Schema:    bandSchema,
		MaxTokens: 256,
	}
}

func TestAnthropicProvider_SendsChartBeforeText(t *testing.T) {
	f := &fakeAPI{reply: anthropicReply(`{"estimated_band":6.5}`, "end_turn")}
	resp, err := anthropicAgainst(t, f).Generate(context.Background(), chartRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Usage != (Usage{InputTokens: 50, OutputTokens: 30, TotalTokens: 80}) {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if resp.StopReason != StopEnd {
		t.Errorf("stop = %q, want %q", resp.StopReason, StopEnd)
	}

	msgs := f.got["messages"].([]any)
	blocks := msgs[0].(map[string]any)["content"].([]any)
	if len(blocks) != 2 {
		t.Fatalf("content blocks = %d, want image + text", len(blocks))
	}
	img := blocks[0].(map[string]any)
	if img["type"] != "image" {
		t.Fatalf("first block type = %v, want image", img["type"])
	}
	src := img["source"].(map[string]any)
	if src["media_type"] != "image/png" || src["data"] != chart.base64() {
		t.Errorf("image source = %v", src)
	}
	if blocks[1].(map[string]any)["text"] != "Grade this report." {
		t.Errorf("text block = %v", blocks[1])
	}
}

func TestOpenAIProvider_SendsChartAsDataURL(t *testing.T) {
	f := &fakeAPI{reply: openAIReply(`{"estimated_band":7}`, "stop")}
	resp, err := openAIAgainst(t, f).Generate(context.Background(), chartRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Usage.TotalTokens != 65 {
		t.Errorf("total tokens = %d, want 65", resp.Usage.TotalTokens)
	}

	msgs := f.got["messages"].([]any)
	if len(msgs) != 2 || msgs[0].(map[string]any)["role"] != "system" {
		t.Fatalf("messages = %v, want system then user", msgs)
	}
	parts := msgs[1].(map[string]any)["content"].([]any)
	url := parts[0].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("image url = %q", url)
	}
	if parts[1].(map[string]any)["text"] != "Grade this report." {
		t.Errorf("text part = %v", parts[1])
	}
	format := f.got["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Errorf("response_format = %v", format)
	}
}

func TestOpenAIProvider_PlainMessageStaysString(t *testing.T) {
	f := &fakeAPI{reply: openAIReply("hello", "stop")}
	_, err := openAIAgainst(t, f).Generate(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "hi"}},
		MaxTokens: 16,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	msgs := f.got["messages"].([]any)
	if c, ok := msgs[0].(map[string]any)["content"].(string); !ok || c != "hi" {
		t.Errorf("content = %v, want plain string", msgs[0])
	}
}

func TestProviders_TruncatedStructuredReply(t *testing.T) {
	tests := []struct {
		name string
		gen  func(*testing.T) Provider
	}{
		{"anthropic", func(t *testing.T) Provider {
			return anthropicAgainst(t, &fakeAPI{reply: anthropicReply(`{"estimated_ba`, "max_tokens")})
		}},
		{"openai", func(t *testing.T) Provider {
			return openAIAgainst(t, &fakeAPI{reply: openAIReply(`{"estimated_ba`, "length")})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.gen(t).Generate(context.Background(), chartRequest())
			var mt *ErrMaxTokensExceeded
			if !errors.As(err, &mt) {
				t.Fatalf("err = %T (%v), want ErrMaxTokensExceeded", err, err)
			}
		})
	}
}

func TestProviders_InvalidStructuredReply(t *testing.T) {
	f := &fakeAPI{reply: anthropicReply(`{"band":"high"}`, "end_turn")}
	_, err := anthropicAgainst(t, f).Generate(context.Background(), chartRequest())
	var inv *ErrInvalidResponse
	if !errors.As(err, &inv) {
		t.Fatalf("err = %T (%v), want ErrInvalidResponse", err, err)
	}
}

func TestProviders_ErrorMapping(t *testing.T) {
	anthropicErr := map[string]any{"type": "error", "error": map[string]any{"type": "api_error", "message": "boom"}}
	openAIErr := map[string]any{"error": map[string]any{"type": "server_error", "message": "boom"}}

	tests := []struct {
		name      string
		status    int
		gen       func(*testing.T, *fakeAPI) Provider
		reply     map[string]any
		rateLimit bool
	}{
		{"anthropic 429", http.StatusTooManyRequests, func(t *testing.T, f *fakeAPI) Provider { return anthropicAgainst(t, f) }, anthropicErr, true},
		{"anthropic 500", http.StatusInternalServerError, func(t *testing.T, f *fakeAPI) Provider { return anthropicAgainst(t, f) }, anthropicErr, false},
		{"openai 429", http.StatusTooManyRequests, func(t *testing.T, f *fakeAPI) Provider { return openAIAgainst(t, f) }, openAIErr, true},
		{"openai 500", http.StatusInternalServerError, func(t *testing.T, f *fakeAPI) Provider { return openAIAgainst(t, f) }, openAIErr, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.gen(t, &fakeAPI{status: tt.status, reply: tt.reply})
			_, err := p.Generate(context.Background(), Request{
				Messages:  []Message{{Role: RoleUser, Content: "test"}},
				MaxTokens: 16,
			})
			var rl *ErrRateLimit
			var down *ErrProviderUnavailable
			switch {
			case tt.rateLimit && !errors.As(err, &rl):
				t.Fatalf("err = %T (%v), want ErrRateLimit", err, err)
			case !tt.rateLimit && !errors.As(err, &down):
				t.Fatalf("err = %T (%v), want ErrProviderUnavailable", err, err)
			}
		})
	}
}

func TestGeminiContents_InlinesChart(t *testing.T) {
	got := geminiContents([]Message{
		{Role: RoleUser, Content: "Describe the chart.", Images: []Image{chart}},
		{Role: RoleAssistant, Content: "ok"},
	})
	if len(got) != 2 {
		t.Fatalf("contents = %d, want 2", len(got))
	}
	if got[0].Role != string(genai.RoleUser) || got[1].Role != string(genai.RoleModel) {
		t.Errorf("roles = %q, %q", got[0].Role, got[1].Role)
	}
	parts := got[0].Parts
	if len(parts) != 2 || parts[0].InlineData == nil {
		t.Fatalf("parts = %+v, want inline image then text", parts)
	}
	if parts[0].InlineData.MIMEType != "image/png" || string(parts[0].InlineData.Data) != string(chart.Data) {
		t.Errorf("inline data = %+v", parts[0].InlineData)
	}
	if parts[1].Text != "Describe the chart." {
		t.Errorf("text = %q", parts[1].Text)
	}
}

func TestGeminiSchema(t *testing.T) {
	def := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic":          map[string]any{"type": "string"},
			"estimated_band": map[string]any{"type": "number", "minimum": 0.0, "maximum": 9.0},
			"strengths":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"anything":       map[string]any{"description": "untyped"},
		},
		"required":             []any{"topic", "estimated_band"},
		"additionalProperties": false,
	}

	s := geminiSchema(def)
	if s.Type != genai.TypeObject || len(s.Properties) != 4 {
		t.Fatalf("schema = %+v", s)
	}
	if m := s.Properties["estimated_band"].Maximum; m == nil || *m != 9 {
		t.Errorf("maximum = %v, want 9", m)
	}
	if s.Properties["strengths"].Items.Type != genai.TypeString {
		t.Errorf("items type = %s", s.Properties["strengths"].Items.Type)
	}
	if s.Properties["anything"].Type != "" {
		t.Errorf("untyped property got type %s", s.Properties["anything"].Type)
	}
	if len(s.Required) != 2 {
		t.Errorf("required = %v", s.Required)
	}
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		models map[string]string
		in     string
		want   string
	}{
		{anthropicModels, "claude-haiku", "claude-haiku-4-5-20251001"},
		{anthropicModels, "claude-sonnet-4-20250514", "claude-sonnet-4-20250514"},
		{openaiModels, "gpt-4o-mini", "gpt-4o-mini"},
		{geminiModels, "gemini-pro", "gemini-2.5-pro"},
		{geminiModels, "gemini-2.0-flash", "gemini-2.0-flash"},
	}
	for _, tt := range tests {
		if got := resolveModel(tt.in, tt.models); got != tt.want {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{Model: "gpt-4o"}); err == nil {
		t.Fatal("expected error for missing key")
	}
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "gpt-4o", BaseURL: "https://example.test/v1"})
	if err != nil || p.ModelID() != "gpt-4o" {
		t.Fatalf("NewOpenAIProvider = %v, %v", p, err)
	}
}

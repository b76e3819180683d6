package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
)

// Provider turns a scoring or task-generation prompt into schema-checked
// JSON. Implementations wrap one vendor SDK each.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID is the resolved model the provider sends requests to.
	ModelID() string
}

// Request is a single-turn prompt. The tutor only ever sends one user
// message, optionally with attached images (the Task 1 chart).
type Request struct {
	System   string
	Messages []Message

	// Schema, when set, switches the vendor into structured-output mode
	// and the reply is validated before it is returned.
	Schema *Schema

	MaxTokens   int
	Temperature float64
}

// Message is one turn of the conversation.
type Message struct {
	Role    Role
	Content string
	Images  []Image
}

// Image is an inline attachment sent alongside a message.
type Image struct {
	MediaType string
	Data      []byte
}

func (i Image) base64() string { return base64.StdEncoding.EncodeToString(i.Data) }

// dataURL renders the image the way OpenAI-compatible APIs accept inline
// content.
func (i Image) dataURL() string { return "data:" + i.MediaType + ";base64," + i.base64() }

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a named JSON Schema for structured output.
type Schema struct {
	Name        string // kebab-case, e.g. "writing-feedback"
	Description string
	Definition  map[string]any
}

// Normalised stop reasons.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"
)

// Response is the validated model output.
type Response struct {
	Content    json.RawMessage
	Usage      Usage
	Model      string
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

func newUsage(in, out int) Usage {
	return Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}

// finish turns a vendor reply into a Response. A structured reply cut short
// by the token limit is reported as ErrMaxTokensExceeded rather than as a
// schema failure so the retry layer does not spend another call on it.
func finish(req Request, text string, usage Usage, model, stop string) (*Response, error) {
	content := json.RawMessage(text)
	if req.Schema != nil {
		if stop == StopMaxTokens {
			return nil, &ErrMaxTokensExceeded{Content: content}
		}
		if err := validateResponse(req.Schema, content); err != nil {
			return nil, err
		}
	}
	return &Response{Content: content, Usage: usage, Model: model, StopReason: stop}, nil
}

// resolveModel maps a friendly model name to a provider model ID. Unknown
// names are used as-is.
func resolveModel(name string, models map[string]string) string {
	if id, ok := models[name]; ok {
		return id
	}
	return name
}

// Package tutor turns learner answers into examiner feedback and produces
// fresh exam prompts, using an llm.Provider for both.
package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bandcoach/bandcoach/internal/llm"
)

// LLM purposes recorded on every request event.
const (
	PurposeScoreSpeaking = "score-speaking"
	PurposeScoreWriting  = "score-writing"
	PurposeGenerateTask  = "generate-task"
	PurposeExplain       = "explain"
	PurposeDefine        = "define"
)

// languageNames spells out the learner languages the bot is translated
// into. Other codes are passed to the model as they are.
var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
}

func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	if code == "" {
		return languageNames["en"]
	}
	return code
}

// ErrEmptyQuery is returned for an /explain without a question or a
// /define without exactly one word.
var ErrEmptyQuery = errors.New("nothing to look up")

// Config holds generation limits for the tutor.
type Config struct {
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	TaskTemperature float64 `mapstructure:"task_temperature"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:       1024,
		Temperature:     0.2,
		TaskTemperature: 0.8,
	}
}

// Tutor performs AI scoring and task generation.
type Tutor struct {
	provider llm.Provider
	cfg      Config
}

// New creates a Tutor backed by provider.
func New(provider llm.Provider, cfg Config) *Tutor {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	return &Tutor{provider: provider, cfg: cfg}
}

// ScoreSpeaking assesses a transcribed spoken answer.
func (t *Tutor) ScoreSpeaking(ctx context.Context, req SpeakingRequest) (*SpeakingFeedback, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, llm.ErrEmptyTranscript
	}
	msg, err := render(speakingUserTemplate, req)
	if err != nil {
		return nil, fmt.Errorf("build speaking prompt: %w", err)
	}

	var out SpeakingFeedback
	if err := t.generate(llm.WithPurpose(ctx, PurposeScoreSpeaking), speakingSystemPrompt, llm.Message{Role: llm.RoleUser, Content: msg}, SpeakingSchema, t.cfg.Temperature, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScoreWriting assesses an essay.
func (t *Tutor) ScoreWriting(ctx context.Context, req WritingRequest) (*WritingFeedback, error) {
	msg, err := render(writingUserTemplate, req)
	if err != nil {
		return nil, fmt.Errorf("build writing prompt: %w", err)
	}

	var out WritingFeedback
	if err := t.generate(llm.WithPurpose(ctx, PurposeScoreWriting), writingSystemPrompt, llm.Message{Role: llm.RoleUser, Content: msg, Images: chartOf(req)}, WritingSchema, t.cfg.Temperature, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateTask produces a new speaking or writing prompt. A requested topic
// is kept even when the model returns a different label.
func (t *Tutor) GenerateTask(ctx context.Context, req TaskRequest) (*GeneratedTask, error) {
	msg, err := render(taskUserTemplate, req)
	if err != nil {
		return nil, fmt.Errorf("build task prompt: %w", err)
	}

	var out GeneratedTask
	if err := t.generate(llm.WithPurpose(ctx, PurposeGenerateTask), taskSystemPrompt, llm.Message{Role: llm.RoleUser, Content: msg}, TaskSchema, t.cfg.TaskTemperature, &out); err != nil {
		return nil, err
	}
	out.Prompt = strings.TrimSpace(out.Prompt)
	if out.Prompt == "" {
		return nil, &llm.ErrInvalidResponse{Err: fmt.Errorf("empty prompt")}
	}
	if req.Topic != "" {
		out.Topic = req.Topic
	}
	return &out, nil
}

// Explain answers a free-form question about the exam or the language.
func (t *Tutor) Explain(ctx context.Context, req ExplainRequest) (*Explanation, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	msg, err := render(explainUserTemplate, struct {
		ExplainRequest
		LanguageName string
	}{req, languageName(req.Language)})
	if err != nil {
		return nil, fmt.Errorf("build explain prompt: %w", err)
	}

	var out Explanation
	if err := t.generate(llm.WithPurpose(ctx, PurposeExplain), explainSystemPrompt, llm.Message{Role: llm.RoleUser, Content: msg}, ExplainSchema, t.cfg.Temperature, &out); err != nil {
		return nil, err
	}
	out.Explanation = strings.TrimSpace(out.Explanation)
	if out.Explanation == "" {
		return nil, &llm.ErrInvalidResponse{Err: fmt.Errorf("empty explanation")}
	}
	return &out, nil
}

// Define looks up one word. An entry without senses means the model did
// not recognise the word; callers report that rather than an error.
func (t *Tutor) Define(ctx context.Context, req DefineRequest) (*Definition, error) {
	req.Word = strings.TrimSpace(req.Word)
	if req.Word == "" || strings.ContainsAny(req.Word, " \t\n") {
		return nil, ErrEmptyQuery
	}
	msg, err := render(defineUserTemplate, struct {
		DefineRequest
		LanguageName string
	}{req, languageName(req.Language)})
	if err != nil {
		return nil, fmt.Errorf("build define prompt: %w", err)
	}

	var out Definition
	if err := t.generate(llm.WithPurpose(ctx, PurposeDefine), defineSystemPrompt, llm.Message{Role: llm.RoleUser, Content: msg}, DefineSchema, t.cfg.Temperature, &out); err != nil {
		return nil, err
	}
	if out.Word == "" {
		out.Word = req.Word
	}
	return &out, nil
}

func chartOf(req WritingRequest) []llm.Image {
	if !req.HasChart() {
		return nil
	}
	return []llm.Image{*req.Chart}
}

func (t *Tutor) generate(ctx context.Context, system string, user llm.Message, schema *llm.Schema, temp float64, out any) error {
	resp, err := t.provider.Generate(ctx, llm.Request{
		System:      system,
		Messages:    []llm.Message{user},
		Schema:      schema,
		MaxTokens:   t.cfg.MaxTokens,
		Temperature: temp,
	})
	if err != nil {
		return fmt.Errorf("LLM %s failed: %w", schema.Name, err)
	}
	if err := json.Unmarshal(resp.Content, out); err != nil {
		return &llm.ErrInvalidResponse{Content: resp.Content, Err: err}
	}
	return nil
}

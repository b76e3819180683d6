package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/store"
)

// EventRecorder persists model call events. store.EventRepo satisfies it.
type EventRecorder interface {
	AppendLLMRequest(ctx context.Context, ev store.LLMRequestEvent) error
}

// LoggingProvider records one llm_request_events row per attempt, so the
// rows under a retried call show every failure that preceded the result.
type LoggingProvider struct {
	inner    Provider
	provider string
	recorder EventRecorder
	log      *zap.Logger
}

// WithLogging wraps p. A nil recorder only writes log lines.
func WithLogging(p Provider, providerName string, recorder EventRecorder, log *zap.Logger) Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingProvider{inner: p, provider: providerName, recorder: recorder, log: log}
}

func (l *LoggingProvider) ModelID() string { return l.inner.ModelID() }

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	elapsed := time.Since(start)

	ev := store.LLMRequestEvent{
		Provider:    l.provider,
		Model:       l.inner.ModelID(),
		Purpose:     PurposeFrom(ctx),
		SessionID:   SessionFrom(ctx),
		LatencyMs:   elapsed.Milliseconds(),
		Success:     err == nil,
		RequestBody: transcript(req),
	}
	if resp != nil {
		ev.Model = resp.Model
		ev.InputTokens = resp.Usage.InputTokens
		ev.OutputTokens = resp.Usage.OutputTokens
		ev.ResponseBody = string(resp.Content)
	}

	log := l.log.With(
		zap.String("purpose", ev.Purpose),
		zap.String("model", ev.Model),
		zap.String("session_id", ev.SessionID),
		zap.Duration("latency", elapsed),
		zap.Int("input_tokens", ev.InputTokens),
		zap.Int("output_tokens", ev.OutputTokens),
	)
	if err != nil {
		ev.ErrorMessage = err.Error()
		log.Warn("llm request failed", zap.Error(err))
	} else {
		log.Debug("llm request")
	}

	if l.recorder != nil {
		// The caller's context may already be cancelled; the row is still wanted.
		if recErr := l.recorder.AppendLLMRequest(context.WithoutCancel(ctx), ev); recErr != nil {
			l.log.Warn("record llm request event", zap.Error(recErr))
		}
	}
	return resp, err
}

// transcript renders a request for the event log. Image bytes are
// summarised, not stored.
func transcript(req Request) string {
	var b strings.Builder
	if req.System != "" {
		fmt.Fprintf(&b, "[system]\n%s\n\n", req.System)
	}
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n", m.Role)
		for _, img := range m.Images {
			fmt.Fprintf(&b, "<image %s, %d bytes>\n", img.MediaType, len(img.Data))
		}
		fmt.Fprintf(&b, "%s\n\n", m.Content)
	}
	if req.Schema != nil {
		if def, err := json.Marshal(req.Schema.Definition); err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n%s\n", req.Schema.Name, def)
		}
	}
	return b.String()
}

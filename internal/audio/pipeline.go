package audio

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/llm"
)

// FetchFunc writes a downloaded voice note to dst.
type FetchFunc func(ctx context.Context, dst string) error

// Pipeline downloads, converts and transcribes a voice note. Temporary
// files never outlive a call.
type Pipeline struct {
	ws   *Workspace
	conv Converter
	stt  llm.Transcriber
	log  *zap.Logger
}

// NewPipeline wires the voice pipeline.
func NewPipeline(ws *Workspace, conv Converter, stt llm.Transcriber, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{ws: ws, conv: conv, stt: stt, log: log}
}

// Transcribe returns the text of the voice note produced by fetch.
func (p *Pipeline) Transcribe(ctx context.Context, fetch FetchFunc) (string, error) {
	raw := p.ws.Path(".ogg")
	converted := p.ws.Path(".mp3")
	defer func() {
		if err := p.ws.Remove(raw, converted); err != nil {
			p.log.Warn("remove temp audio", zap.Error(err))
		}
	}()

	if err := fetch(ctx, raw); err != nil {
		return "", fmt.Errorf("download voice: %w", err)
	}
	if err := p.conv.Convert(ctx, raw, converted); err != nil {
		return "", fmt.Errorf("convert voice: %w", err)
	}
	text, err := p.stt.Transcribe(ctx, converted)
	if err != nil {
		return "", fmt.Errorf("transcribe voice: %w", err)
	}
	return text, nil
}

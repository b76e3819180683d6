// Package audio handles voice notes and listening recordings: converting
// learner voice messages for transcription and resolving where listening
// audio is served from.
package audio

import (
	"context"
	"fmt"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Converter re-encodes an audio file.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// FFmpegConverter turns voice notes (OGG/Opus) into 16 kHz mono MP3, the
// format the transcription service handles best.
type FFmpegConverter struct {
	SampleRate int
	Bitrate    string
}

// NewFFmpegConverter returns a converter with speech-friendly defaults.
func NewFFmpegConverter() *FFmpegConverter {
	return &FFmpegConverter{SampleRate: 16000, Bitrate: "64k"}
}

func (c *FFmpegConverter) Convert(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := ffmpeg.Input(src).
		Output(dst, ffmpeg.KwArgs{
			"ar":  c.SampleRate,
			"ac":  1,
			"b:a": c.Bitrate,
		}).
		OverWriteOutput().
		Silent(true).
		Run()
	if err != nil {
		return fmt.Errorf("ffmpeg convert %s: %w", src, err)
	}
	return nil
}

// CopyConverter passes files through untouched. Used when ffmpeg is not
// installed and in tests.
type CopyConverter struct{}

func (CopyConverter) Convert(_ context.Context, src, dst string) error {
	return copyFile(src, dst)
}

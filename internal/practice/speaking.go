package practice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bandcoach/bandcoach/internal/callback"
	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/i18n"
	"github.com/bandcoach/bandcoach/internal/llm"
	"github.com/bandcoach/bandcoach/internal/scoring"
	"github.com/bandcoach/bandcoach/internal/store"
	"github.com/bandcoach/bandcoach/internal/transport"
	"github.com/bandcoach/bandcoach/internal/tutor"
)

// followUpPart is the discussion part generated after the chosen part.
const followUpPart = 3

// speakingFlow runs the chosen part, then a Part 3 discussion question on
// the same topic, scoring each voice answer.
type speakingFlow struct {
	e *Engine
}

func (f *speakingFlow) begin(ctx context.Context, t *turn) error {
	if !f.e.opts.GenerateTasks && len(f.e.Content.SpeakingTasks(1)) == 0 && len(f.e.Content.SpeakingTasks(2)) == 0 {
		return contentUnavailable("no speaking tasks")
	}
	kb := transport.Keyboard{
		{{Text: f.e.text(t, "speaking.part_1_button"), Data: callback.MustEncode(callback.Select(content.Speaking, "1"))}},
		{{Text: f.e.text(t, "speaking.part_2_button"), Data: callback.MustEncode(callback.Select(content.Speaking, "2"))}},
		f.e.cancelRow(t, content.Speaking),
	}
	f.e.hold(t)
	f.e.say(ctx, t, kb, "speaking.choose_part")
	return nil
}

func (f *speakingFlow) selectTask(ctx context.Context, t *turn, target string) error {
	part, err := callback.Int(target)
	if err != nil {
		return outOfSync("speaking part %q", target)
	}

	if gen := f.e.generate(ctx, t, tutor.TaskRequest{Kind: tutor.TaskSpeaking, Part: part}, "general.processing"); gen != nil {
		t.st.Prompt, t.st.Topic = gen.Prompt, gen.Topic
	} else if tmpl, ok := f.e.speakingTemplate(part, ""); ok {
		t.st.Prompt, t.st.Topic = tmpl.Prompt, tmpl.Topic
	} else {
		return contentUnavailable("no speaking part %d tasks", part)
	}

	t.st.Part = part
	t.st.PendingID = target
	t.st.ContentRef = target
	t.st.Cursor = 0
	if err := t.st.advance(StageAwaiting); err != nil {
		return err
	}
	if err := f.e.open(ctx, t, "part"+target); err != nil {
		return err
	}
	f.ask(ctx, t)
	return nil
}

func (f *speakingFlow) ask(ctx context.Context, t *turn) {
	f.e.say(ctx, t, transport.Keyboard{f.e.cancelRow(t, content.Speaking)}, "speaking.question", i18n.Args{
		"part":   t.st.Part,
		"prompt": t.st.Prompt,
	})
}

func (f *speakingFlow) answer(ctx context.Context, t *turn, in input) error {
	if in.Voice == nil {
		f.e.say(ctx, t, nil, "speaking.send_voice")
		return nil
	}
	st := t.st
	if f.e.Voice == nil {
		return scoringFailure(errors.New("voice transcription is not configured"))
	}

	if err := st.advance(StageScoring); err != nil {
		return err
	}
	if _, err := f.e.commit(ctx, t, nil); err != nil {
		return err
	}
	f.e.processing(ctx, t, "general.processing")

	ctx = llm.WithSession(ctx, st.SessionID)
	var transcript string
	var fb *tutor.SpeakingFeedback
	err := f.e.timed(content.Speaking, func() error {
		var err error
		transcript, err = f.e.Voice.Transcribe(ctx, func(ctx context.Context, dst string) error {
			return f.e.Messenger.Download(ctx, in.Voice.FileID, dst)
		})
		if err != nil {
			return err
		}
		if strings.TrimSpace(transcript) == "" {
			return llm.ErrEmptyTranscript
		}
		fb, err = f.e.Scorer.Speaking(ctx, tutor.SpeakingRequest{
			Part:       st.Part,
			Question:   st.Prompt,
			Transcript: transcript,
		})
		return err
	})
	if errors.Is(err, llm.ErrEmptyTranscript) {
		if err := st.advance(StageAwaiting); err != nil {
			return err
		}
		if _, err := f.e.commit(ctx, t, nil); err != nil {
			return err
		}
		f.e.say(ctx, t, nil, "speaking.empty_transcript")
		return nil
	}
	if err != nil {
		return scoringFailure(fmt.Errorf("speaking part %d: %w", st.Part, err))
	}
	f.e.say(ctx, t, nil, "speaking.transcript", i18n.Args{"transcript": transcript})

	raw, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshal speaking feedback: %w", err)
	}
	band := fb.EstimatedBand
	correct := band > 0
	entry := store.Entry{
		Step:       len(st.Bands),
		QuestionID: st.PendingID,
		Part:       st.Part,
		Question:   st.Prompt,
		Transcript: transcript,
		Band:       &band,
		Correct:    &correct,
		Feedback:   raw,
		At:         f.e.Now(),
	}
	record := func(sess *store.PracticeSession) error { return sess.RecordAnswer(entry) }
	st.Bands = append(st.Bands, band)
	st.Transcripts = append(st.Transcripts, transcript)

	if st.Part < followUpPart {
		if prompt, ok := f.followUp(ctx, t); ok {
			st.Part = followUpPart
			st.Prompt = prompt
			st.PendingID = strconv.Itoa(followUpPart)
			st.Cursor++
			if err := st.advance(StageAwaiting); err != nil {
				return err
			}
			if _, err := f.e.commit(ctx, t, record); err != nil {
				return err
			}
			f.e.send(ctx, t, f.e.speakingFeedback(t, fb), nil)
			f.ask(ctx, t)
			return nil
		}
	}

	st.PendingID = ""
	bands := st.Bands
	sess, err := f.e.complete(ctx, t, record, func(*store.PracticeSession) float64 {
		return scoring.MeanBand(bands)
	})
	if err != nil {
		return err
	}
	f.e.send(ctx, t, f.e.speakingFeedback(t, fb), nil)
	f.e.say(ctx, t, nil, "speaking.complete", i18n.Args{"band": formatBand(*sess.Score)})
	f.e.wrapUp(ctx, t, sess)
	return nil
}

// followUp produces the Part 3 question, keeping the topic of the part
// just answered.
func (f *speakingFlow) followUp(ctx context.Context, t *turn) (string, bool) {
	req := tutor.TaskRequest{
		Kind:     tutor.TaskSpeaking,
		Part:     followUpPart,
		Topic:    t.st.Topic,
		Previous: t.st.Prompt,
	}
	if gen := f.e.generate(ctx, t, req, "speaking.generating_follow_up"); gen != nil {
		return gen.Prompt, true
	}
	if tmpl, ok := f.e.speakingTemplate(followUpPart, t.st.Topic); ok {
		return tmpl.Prompt, true
	}
	return "", false
}

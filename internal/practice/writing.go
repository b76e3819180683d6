package practice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/callback"
	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/i18n"
	"github.com/bandcoach/bandcoach/internal/llm"
	"github.com/bandcoach/bandcoach/internal/store"
	"github.com/bandcoach/bandcoach/internal/transport"
	"github.com/bandcoach/bandcoach/internal/tutor"
)

// writingFlow sets one task and scores the essay sent back.
type writingFlow struct {
	e *Engine
}

func (f *writingFlow) begin(ctx context.Context, t *turn) error {
	if !f.e.opts.GenerateTasks && len(f.e.Content.WritingTasks(1)) == 0 && len(f.e.Content.WritingTasks(2)) == 0 {
		return contentUnavailable("no writing tasks")
	}
	kb := transport.Keyboard{
		{{Text: f.e.text(t, "writing.task_1_button"), Data: callback.MustEncode(callback.Select(content.Writing, "1"))}},
		{{Text: f.e.text(t, "writing.task_2_button"), Data: callback.MustEncode(callback.Select(content.Writing, "2"))}},
		f.e.cancelRow(t, content.Writing),
	}
	f.e.hold(t)
	f.e.say(ctx, t, kb, "writing.choose_task")
	return nil
}

func (f *writingFlow) selectTask(ctx context.Context, t *turn, target string) error {
	taskType, err := callback.Int(target)
	if err != nil {
		return outOfSync("writing task %q", target)
	}

	imageRef := ""
	if tmpl, ok := f.e.chartTemplate(taskType); ok {
		// A generated prompt has no chart to show, so illustrated Task 1
		// templates win over generation.
		t.st.Prompt, imageRef = tmpl.Prompt, tmpl.ImageRef
	} else if gen := f.e.generate(ctx, t, tutor.TaskRequest{Kind: tutor.TaskWriting, Part: taskType}, "writing.generating_task"); gen != nil {
		t.st.Prompt, t.st.Topic = gen.Prompt, gen.Topic
	} else if tmpl, ok := f.e.writingTemplate(taskType); ok {
		t.st.Prompt, imageRef = tmpl.Prompt, tmpl.ImageRef
	} else {
		return contentUnavailable("no writing task %d prompts", taskType)
	}

	t.st.Part = taskType
	t.st.ImageRef = imageRef
	t.st.PendingID = target
	t.st.ContentRef = target
	t.st.Cursor = 0
	if err := t.st.advance(StageAwaiting); err != nil {
		return err
	}
	if err := f.e.open(ctx, t, "task"+target); err != nil {
		return err
	}

	if imageRef != "" && f.e.Media != nil {
		if img, err := f.e.Media.Resolve(ctx, imageRef); err != nil {
			f.e.Log.Warn("resolve writing image", zap.String("ref", imageRef), zap.Error(err))
		} else if err := f.e.Messenger.SendPhoto(ctx, t.key.ChatID, img, ""); err != nil {
			f.e.Log.Warn("send writing image", zap.String("ref", imageRef), zap.Error(err))
		}
	}
	f.e.say(ctx, t, transport.Keyboard{f.e.cancelRow(t, content.Writing)}, "writing.prompt", i18n.Args{
		"task":   taskType,
		"prompt": t.st.Prompt,
	})
	return nil
}

func (f *writingFlow) answer(ctx context.Context, t *turn, in input) error {
	essay := strings.TrimSpace(in.Text)
	if in.Voice != nil || essay == "" {
		f.e.say(ctx, t, nil, "writing.send_text")
		return nil
	}
	st := t.st

	if err := st.advance(StageScoring); err != nil {
		return err
	}
	if _, err := f.e.commit(ctx, t, nil); err != nil {
		return err
	}
	f.e.processing(ctx, t, "writing.analysing")

	req := tutor.WritingRequest{
		TaskType: st.Part,
		Question: st.Prompt,
		Essay:    essay,
		Chart:    f.chart(ctx, st.ImageRef),
	}
	var fb *tutor.WritingFeedback
	err := f.e.timed(content.Writing, func() error {
		var err error
		fb, err = f.e.Scorer.Writing(llm.WithSession(ctx, st.SessionID), req)
		return err
	})
	if err != nil {
		return scoringFailure(fmt.Errorf("writing task %d: %w", st.Part, err))
	}

	raw, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshal writing feedback: %w", err)
	}
	band := fb.EstimatedBand
	correct := band > 0
	entry := store.Entry{
		Step:       0,
		QuestionID: st.PendingID,
		Part:       st.Part,
		Question:   st.Prompt,
		Answer:     essay,
		Band:       &band,
		Correct:    &correct,
		Feedback:   raw,
		At:         f.e.Now(),
	}
	st.Bands = append(st.Bands, band)
	st.PendingID = ""
	st.ImageRef = ""

	sess, err := f.e.complete(ctx, t, func(sess *store.PracticeSession) error {
		return sess.RecordAnswer(entry)
	}, func(*store.PracticeSession) float64 { return band })
	if err != nil {
		return err
	}
	f.e.send(ctx, t, f.e.writingFeedback(t, fb), nil)
	f.e.say(ctx, t, nil, "writing.complete", i18n.Args{"band": formatBand(band)})
	f.e.wrapUp(ctx, t, sess)
	return nil
}

// chart loads the Task 1 image for the scorer. Without it the essay is
// still scored, only against the question text.
func (f *writingFlow) chart(ctx context.Context, ref string) *llm.Image {
	if ref == "" || f.e.Media == nil {
		return nil
	}
	blob, err := f.e.Media.Load(ctx, ref)
	if err != nil {
		f.e.Log.Warn("load writing chart", zap.String("ref", ref), zap.Error(err))
		return nil
	}
	return &llm.Image{MediaType: blob.ContentType, Data: blob.Data}
}

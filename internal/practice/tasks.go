package practice

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/llm"
	"github.com/bandcoach/bandcoach/internal/tutor"
)

// generate asks the AI for a prompt when task generation is enabled. A
// nil result means the caller should use a content template.
func (e *Engine) generate(ctx context.Context, t *turn, req tutor.TaskRequest, ackKey string) *tutor.GeneratedTask {
	if !e.opts.GenerateTasks || e.Tasks == nil {
		return nil
	}
	e.processing(ctx, t, ackKey)
	task, err := e.Tasks.GenerateTask(llm.WithSession(ctx, t.st.SessionID), req)
	if err != nil {
		e.Log.Warn("task generation failed, using template", e.fields(t.st,
			zap.Int64("user_id", t.key.UserID), zap.Int("part", req.Part), zap.Error(err))...)
		return nil
	}
	return task
}

// speakingTemplate picks a template for part, preferring ones on topic.
func (e *Engine) speakingTemplate(part int, topic string) (content.SpeakingTask, bool) {
	tasks := e.Content.SpeakingTasks(part)
	if topic != "" {
		if onTopic := lo.Filter(tasks, func(s content.SpeakingTask, _ int) bool { return s.Topic == topic }); len(onTopic) > 0 {
			tasks = onTopic
		}
	}
	if len(tasks) == 0 {
		return content.SpeakingTask{}, false
	}
	return lo.Sample(tasks), true
}

func (e *Engine) writingTemplate(taskType int) (content.WritingTask, bool) {
	tasks := e.Content.WritingTasks(taskType)
	if len(tasks) == 0 {
		return content.WritingTask{}, false
	}
	return lo.Sample(tasks), true
}

// chartTemplate picks a Task 1 template that comes with a chart image.
func (e *Engine) chartTemplate(taskType int) (content.WritingTask, bool) {
	if taskType != 1 {
		return content.WritingTask{}, false
	}
	tasks := lo.Filter(e.Content.WritingTasks(taskType), func(w content.WritingTask, _ int) bool { return w.ImageRef != "" })
	if len(tasks) == 0 {
		return content.WritingTask{}, false
	}
	return lo.Sample(tasks), true
}

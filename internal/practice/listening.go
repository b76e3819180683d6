package practice

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/callback"
	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/i18n"
	"github.com/bandcoach/bandcoach/internal/scoring"
	"github.com/bandcoach/bandcoach/internal/store"
	"github.com/bandcoach/bandcoach/internal/transport"
)

// listeningFlow offers the named sets, plays the chosen recording and
// asks every question of the set.
type listeningFlow struct {
	e *Engine
}

func (f *listeningFlow) begin(ctx context.Context, t *turn) error {
	sets := f.e.Content.ListeningSets()
	if len(sets) == 0 {
		return contentUnavailable("no listening sets")
	}
	kb := make(transport.Keyboard, 0, len(sets)+1)
	for _, s := range sets {
		b, err := f.e.choice(s.Name, callback.Select(content.Listening, s.ID))
		if err != nil {
			return err
		}
		kb = append(kb, []transport.Button{b})
	}
	kb = append(kb, f.e.cancelRow(t, content.Listening))
	f.e.hold(t)
	f.e.say(ctx, t, kb, "listening.choose_set")
	return nil
}

func (f *listeningFlow) selectTask(ctx context.Context, t *turn, target string) error {
	set, ok := f.e.Content.ListeningSet(target)
	if !ok || len(set.Questions) == 0 {
		return contentUnavailable("listening set %q", target)
	}
	var media transport.Media
	if set.AudioRef != "" && f.e.Media != nil {
		m, err := f.e.Media.Resolve(ctx, set.AudioRef)
		if err != nil {
			return contentUnavailable("listening audio %q: %v", set.AudioRef, err)
		}
		media = m
	}

	kb, err := f.keyboard(t, set.Questions[0])
	if err != nil {
		return err
	}
	t.st.ContentRef = set.ID
	t.st.Cursor = 0
	f.pend(t.st, set.Questions[0])
	if err := t.st.advance(StageAwaiting); err != nil {
		return err
	}
	if err := f.e.open(ctx, t, set.ID); err != nil {
		return err
	}

	caption := f.e.text(t, "listening.audio_caption", i18n.Args{"name": set.Name})
	if media != (transport.Media{}) {
		if err := f.e.Messenger.SendAudio(ctx, t.key.ChatID, media, caption); err != nil {
			f.e.Log.Warn("send listening audio", zap.String("set", set.ID), zap.Error(err))
		}
	} else {
		f.e.send(ctx, t, caption, nil)
	}
	f.ask(ctx, t, set, kb)
	return nil
}

func (f *listeningFlow) pend(st *State, q content.ListeningQuestion) {
	st.PendingID = strconv.Itoa(q.Number)
	st.Expected = q.CorrectKey
	st.Prompt = q.Text
}

// keyboard builds the option buttons for q.
func (f *listeningFlow) keyboard(t *turn, q content.ListeningQuestion) (transport.Keyboard, error) {
	qnum := strconv.Itoa(q.Number)
	kb := make(transport.Keyboard, 0, len(q.Options)+1)
	for _, opt := range q.Options {
		b, err := f.e.choice(opt.Key+") "+opt.Text, callback.Answer(content.Listening, qnum, opt.Key))
		if err != nil {
			return nil, err
		}
		kb = append(kb, []transport.Button{b})
	}
	return append(kb, f.e.cancelRow(t, content.Listening)), nil
}

func (f *listeningFlow) ask(ctx context.Context, t *turn, set content.ListeningSet, kb transport.Keyboard) {
	q, _ := set.Question(t.st.Cursor)
	f.e.say(ctx, t, kb, "listening.question", i18n.Args{
		"number": t.st.Cursor + 1,
		"total":  len(set.Questions),
		"text":   q.Text,
	})
}

func (f *listeningFlow) answer(ctx context.Context, t *turn, in input) error {
	if !in.button() {
		f.e.say(ctx, t, nil, "general.use_buttons")
		return nil
	}
	st := t.st
	// Buttons from older messages carry no question number and apply to
	// the current question.
	if in.Target != "" && in.Target != st.PendingID {
		return outOfSync("listening answer for question %q, pending %q", in.Target, st.PendingID)
	}
	set, ok := f.e.Content.ListeningSet(st.ContentRef)
	if !ok {
		return outOfSync("listening set %q no longer exists", st.ContentRef)
	}
	q, ok := set.Question(st.Cursor)
	if !ok || strconv.Itoa(q.Number) != st.PendingID {
		return outOfSync("listening cursor %d does not hold question %s", st.Cursor, st.PendingID)
	}
	chosen, ok := q.Options.Lookup(in.Option)
	if !ok {
		return outOfSync("listening option %q", in.Option)
	}
	expected, _ := q.Options.Lookup(q.CorrectKey)

	if err := st.advance(StageScoring); err != nil {
		return err
	}
	correct := scoring.Choice(in.Option, q.CorrectKey)
	entry := store.Entry{
		Step:       st.Cursor,
		QuestionID: st.PendingID,
		Question:   q.Text,
		Answer:     in.Option + ") " + chosen,
		Expected:   q.CorrectKey + ") " + expected,
		Correct:    &correct,
		At:         f.e.Now(),
	}
	record := func(sess *store.PracticeSession) error { return sess.RecordAnswer(entry) }
	verdict := func() {
		if correct {
			f.e.say(ctx, t, nil, "listening.correct")
		} else {
			f.e.say(ctx, t, nil, "listening.incorrect", i18n.Args{"key": q.CorrectKey, "answer": expected})
		}
	}

	st.Cursor++
	if next, more := set.Question(st.Cursor); more {
		kb, err := f.keyboard(t, next)
		if err != nil {
			return err
		}
		f.pend(st, next)
		if err := st.advance(StageAwaiting); err != nil {
			return err
		}
		if _, err := f.e.commit(ctx, t, record); err != nil {
			return err
		}
		verdict()
		f.ask(ctx, t, set, kb)
		return nil
	}

	st.PendingID, st.Expected = "", ""
	sess, err := f.e.complete(ctx, t, record, func(s *store.PracticeSession) float64 {
		return scoring.Percent(s.CorrectAnswers, s.TotalQuestions)
	})
	if err != nil {
		return err
	}
	verdict()
	f.e.say(ctx, t, nil, "listening.complete", i18n.Args{
		"correct": sess.CorrectAnswers,
		"total":   sess.TotalQuestions,
		"percent": formatPercent(*sess.Score),
	})
	f.e.wrapUp(ctx, t, sess)
	return nil
}

package practice

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/callback"
	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/i18n"
	"github.com/bandcoach/bandcoach/internal/skill"
	"github.com/bandcoach/bandcoach/internal/store"
	"github.com/bandcoach/bandcoach/internal/transport"
)

func (e *Engine) text(t *turn, key string, args ...i18n.Args) string {
	return e.Text.T(t.lang, key, args...)
}

// say sends a translated message. Delivery failures are logged; the
// flow state is already committed by the time anything is sent.
func (e *Engine) say(ctx context.Context, t *turn, kb transport.Keyboard, key string, args ...i18n.Args) {
	e.send(ctx, t, e.text(t, key, args...), kb)
}

func (e *Engine) send(ctx context.Context, t *turn, text string, kb transport.Keyboard) {
	if err := e.Messenger.Send(ctx, t.key.ChatID, transport.Message{Text: text, Keyboard: kb}); err != nil {
		e.Log.Warn("send message", zap.Int64("chat_id", t.key.ChatID), zap.Error(err))
	}
}

// processing acknowledges input that will take a while to handle.
func (e *Engine) processing(ctx context.Context, t *turn, key string) {
	e.say(ctx, t, nil, key)
}

func (e *Engine) sectionMenu(t *turn) transport.Keyboard {
	row := func(a, b content.Section) []transport.Button {
		return []transport.Button{e.startButton(t, a), e.startButton(t, b)}
	}
	return transport.Keyboard{
		row(content.Speaking, content.Writing),
		row(content.Reading, content.Listening),
	}
}

func (e *Engine) startButton(t *turn, s content.Section) transport.Button {
	return transport.Button{
		Text: e.text(t, "sections."+string(s)),
		Data: callback.MustEncode(callback.Start(s)),
	}
}

func (e *Engine) cancelRow(t *turn, s content.Section) []transport.Button {
	return []transport.Button{{
		Text: e.text(t, "general.cancel_button"),
		Data: callback.MustEncode(callback.Cancel(s)),
	}}
}

// choice builds a button whose payload comes from content. Payloads that
// cannot be encoded are internal failures.
func (e *Engine) choice(text string, d callback.Data) (transport.Button, error) {
	data, err := callback.Encode(d)
	if err != nil {
		return transport.Button{}, internalFailure(fmt.Errorf("button %q: %w", text, err))
	}
	return transport.Button{Text: text, Data: data}, nil
}

// hold keeps a selecting state in memory. No session exists yet.
func (e *Engine) hold(t *turn) {
	e.states.Put(t.st)
}

// open creates the session row for t.st, which must already describe the
// first question, and makes the state current.
func (e *Engine) open(ctx context.Context, t *turn, variant string) error {
	if _, err := e.Learners.Ensure(ctx, store.LearnerProfile{
		UserID:    t.ev.User.ID,
		FirstName: t.ev.User.FirstName,
		Username:  t.ev.User.Username,
		Language:  t.lang,
	}); err != nil {
		return persistence(fmt.Errorf("ensure learner: %w", err))
	}

	sess := &store.PracticeSession{
		UserID:  t.key.UserID,
		ChatID:  t.key.ChatID,
		Section: t.st.Section,
		Variant: variant,
		Status:  store.StatusActive,
	}
	if err := t.st.persist(sess); err != nil {
		return err
	}
	if err := e.Sessions.Create(ctx, sess); err != nil {
		return persistence(fmt.Errorf("create session: %w", err))
	}
	t.st.SessionID = sess.ID
	e.states.Put(t.st)
	e.Observer.FlowStarted(string(t.st.Section))
	e.Log.Info("practice started", e.fields(t.st, zap.Int64("user_id", t.key.UserID), zap.String("variant", variant))...)
	return nil
}

// commit writes apply and the current state to the session row in one
// transaction. Only after it succeeds does the in-memory state advance.
func (e *Engine) commit(ctx context.Context, t *turn, apply func(*store.PracticeSession) error) (*store.PracticeSession, error) {
	sess, err := e.Sessions.Update(ctx, t.st.SessionID, func(sess *store.PracticeSession) error {
		if apply != nil {
			if err := apply(sess); err != nil {
				return err
			}
		}
		return t.st.persist(sess)
	})
	if err != nil {
		return nil, persistence(err)
	}
	if t.st.Stage.Terminal() {
		e.states.Delete(t.key)
	} else {
		e.states.Put(t.st)
	}
	return sess, nil
}

// complete records the last answer and finalizes the session in one
// transaction. score sees the counters after apply ran.
func (e *Engine) complete(ctx context.Context, t *turn, apply func(*store.PracticeSession) error, score func(*store.PracticeSession) float64) (*store.PracticeSession, error) {
	if err := t.st.advance(StageCompleted); err != nil {
		return nil, err
	}
	now := e.Now()
	return e.commit(ctx, t, func(sess *store.PracticeSession) error {
		if apply != nil {
			if err := apply(sess); err != nil {
				return err
			}
		}
		return sess.Complete(now, score(sess))
	})
}

// wrapUp runs after a session completed: learner stats, skill level and
// the next recommendation. The session is already final, so failures
// here are logged rather than surfaced.
func (e *Engine) wrapUp(ctx context.Context, t *turn, sess *store.PracticeSession) {
	e.Observer.FlowFinished(string(sess.Section), "completed")
	e.Log.Info("practice completed", zap.String("session_id", sess.ID), zap.Int64("user_id", sess.UserID),
		zap.String("section", string(sess.Section)), zap.Int("total", sess.TotalQuestions),
		zap.Int("correct", sess.CorrectAnswers), zap.Float64p("score", sess.Score))

	var change *skill.Transition
	_, err := e.Learners.Update(ctx, sess.UserID, func(p *store.LearnerProfile) error {
		p.RecordSession(sess)
		outcome := skill.Outcome{
			SessionID:      sess.ID,
			TotalQuestions: sess.TotalQuestions,
			CorrectAnswers: sess.CorrectAnswers,
		}
		if sess.Section.AIScored() {
			outcome.Band = sess.Score
		}
		change = e.Assessor.Assess(p.UserID, p.SkillLevel, outcome)
		if change != nil {
			p.SkillLevel = change.To
		}
		return nil
	})
	if err != nil {
		change = nil
		e.Log.Error("update learner after session", zap.String("session_id", sess.ID), zap.Int64("user_id", sess.UserID), zap.Error(err))
	}

	if change != nil {
		e.Log.Info("skill level changed", zap.Int64("user_id", change.UserID),
			zap.String("from", string(change.From)), zap.String("to", string(change.To)),
			zap.Float64("fraction", change.Fraction))
		key := "practice.level_down"
		if change.Up() {
			key = "practice.level_up"
		}
		e.say(ctx, t, nil, key, i18n.Args{
			"from": e.levelName(t, change.From),
			"to":   e.levelName(t, change.To),
		})
	}

	next := e.Recommender.Next(sess.Section)
	e.say(ctx, t, transport.Keyboard{{e.startButton(t, next)}}, "practice.recommend")
}

// timed runs fn and reports its duration as scoring time for section.
func (e *Engine) timed(section content.Section, fn func() error) error {
	start := time.Now()
	err := fn()
	e.Observer.ObserveScoring(string(section), time.Since(start))
	return err
}

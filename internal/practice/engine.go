// Package practice runs the IELTS practice flows: it turns chat events
// into exercise steps, grades answers and keeps the learner's progress.
package practice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/audio"
	"github.com/bandcoach/bandcoach/internal/callback"
	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/i18n"
	"github.com/bandcoach/bandcoach/internal/recommend"
	"github.com/bandcoach/bandcoach/internal/scoring"
	"github.com/bandcoach/bandcoach/internal/skill"
	"github.com/bandcoach/bandcoach/internal/store"
	"github.com/bandcoach/bandcoach/internal/transport"
	"github.com/bandcoach/bandcoach/internal/tutor"
)

// TaskGenerator produces fresh speaking and writing prompts.
// *tutor.Tutor implements it.
type TaskGenerator interface {
	GenerateTask(ctx context.Context, req tutor.TaskRequest) (*tutor.GeneratedTask, error)
}

// Assistant answers the /explain and /define commands. *tutor.Tutor
// implements it.
type Assistant interface {
	Explain(ctx context.Context, req tutor.ExplainRequest) (*tutor.Explanation, error)
	Define(ctx context.Context, req tutor.DefineRequest) (*tutor.Definition, error)
}

// VoiceTranscriber turns a voice note into text. *audio.Pipeline
// implements it.
type VoiceTranscriber interface {
	Transcribe(ctx context.Context, fetch audio.FetchFunc) (string, error)
}

// Observer receives flow telemetry. *metrics.Metrics implements it.
type Observer interface {
	FlowStarted(section string)
	FlowFinished(section, outcome string)
	FlowError(kind string)
	ObserveScoring(section string, d time.Duration)
}

// Deps are the collaborators the engine needs. Tasks, Assistant, Voice,
// Media and Observer are optional.
type Deps struct {
	Content     content.Provider
	Sessions    store.SessionRepo
	Learners    store.LearnerRepo
	Messenger   transport.Messenger
	Scorer      *scoring.Scorer
	Tasks       TaskGenerator
	Assistant   Assistant
	Voice       VoiceTranscriber
	Media       audio.Storage
	Assessor    *skill.Assessor
	Recommender *recommend.Recommender
	Text        *i18n.Bundle
	Observer    Observer
	Log         *zap.Logger
	Now         func() time.Time
}

// Options tune flow behaviour.
type Options struct {
	// GenerateTasks asks the AI for speaking and writing prompts, falling
	// back to the content templates when generation fails.
	GenerateTasks bool
}

// Engine routes events to the per-section flows.
type Engine struct {
	Deps
	opts     Options
	states   *Registry
	flows    map[content.Section]flow
	dispatch *Dispatcher
}

// flow is one section's implementation of the stage machine.
type flow interface {
	// begin enters SelectingTask: show the choices, or open the exercise
	// directly when there is nothing to choose.
	begin(ctx context.Context, t *turn) error
	// selectTask leaves SelectingTask for the chosen exercise.
	selectTask(ctx context.Context, t *turn, target string) error
	// answer handles input while AwaitingResponse.
	answer(ctx context.Context, t *turn, in input) error
}

// input is a learner answer in any modality.
type input struct {
	Target string // question id or number from an answer button
	Option string // option key or index from an answer button
	Text   string
	Voice  *transport.Voice
}

func (in input) button() bool { return in.Option != "" }

// turn is the context of handling one event.
type turn struct {
	key  Key
	ev   transport.Event
	lang string
	st   *State // working copy; nil when no flow is running
}

// New validates deps and builds an engine.
func New(d Deps, opts Options) (*Engine, error) {
	switch {
	case d.Content == nil:
		return nil, errors.New("practice: content provider required")
	case d.Sessions == nil || d.Learners == nil:
		return nil, errors.New("practice: session and learner stores required")
	case d.Messenger == nil:
		return nil, errors.New("practice: messenger required")
	case d.Scorer == nil:
		return nil, errors.New("practice: scorer required")
	case d.Assessor == nil:
		return nil, errors.New("practice: skill assessor required")
	case d.Text == nil:
		return nil, errors.New("practice: text bundle required")
	}
	if err := callback.Check(d.Content); err != nil {
		return nil, fmt.Errorf("practice: content cannot be offered as buttons: %w", err)
	}
	if d.Recommender == nil {
		d.Recommender = recommend.New(nil)
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}

	e := &Engine{Deps: d, opts: opts, states: NewRegistry()}
	e.flows = map[content.Section]flow{
		content.Reading:   &readingFlow{e: e},
		content.Listening: &listeningFlow{e: e},
		content.Speaking:  &speakingFlow{e: e},
		content.Writing:   &writingFlow{e: e},
	}
	e.dispatch = NewDispatcher(e.Handle)
	return e, nil
}

// Submit queues ev behind earlier events of the same conversation.
func (e *Engine) Submit(ctx context.Context, ev transport.Event) bool {
	return e.dispatch.Submit(ctx, ev)
}

// Wait blocks until queued events have been handled.
func (e *Engine) Wait() { e.dispatch.Wait() }

// Close stops accepting events and drains the queues.
func (e *Engine) Close() { e.dispatch.Close() }

// States exposes the conversation registry.
func (e *Engine) States() *Registry { return e.states }

// Handle processes one event synchronously. Errors never escape: each is
// turned into one message for the learner and one log line.
func (e *Engine) Handle(ctx context.Context, ev transport.Event) {
	key := Key{UserID: ev.User.ID, ChatID: ev.ChatID}
	unlock := e.states.Lock(key)
	defer unlock()

	t := &turn{key: key, ev: ev, lang: e.Text.Detect(ev.User.LanguageCode)}
	defer func() {
		if r := recover(); r != nil {
			e.Log.Error("panic while handling event", zap.Any("panic", r), zap.Stack("stack"))
			e.fail(ctx, t, internalFailure(fmt.Errorf("panic: %v", r)))
		}
	}()
	if ev.Kind == transport.KindCallback && ev.CallbackID != "" {
		if err := e.Messenger.AnswerCallback(ctx, ev.CallbackID); err != nil {
			e.Log.Debug("answer callback", zap.Error(err))
		}
	}

	if err := e.route(ctx, t); err != nil {
		e.fail(ctx, t, err)
	}
}

func (e *Engine) route(ctx context.Context, t *turn) error {
	switch t.ev.Kind {
	case transport.KindCommand:
		return e.command(ctx, t)
	case transport.KindCallback:
		return e.button(ctx, t)
	case transport.KindText, transport.KindVoice:
		return e.message(ctx, t)
	}
	return nil
}

func (e *Engine) command(ctx context.Context, t *turn) error {
	switch strings.ToLower(t.ev.Command) {
	case "start":
		return e.welcome(ctx, t)
	case "practice":
		e.say(ctx, t, e.sectionMenu(t), "practice.select_section")
		return nil
	case "stats":
		return e.stats(ctx, t)
	case "cancel":
		if err := e.load(ctx, t); err != nil {
			return err
		}
		return e.cancel(ctx, t, true)
	case "help":
		e.say(ctx, t, nil, "commands.help")
		return nil
	case "explain":
		e.explain(ctx, t)
		return nil
	case "define":
		e.define(ctx, t)
		return nil
	}
	e.say(ctx, t, nil, "general.unknown_input")
	return nil
}

func (e *Engine) button(ctx context.Context, t *turn) error {
	d, err := callback.Decode(t.ev.Data)
	if err != nil {
		e.Log.Warn("undecodable callback", zap.String("data", t.ev.Data), zap.Int64("user_id", t.key.UserID))
		return outOfSync("callback %q", t.ev.Data)
	}
	if err := e.load(ctx, t); err != nil {
		return err
	}

	switch d.Action {
	case callback.ActionStart:
		if t.st != nil {
			if err := e.cancel(ctx, t, false); err != nil {
				return err
			}
		}
		t.st = &State{Key: t.key, Section: d.Section, Stage: StageSelecting, Lang: t.lang}
		return e.flows[d.Section].begin(ctx, t)

	case callback.ActionCancel:
		return e.cancel(ctx, t, true)

	case callback.ActionSelect:
		if t.st == nil || t.st.Section != d.Section || t.st.Stage != StageSelecting {
			return outOfSync("select %s/%s", d.Section, d.Target)
		}
		return e.flows[d.Section].selectTask(ctx, t, d.Target)

	case callback.ActionAnswer:
		if t.st == nil || t.st.Section != d.Section || t.st.Stage != StageAwaiting {
			return outOfSync("answer %s/%s", d.Section, d.Target)
		}
		return e.flows[d.Section].answer(ctx, t, input{Target: d.Target, Option: d.Option})
	}
	return outOfSync("action %q", d.Action)
}

func (e *Engine) message(ctx context.Context, t *turn) error {
	if err := e.load(ctx, t); err != nil {
		return err
	}
	if t.st == nil {
		e.say(ctx, t, nil, "general.unknown_input")
		return nil
	}
	switch t.st.Stage {
	case StageSelecting:
		e.say(ctx, t, nil, "general.use_buttons")
		return nil
	case StageAwaiting:
		in := input{Text: t.ev.Text, Voice: t.ev.Voice}
		return e.flows[t.st.Section].answer(ctx, t, in)
	}
	return outOfSync("%s input in stage %s", t.ev.Kind, t.st.Stage)
}

// load fills t.st from memory, or resumes the newest active session.
func (e *Engine) load(ctx context.Context, t *turn) error {
	if st, ok := e.states.Get(t.key); ok {
		t.st = st
		return nil
	}
	sess, err := e.Sessions.ActiveFor(ctx, t.key.UserID, t.key.ChatID)
	if err != nil {
		return &FlowError{Kind: KindPersistence, Err: fmt.Errorf("find active session: %w", err)}
	}
	if sess == nil {
		return nil
	}
	st, err := restore(sess)
	if err != nil {
		e.Log.Warn("cannot resume session", zap.String("session_id", sess.ID), zap.Error(err))
		return nil
	}
	e.Log.Info("resumed session",
		zap.String("session_id", st.SessionID),
		zap.String("section", string(st.Section)),
		zap.Int("cursor", st.Cursor),
	)
	e.states.Put(st)
	t.st = st.clone()
	return nil
}

// cancel ends the running flow. The session row is kept as cancelled and
// the in-memory state is discarded before anything else.
func (e *Engine) cancel(ctx context.Context, t *turn, notify bool) error {
	if t.st == nil {
		if notify {
			e.say(ctx, t, nil, "general.no_active_practice")
		}
		return nil
	}
	st := t.st
	e.states.Delete(t.key)
	t.st = nil

	if st.SessionID != "" {
		_, err := e.Sessions.Update(ctx, st.SessionID, func(sess *store.PracticeSession) error {
			sess.Stage = string(StageCancelled)
			return sess.Cancel()
		})
		if err != nil && !errors.Is(err, store.ErrNotActive) {
			e.Log.Error("cancel session", e.fields(st, zap.Int64("user_id", t.key.UserID), zap.Error(err))...)
		}
		e.Observer.FlowFinished(string(st.Section), "cancelled")
	}
	e.Log.Info("practice cancelled", e.fields(st, zap.Int64("user_id", t.key.UserID))...)
	if notify {
		e.say(ctx, t, nil, "general.practice_cancelled")
	}
	return nil
}

// fail is the error boundary: classify, log, clean up, tell the learner.
func (e *Engine) fail(ctx context.Context, t *turn, err error) {
	kind := KindOf(err)
	st := t.st
	e.Observer.FlowError(string(kind))
	e.Log.Error("practice step failed", e.fields(st,
		zap.Int64("user_id", t.key.UserID),
		zap.Int64("chat_id", t.key.ChatID),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)...)

	args := i18n.Args{}
	switch kind {
	case KindContentUnavailable:
		if st != nil {
			args["section"] = e.Text.T(t.lang, "sections."+string(st.Section))
		}
		if st != nil && st.SessionID == "" {
			e.states.Delete(t.key)
		}
	case KindOutOfSync:
		e.states.Delete(t.key)
	case KindScoringFailure:
		e.states.Delete(t.key)
		if st != nil && st.SessionID != "" {
			_, uerr := e.Sessions.Update(ctx, st.SessionID, func(sess *store.PracticeSession) error {
				sess.Stage = string(StageCancelled)
				return sess.Fail(e.Now(), st.Cursor, err.Error())
			})
			if uerr != nil {
				e.Log.Error("mark session failed", e.fields(st, zap.Int64("user_id", t.key.UserID), zap.Error(uerr))...)
			}
			e.Observer.FlowFinished(string(st.Section), "failed")
		}
	}
	e.say(ctx, t, nil, messageKey(kind), args)
}

// fields are the log fields identifying a flow. Without a flow only the
// extra fields are returned.
func (e *Engine) fields(st *State, extra ...zap.Field) []zap.Field {
	if st == nil {
		return extra
	}
	f := []zap.Field{
		zap.String("session_id", st.SessionID),
		zap.String("section", string(st.Section)),
		zap.String("stage", string(st.Stage)),
	}
	return append(f, extra...)
}

type nopObserver struct{}

func (nopObserver) FlowStarted(string)                   {}
func (nopObserver) FlowFinished(string, string)          {}
func (nopObserver) FlowError(string)                     {}
func (nopObserver) ObserveScoring(string, time.Duration) {}

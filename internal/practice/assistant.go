package practice

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/i18n"
	"github.com/bandcoach/bandcoach/internal/tutor"
)

// explain answers /explain <query>. It runs beside any practice in
// progress and never touches the conversation state.
func (e *Engine) explain(ctx context.Context, t *turn) {
	query := strings.TrimSpace(t.ev.Args)
	if query == "" {
		e.say(ctx, t, nil, "assistant.explain_usage")
		return
	}
	if e.Assistant == nil {
		e.say(ctx, t, nil, "assistant.unavailable")
		return
	}
	e.processing(ctx, t, "assistant.explaining")

	ans, err := e.Assistant.Explain(ctx, tutor.ExplainRequest{Query: query, Language: t.lang})
	if err != nil {
		e.Log.Warn("explain failed", zap.Int64("user_id", t.key.UserID), zap.String("query", query), zap.Error(err))
		e.say(ctx, t, nil, "assistant.explain_failed")
		return
	}
	e.send(ctx, t, e.renderExplanation(t, ans), nil)
}

// define answers /define <word>.
func (e *Engine) define(ctx context.Context, t *turn) {
	args := strings.Fields(t.ev.Args)
	if len(args) != 1 {
		e.say(ctx, t, nil, "assistant.define_usage")
		return
	}
	word := args[0]
	if e.Assistant == nil {
		e.say(ctx, t, nil, "assistant.unavailable")
		return
	}
	e.processing(ctx, t, "assistant.defining")

	def, err := e.Assistant.Define(ctx, tutor.DefineRequest{Word: word, Language: t.lang})
	if err != nil {
		e.Log.Warn("define failed", zap.Int64("user_id", t.key.UserID), zap.String("word", word), zap.Error(err))
		e.say(ctx, t, nil, "assistant.define_failed", i18n.Args{"word": word})
		return
	}
	if len(def.Senses) == 0 {
		e.say(ctx, t, nil, "assistant.define_failed", i18n.Args{"word": word})
		return
	}
	e.send(ctx, t, e.renderDefinition(t, def), nil)
}

func (e *Engine) renderExplanation(t *turn, ans *tutor.Explanation) string {
	out := ans.Explanation
	if len(ans.Examples) > 0 {
		out += fmt.Sprintf("\n\n%s:\n%s", e.text(t, "assistant.examples_label"), bulletList(ans.Examples))
	}
	return out
}

func (e *Engine) renderDefinition(t *turn, def *tutor.Definition) string {
	var b strings.Builder
	b.WriteString(e.text(t, "assistant.definition_title", i18n.Args{"word": def.Word, "pos": def.PartOfSpeech}))
	for i, s := range def.Senses {
		fmt.Fprintf(&b, "\n%d. %s", i+1, s)
	}
	if def.Example != "" {
		fmt.Fprintf(&b, "\n\n%s: %s", e.text(t, "assistant.example_label"), def.Example)
	}
	if len(def.Synonyms) > 0 {
		fmt.Fprintf(&b, "\n%s: %s", e.text(t, "assistant.synonyms_label"), strings.Join(def.Synonyms, ", "))
	}
	return b.String()
}

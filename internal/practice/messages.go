package practice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/i18n"
	"github.com/bandcoach/bandcoach/internal/skill"
	"github.com/bandcoach/bandcoach/internal/store"
	"github.com/bandcoach/bandcoach/internal/tutor"
)

func (e *Engine) levelName(t *turn, l skill.Level) string {
	key := strings.ReplaceAll(strings.ToLower(string(l)), "-", "_")
	return e.text(t, "levels."+key)
}

func formatBand(b float64) string {
	return fmt.Sprintf("%.1f", b)
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.0f", p)
}

func bulletList(items []string) string {
	items = lo.Filter(items, func(s string, _ int) bool { return strings.TrimSpace(s) != "" })
	if len(items) == 0 {
		return "-"
	}
	return "- " + strings.Join(items, "\n- ")
}

type feedbackSection struct {
	label string
	body  string
}

func (e *Engine) renderFeedback(t *turn, band float64, sections []feedbackSection) string {
	var b strings.Builder
	b.WriteString(e.text(t, "feedback.summary_title"))
	fmt.Fprintf(&b, "\n\n%s: %s", e.text(t, "feedback.estimated_band_label"), formatBand(band))
	for _, s := range sections {
		if strings.TrimSpace(s.body) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n%s:\n%s", e.text(t, s.label), s.body)
	}
	return b.String()
}

func (e *Engine) speakingFeedback(t *turn, fb *tutor.SpeakingFeedback) string {
	return e.renderFeedback(t, fb.EstimatedBand, []feedbackSection{
		{"feedback.strengths_label", bulletList(fb.Strengths)},
		{"feedback.improvements_label", bulletList(fb.AreasForImprovement)},
		{"feedback.vocabulary_label", fb.VocabularyFeedback},
		{"feedback.grammar_label", fb.GrammarFeedback},
		{"feedback.fluency_label", fb.FluencyFeedback},
		{"feedback.pronunciation_label", fb.PronunciationFeedback},
		{"feedback.next_tip_label", fb.TipsForNext},
	})
}

func (e *Engine) writingFeedback(t *turn, fb *tutor.WritingFeedback) string {
	return e.renderFeedback(t, fb.EstimatedBand, []feedbackSection{
		{"feedback.task_achievement_label", fb.TaskAchievement},
		{"feedback.coherence_label", fb.CoherenceCohesion},
		{"feedback.lexical_label", fb.LexicalResource},
		{"feedback.grammar_range_label", fb.GrammaticalRangeAccuracy},
		{"feedback.strengths_label", bulletList(fb.Strengths)},
		{"feedback.improvements_label", bulletList(fb.AreasForImprovement)},
	})
}

func (e *Engine) welcome(ctx context.Context, t *turn) error {
	u := t.ev.User
	_, err := e.Learners.Get(ctx, u.ID)
	returning := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return persistence(fmt.Errorf("load learner: %w", err))
	}
	if _, err := e.Learners.Ensure(ctx, store.LearnerProfile{
		UserID:    u.ID,
		FirstName: u.FirstName,
		Username:  u.Username,
		Language:  t.lang,
	}); err != nil {
		return persistence(fmt.Errorf("register learner: %w", err))
	}

	name := lo.Ternary(u.FirstName != "", u.FirstName, u.Username)
	key := lo.Ternary(returning, "commands.welcome_back", "commands.welcome")
	e.say(ctx, t, e.sectionMenu(t), key, i18n.Args{"name": name})
	return nil
}

func (e *Engine) stats(ctx context.Context, t *turn) error {
	p, err := e.Learners.Get(ctx, t.key.UserID)
	if errors.Is(err, store.ErrNotFound) {
		e.say(ctx, t, nil, "stats.none")
		return nil
	}
	if err != nil {
		return persistence(fmt.Errorf("load learner: %w", err))
	}
	e.send(ctx, t, e.renderStats(t, p), nil)
	return nil
}

func (e *Engine) renderStats(t *turn, p *store.LearnerProfile) string {
	lines := []string{
		e.text(t, "stats.title"),
		e.text(t, "stats.level", i18n.Args{"level": e.levelName(t, p.SkillLevel)}),
	}
	practised := lo.Filter(content.AllSections(), func(s content.Section, _ int) bool {
		return p.Stats[s].Sessions > 0
	})
	if len(practised) == 0 {
		return strings.Join(append(lines, e.text(t, "stats.none")), "\n")
	}
	for _, s := range practised {
		st := p.Stats[s]
		name := e.text(t, "sections."+string(s))
		if s.AIScored() {
			band := "-"
			if st.LastBand != nil {
				band = formatBand(*st.LastBand)
			}
			lines = append(lines, e.text(t, "stats.section_band_line", i18n.Args{
				"section": name, "sessions": st.Sessions, "band": band,
			}))
			continue
		}
		score := "-"
		if st.LastScore != nil {
			score = formatPercent(*st.LastScore) + "%"
		}
		lines = append(lines, e.text(t, "stats.section_line", i18n.Args{
			"section": name, "sessions": st.Sessions, "correct": st.Correct, "total": st.Total, "score": score,
		}))
	}
	return strings.Join(lines, "\n")
}

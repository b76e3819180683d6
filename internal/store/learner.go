package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/skill"
)

// LearnerProfile is the per-user aggregate the practice engine maintains.
type LearnerProfile struct {
	UserID     int64
	FirstName  string
	Username   string
	Language   string
	SkillLevel skill.Level
	Stats      map[content.Section]SectionStats
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SectionStats aggregates completed sessions for one section.
type SectionStats struct {
	Correct       int        `json:"correct"`
	Total         int        `json:"total"`
	Sessions      int        `json:"sessions"`
	LastScore     *float64   `json:"last_score,omitempty"`
	LastBand      *float64   `json:"last_band,omitempty"`
	LastPracticed *time.Time `json:"last_practiced,omitempty"`
}

// Accuracy returns correct/total, or 0 when nothing was answered.
func (s SectionStats) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// RecordSession folds a completed session into the section stats.
func (p *LearnerProfile) RecordSession(sess *PracticeSession) {
	if p.Stats == nil {
		p.Stats = make(map[content.Section]SectionStats)
	}
	st := p.Stats[sess.Section]
	st.Correct += sess.CorrectAnswers
	st.Total += sess.TotalQuestions
	st.Sessions++
	if sess.Score != nil {
		v := *sess.Score
		st.LastScore = &v
		if sess.Section.AIScored() {
			st.LastBand = &v
		}
	}
	if sess.CompletedAt != nil {
		t := *sess.CompletedAt
		st.LastPracticed = &t
	}
	p.Stats[sess.Section] = st
}

// LearnerRepo persists learner profiles.
type LearnerRepo interface {
	// Ensure creates the profile if it does not exist and refreshes the
	// display fields if it does. It returns the stored profile.
	Ensure(ctx context.Context, p LearnerProfile) (*LearnerProfile, error)

	// Get returns the profile or ErrNotFound.
	Get(ctx context.Context, userID int64) (*LearnerProfile, error)

	// Update loads the profile, applies fn and writes it back in one
	// transaction. Missing profiles are created with defaults first.
	Update(ctx context.Context, userID int64, fn func(*LearnerProfile) error) (*LearnerProfile, error)
}

var learnerColumns = []string{
	"user_id", "first_name", "username", "language", "skill_level", "stats", "created_at", "updated_at",
}

type learnerRepo struct {
	s *Store
}

func (r *learnerRepo) Ensure(ctx context.Context, p LearnerProfile) (*LearnerProfile, error) {
	var out *LearnerProfile
	err := r.s.withTx(ctx, func(conn dialect.ExecQuerier) error {
		if err := r.insertIfMissing(ctx, conn, p); err != nil {
			return err
		}
		cur, err := r.get(ctx, conn, p.UserID, true)
		if err != nil {
			return err
		}
		if (p.FirstName == "" || p.FirstName == cur.FirstName) &&
			(p.Username == "" || p.Username == cur.Username) &&
			(p.Language == "" || p.Language == cur.Language) {
			out = cur
			return nil
		}
		if p.FirstName != "" {
			cur.FirstName = p.FirstName
		}
		if p.Username != "" {
			cur.Username = p.Username
		}
		if p.Language != "" {
			cur.Language = p.Language
		}
		if err := r.write(ctx, conn, cur); err != nil {
			return err
		}
		out = cur
		return nil
	})
	return out, err
}

func (r *learnerRepo) Get(ctx context.Context, userID int64) (*LearnerProfile, error) {
	return r.get(ctx, r.s.drv, userID, false)
}

func (r *learnerRepo) Update(ctx context.Context, userID int64, fn func(*LearnerProfile) error) (*LearnerProfile, error) {
	var out *LearnerProfile
	err := r.s.withTx(ctx, func(conn dialect.ExecQuerier) error {
		if err := r.insertIfMissing(ctx, conn, LearnerProfile{UserID: userID}); err != nil {
			return err
		}
		cur, err := r.get(ctx, conn, userID, true)
		if err != nil {
			return err
		}
		if err := fn(cur); err != nil {
			return err
		}
		if err := r.write(ctx, conn, cur); err != nil {
			return err
		}
		out = cur
		return nil
	})
	return out, err
}

func (r *learnerRepo) insertIfMissing(ctx context.Context, conn dialect.ExecQuerier, p LearnerProfile) error {
	now := toMillis(time.Now().UTC())
	lang := p.Language
	if lang == "" {
		lang = "en"
	}
	level := p.SkillLevel
	if level == "" {
		level = skill.LevelBeginner
	}
	q, args := r.s.builder().Insert(tableLearners).
		Columns(learnerColumns...).
		Values(p.UserID, p.FirstName, p.Username, lang, string(level), "{}", now, now).
		OnConflict(entsql.ConflictColumns("user_id"), entsql.DoNothing()).
		Query()
	if err := conn.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("insert learner: %w", err)
	}
	return nil
}

func (r *learnerRepo) write(ctx context.Context, conn dialect.ExecQuerier, p *LearnerProfile) error {
	stats, err := json.Marshal(p.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()
	q, args := r.s.builder().Update(tableLearners).
		Set("first_name", p.FirstName).
		Set("username", p.Username).
		Set("language", p.Language).
		Set("skill_level", string(p.SkillLevel)).
		Set("stats", string(stats)).
		Set("updated_at", toMillis(p.UpdatedAt)).
		Where(entsql.EQ("user_id", p.UserID)).
		Query()
	if err := conn.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("update learner: %w", err)
	}
	return nil
}

func (r *learnerRepo) get(ctx context.Context, conn dialect.ExecQuerier, userID int64, lock bool) (*LearnerProfile, error) {
	b := r.s.builder()
	sel := b.Select(learnerColumns...).
		From(b.Table(tableLearners)).
		Where(entsql.EQ("user_id", userID))
	if lock {
		sel = r.s.forUpdate(sel)
	}
	q, args := sel.Query()
	rows := &entsql.Rows{}
	if err := conn.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("query learner: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query learner: %w", err)
		}
		return nil, fmt.Errorf("learner %d: %w", userID, ErrNotFound)
	}
	var (
		p                    LearnerProfile
		level, stats         string
		createdAt, updatedAt int64
	)
	if err := rows.Scan(&p.UserID, &p.FirstName, &p.Username, &p.Language, &level, &stats, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan learner: %w", err)
	}
	lv, err := skill.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	p.SkillLevel = lv
	p.Stats = make(map[content.Section]SectionStats)
	if stats != "" {
		if err := json.Unmarshal([]byte(stats), &p.Stats); err != nil {
			return nil, fmt.Errorf("decode learner %d stats: %w", userID, err)
		}
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

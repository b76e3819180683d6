package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/bandcoach/bandcoach/internal/content"
)

// SessionFilter narrows List results. Zero values match everything.
type SessionFilter struct {
	UserID  int64
	Status  Status
	Section content.Section
	Limit   int
}

// SessionRepo persists practice sessions.
type SessionRepo interface {
	// Create inserts a new active session. ID and timestamps are filled in
	// when empty.
	Create(ctx context.Context, sess *PracticeSession) error

	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, id string) (*PracticeSession, error)

	// Update loads the session, applies fn and writes the result in one
	// transaction. If fn returns an error nothing is written.
	Update(ctx context.Context, id string, fn func(*PracticeSession) error) (*PracticeSession, error)

	// ActiveFor returns the newest active session for a conversation, or
	// nil if there is none.
	ActiveFor(ctx context.Context, userID, chatID int64) (*PracticeSession, error)

	// List returns sessions newest first.
	List(ctx context.Context, f SessionFilter) ([]*PracticeSession, error)
}

var sessionColumns = []string{
	"id", "user_id", "chat_id", "section", "variant", "status", "stage",
	"started_at", "completed_at", "updated_at",
	"total_questions", "correct_answers", "score", "session_data",
	"cursor_pos", "content_ref", "checkpoint",
}

type sessionRepo struct {
	s *Store
}

func (r *sessionRepo) Create(ctx context.Context, sess *PracticeSession) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}
	sess.UpdatedAt = now
	if sess.Status == "" {
		sess.Status = StatusActive
	}
	if err := sess.check(); err != nil {
		return err
	}

	vals, err := sessionValues(sess)
	if err != nil {
		return err
	}
	q, args := r.s.builder().Insert(tableSessions).
		Columns(sessionColumns...).
		Values(vals...).
		Query()
	if err := r.s.drv.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*PracticeSession, error) {
	return r.get(ctx, r.s.drv, id, false)
}

func (r *sessionRepo) get(ctx context.Context, conn dialect.ExecQuerier, id string, lock bool) (*PracticeSession, error) {
	b := r.s.builder()
	sel := b.Select(sessionColumns...).
		From(b.Table(tableSessions)).
		Where(entsql.EQ("id", id))
	if lock {
		sel = r.s.forUpdate(sel)
	}
	list, err := r.query(ctx, conn, sel)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return list[0], nil
}

func (r *sessionRepo) Update(ctx context.Context, id string, fn func(*PracticeSession) error) (*PracticeSession, error) {
	var out *PracticeSession
	err := r.s.withTx(ctx, func(conn dialect.ExecQuerier) error {
		sess, err := r.get(ctx, conn, id, true)
		if err != nil {
			return err
		}
		before := len(sess.Data.Entries)

		if err := fn(sess); err != nil {
			return err
		}
		if len(sess.Data.Entries) < before {
			return fmt.Errorf("%w: session_data shrank from %d to %d entries", ErrInvariant, before, len(sess.Data.Entries))
		}
		if err := sess.check(); err != nil {
			return err
		}
		sess.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(sess.Data)
		if err != nil {
			return fmt.Errorf("marshal session data: %w", err)
		}
		upd := r.s.builder().Update(tableSessions).
			Set("status", string(sess.Status)).
			Set("stage", sess.Stage).
			Set("updated_at", toMillis(sess.UpdatedAt)).
			Set("total_questions", sess.TotalQuestions).
			Set("correct_answers", sess.CorrectAnswers).
			Set("session_data", string(data)).
			Set("cursor_pos", sess.Cursor).
			Set("content_ref", sess.ContentRef).
			Set("checkpoint", checkpointText(sess.Checkpoint))
		if sess.CompletedAt != nil {
			upd.Set("completed_at", toMillis(*sess.CompletedAt))
		} else {
			upd.SetNull("completed_at")
		}
		if sess.Score != nil {
			upd.Set("score", *sess.Score)
		} else {
			upd.SetNull("score")
		}
		q, args := upd.Where(entsql.EQ("id", id)).Query()
		if err := conn.Exec(ctx, q, args, nil); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) ActiveFor(ctx context.Context, userID, chatID int64) (*PracticeSession, error) {
	b := r.s.builder()
	sel := b.Select(sessionColumns...).
		From(b.Table(tableSessions)).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.EQ("chat_id", chatID),
			entsql.EQ("status", string(StatusActive)),
		)).
		OrderBy(entsql.Desc("started_at")).
		Limit(1)
	list, err := r.query(ctx, r.s.drv, sel)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (r *sessionRepo) List(ctx context.Context, f SessionFilter) ([]*PracticeSession, error) {
	b := r.s.builder()
	sel := b.Select(sessionColumns...).
		From(b.Table(tableSessions)).
		OrderBy(entsql.Desc("started_at"))

	var preds []*entsql.Predicate
	if f.UserID != 0 {
		preds = append(preds, entsql.EQ("user_id", f.UserID))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if f.Section != "" {
		preds = append(preds, entsql.EQ("section", string(f.Section)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	return r.query(ctx, r.s.drv, sel)
}

func (r *sessionRepo) query(ctx context.Context, conn dialect.ExecQuerier, sel *entsql.Selector) ([]*PracticeSession, error) {
	q, args := sel.Query()
	rows := &entsql.Rows{}
	if err := conn.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*PracticeSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func scanSession(rows *entsql.Rows) (*PracticeSession, error) {
	var (
		sess        PracticeSession
		section     string
		status      string
		startedAt   int64
		completedAt sql.NullInt64
		updatedAt   int64
		score       sql.NullFloat64
		data        string
		checkpoint  string
	)
	err := rows.Scan(
		&sess.ID, &sess.UserID, &sess.ChatID, &section, &sess.Variant, &status, &sess.Stage,
		&startedAt, &completedAt, &updatedAt,
		&sess.TotalQuestions, &sess.CorrectAnswers, &score, &data,
		&sess.Cursor, &sess.ContentRef, &checkpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Section = content.Section(section)
	sess.Status = Status(status)
	sess.StartedAt = fromMillis(startedAt)
	sess.UpdatedAt = fromMillis(updatedAt)
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		sess.CompletedAt = &t
	}
	if score.Valid {
		v := score.Float64
		sess.Score = &v
	}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &sess.Data); err != nil {
			return nil, fmt.Errorf("decode session %s data: %w", sess.ID, err)
		}
	}
	if checkpoint != "" && checkpoint != "{}" {
		sess.Checkpoint = json.RawMessage(checkpoint)
	}
	return &sess, nil
}

func sessionValues(sess *PracticeSession) ([]any, error) {
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal session data: %w", err)
	}
	var completedAt, score any
	if sess.CompletedAt != nil {
		completedAt = toMillis(*sess.CompletedAt)
	}
	if sess.Score != nil {
		score = *sess.Score
	}
	return []any{
		sess.ID, sess.UserID, sess.ChatID, string(sess.Section), sess.Variant, string(sess.Status), sess.Stage,
		toMillis(sess.StartedAt), completedAt, toMillis(sess.UpdatedAt),
		sess.TotalQuestions, sess.CorrectAnswers, score, string(data),
		sess.Cursor, sess.ContentRef, checkpointText(sess.Checkpoint),
	}, nil
}

func checkpointText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

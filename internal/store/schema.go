package store

import (
	"context"
	"fmt"
)

// Table names.
const (
	tableSessions  = "practice_sessions"
	tableLearners  = "learners"
	tableLLMEvents = "llm_request_events"
)

// schema is written in the subset of SQL that SQLite and Postgres share:
// BIGINT millisecond timestamps, TEXT for JSON blobs, no autoincrement.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS learners (
		user_id     BIGINT PRIMARY KEY,
		first_name  TEXT NOT NULL DEFAULT '',
		username    TEXT NOT NULL DEFAULT '',
		language    TEXT NOT NULL DEFAULT 'en',
		skill_level TEXT NOT NULL DEFAULT 'Beginner',
		stats       TEXT NOT NULL DEFAULT '{}',
		created_at  BIGINT NOT NULL,
		updated_at  BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS practice_sessions (
		id              TEXT PRIMARY KEY,
		user_id         BIGINT NOT NULL,
		chat_id         BIGINT NOT NULL,
		section         TEXT NOT NULL,
		variant         TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		stage           TEXT NOT NULL DEFAULT '',
		started_at      BIGINT NOT NULL,
		completed_at    BIGINT,
		updated_at      BIGINT NOT NULL,
		total_questions INTEGER NOT NULL DEFAULT 0,
		correct_answers INTEGER NOT NULL DEFAULT 0,
		score           DOUBLE PRECISION,
		session_data    TEXT NOT NULL DEFAULT '{}',
		cursor_pos      INTEGER NOT NULL DEFAULT 0,
		content_ref     TEXT NOT NULL DEFAULT '',
		checkpoint      TEXT NOT NULL DEFAULT '{}',
		CHECK (correct_answers >= 0 AND total_questions >= correct_answers)
	)`,
	`CREATE INDEX IF NOT EXISTS practice_sessions_owner
		ON practice_sessions (user_id, chat_id, status)`,
	`CREATE INDEX IF NOT EXISTS practice_sessions_started
		ON practice_sessions (started_at)`,
	`CREATE TABLE IF NOT EXISTS llm_request_events (
		id            TEXT PRIMARY KEY,
		created_at    BIGINT NOT NULL,
		provider      TEXT NOT NULL DEFAULT '',
		model         TEXT NOT NULL DEFAULT '',
		purpose       TEXT NOT NULL DEFAULT '',
		session_id    TEXT NOT NULL DEFAULT '',
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms    BIGINT NOT NULL DEFAULT 0,
		success       BOOLEAN NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		request_body  TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS llm_request_events_created
		ON llm_request_events (created_at)`,
}

// Migrate creates any missing tables and indexes. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("exec %.40q: %w", stmt, err)
		}
	}
	return nil
}

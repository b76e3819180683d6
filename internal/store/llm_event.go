package store

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

// LLMRequestEvent is one recorded call to the AI service.
type LLMRequestEvent struct {
	ID           string
	Timestamp    time.Time
	Provider     string
	Model        string
	Purpose      string
	SessionID    string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// QueryOpts configures event queries.
type QueryOpts struct {
	Limit   int    // max results (0 = unlimited)
	Purpose string // exact match when set
	Since   time.Time
}

// EventRepo provides append and query access to LLM request events.
type EventRepo interface {
	AppendLLMRequest(ctx context.Context, ev LLMRequestEvent) error
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error)
	GetLLMEvent(ctx context.Context, id string) (*LLMRequestEvent, error)
}

var eventColumns = []string{
	"id", "created_at", "provider", "model", "purpose", "session_id",
	"input_tokens", "output_tokens", "latency_ms", "success",
	"error_message", "request_body", "response_body",
}

type eventRepo struct {
	s *Store
}

func (r *eventRepo) AppendLLMRequest(ctx context.Context, ev LLMRequestEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	q, args := r.s.builder().Insert(tableLLMEvents).
		Columns(eventColumns...).
		Values(
			ev.ID, toMillis(ev.Timestamp), ev.Provider, ev.Model, ev.Purpose, ev.SessionID,
			ev.InputTokens, ev.OutputTokens, ev.LatencyMs, ev.Success,
			ev.ErrorMessage, ev.RequestBody, ev.ResponseBody,
		).
		Query()
	if err := r.s.drv.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error) {
	b := r.s.builder()
	sel := b.Select(eventColumns...).
		From(b.Table(tableLLMEvents)).
		OrderBy(entsql.Desc("created_at"))
	var preds []*entsql.Predicate
	if opts.Purpose != "" {
		preds = append(preds, entsql.EQ("purpose", opts.Purpose))
	}
	if !opts.Since.IsZero() {
		preds = append(preds, entsql.GTE("created_at", toMillis(opts.Since)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	return r.query(ctx, sel)
}

func (r *eventRepo) GetLLMEvent(ctx context.Context, id string) (*LLMRequestEvent, error) {
	b := r.s.builder()
	sel := b.Select(eventColumns...).
		From(b.Table(tableLLMEvents)).
		Where(entsql.EQ("id", id))
	list, err := r.query(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("llm event %s: %w", id, ErrNotFound)
	}
	return &list[0], nil
}

func (r *eventRepo) query(ctx context.Context, sel *entsql.Selector) ([]LLMRequestEvent, error) {
	q, args := sel.Query()
	rows := &entsql.Rows{}
	if err := r.s.drv.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("query LLM events: %w", err)
	}
	defer rows.Close()

	var out []LLMRequestEvent
	for rows.Next() {
		var (
			ev LLMRequestEvent
			ts int64
		)
		if err := rows.Scan(
			&ev.ID, &ts, &ev.Provider, &ev.Model, &ev.Purpose, &ev.SessionID,
			&ev.InputTokens, &ev.OutputTokens, &ev.LatencyMs, &ev.Success,
			&ev.ErrorMessage, &ev.RequestBody, &ev.ResponseBody,
		); err != nil {
			return nil, fmt.Errorf("scan LLM event: %w", err)
		}
		ev.Timestamp = fromMillis(ts)
		out = append(out, ev)
	}
	return out, rows.Err()
}

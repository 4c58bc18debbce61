package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LLMEvent captures one provider call for the generation audit trail.
type LLMEvent struct {
	ID       int64
	Provider string
	Model    string
	Purpose  string
	Streamed bool

	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	CostUSD      float64

	Success      bool
	ErrorMessage string

	RequestBody  string
	ResponseBody string

	CreatedAt time.Time
}

// LLMEventRecorder provides append access to the generation audit trail.
type LLMEventRecorder interface {
	// RecordLLMEvent records one provider call.
	RecordLLMEvent(ctx context.Context, ev LLMEvent) error
}

// RecordLLMEvent appends an LLM event row.
func (s *Store) RecordLLMEvent(ctx context.Context, ev LLMEvent) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO llm_events
		(provider, model, purpose, streamed, input_tokens, output_tokens,
		 latency_ms, cost_usd, success, error_message, request_body,
		 response_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Provider, ev.Model, ev.Purpose, ev.Streamed, ev.InputTokens,
		ev.OutputTokens, ev.LatencyMs, ev.CostUSD, ev.Success,
		ev.ErrorMessage, ev.RequestBody, ev.ResponseBody, toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("record llm event: %w", err)
	}
	return nil
}

// GetLLMEvent returns one event by id, or ErrNotFound.
func (s *Store) GetLLMEvent(ctx context.Context, id int64) (*LLMEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, provider, model, purpose,
		streamed, input_tokens, output_tokens, latency_ms, cost_usd, success,
		error_message, request_body, response_body, created_at
		FROM llm_events WHERE id = ?`, id)

	var ev LLMEvent
	var createdAt int64
	err := row.Scan(&ev.ID, &ev.Provider, &ev.Model, &ev.Purpose,
		&ev.Streamed, &ev.InputTokens, &ev.OutputTokens, &ev.LatencyMs,
		&ev.CostUSD, &ev.Success, &ev.ErrorMessage, &ev.RequestBody,
		&ev.ResponseBody, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get llm event: %w", err)
	}
	ev.CreatedAt = fromMillis(createdAt)
	return &ev, nil
}

// LLMUsage aggregates events grouped by purpose or model.
type LLMUsage struct {
	Key          string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
	CostUSD      float64
}

// LLMUsageByPurpose aggregates token usage per purpose.
func (s *Store) LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error) {
	return s.llmUsage(ctx, "purpose")
}

// LLMUsageByModel aggregates token usage and cost per model.
func (s *Store) LLMUsageByModel(ctx context.Context) ([]LLMUsage, error) {
	return s.llmUsage(ctx, "model")
}

func (s *Store) llmUsage(ctx context.Context, column string) ([]LLMUsage, error) {
	// column is always "purpose" or "model", never caller input.
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*),
		COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		COALESCE(CAST(AVG(latency_ms) AS INTEGER), 0),
		COALESCE(SUM(cost_usd), 0)
		FROM llm_events GROUP BY `+column+` ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("aggregate llm usage: %w", err)
	}
	defer rows.Close()

	var out []LLMUsage
	for rows.Next() {
		var u LLMUsage
		if err := rows.Scan(&u.Key, &u.Calls, &u.InputTokens, &u.OutputTokens,
			&u.AvgLatencyMs, &u.CostUSD); err != nil {
			return nil, fmt.Errorf("scan llm usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListLLMEvents returns the most recent events, newest first.
// A limit of 0 means no limit.
func (s *Store) ListLLMEvents(ctx context.Context, limit int) ([]LLMEvent, error) {
	q := `SELECT id, provider, model, purpose, streamed, input_tokens,
		output_tokens, latency_ms, cost_usd, success, error_message,
		request_body, response_body, created_at
		FROM llm_events ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list llm events: %w", err)
	}
	defer rows.Close()

	var out []LLMEvent
	for rows.Next() {
		var ev LLMEvent
		var createdAt int64
		err := rows.Scan(&ev.ID, &ev.Provider, &ev.Model, &ev.Purpose,
			&ev.Streamed, &ev.InputTokens, &ev.OutputTokens, &ev.LatencyMs,
			&ev.CostUSD, &ev.Success, &ev.ErrorMessage, &ev.RequestBody,
			&ev.ResponseBody, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan llm event: %w", err)
		}
		ev.CreatedAt = fromMillis(createdAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists the audit trail in PostgreSQL. The daily rollup
// uses INSERT ... ON CONFLICT DO UPDATE so concurrent writers never lose
// increments.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the two tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS guardrail_events (
			id             BIGSERIAL PRIMARY KEY,
			ts             TIMESTAMPTZ NOT NULL DEFAULT now(),
			guardrail_name TEXT NOT NULL,
			event_type     TEXT NOT NULL,
			content_id     TEXT,
			workflow_id    TEXT,
			agent_id       TEXT,
			details        JSONB,
			user_feedback  TEXT
		)`)
	if err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS guardrail_metrics (
			date            DATE NOT NULL,
			guardrail_name  TEXT NOT NULL,
			invocations     BIGINT NOT NULL DEFAULT 0,
			blocks          BIGINT NOT NULL DEFAULT 0,
			modifications   BIGINT NOT NULL DEFAULT 0,
			passes          BIGINT NOT NULL DEFAULT 0,
			false_positives BIGINT NOT NULL DEFAULT 0,
			false_negatives BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (date, guardrail_name)
		)`)
	if err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS guardrail_events_ts_idx
		ON guardrail_events (ts DESC)`)
	if err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *NewEvent) (int64, error) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return 0, fmt.Errorf("AppendEvent: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("AppendEvent: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO guardrail_events
			(guardrail_name, event_type, content_id, workflow_id, agent_id, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		e.GuardrailName, e.EventType,
		nullableText(e.Correlation.ContentID),
		nullableText(e.Correlation.WorkflowID),
		nullableText(e.Correlation.AgentID),
		details,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("AppendEvent: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO guardrail_metrics (date, guardrail_name, invocations, blocks, modifications, passes)
		VALUES (CURRENT_DATE, $1, 1, $2, $3, $4)
		ON CONFLICT (date, guardrail_name) DO UPDATE SET
			invocations   = guardrail_metrics.invocations + 1,
			blocks        = guardrail_metrics.blocks + EXCLUDED.blocks,
			modifications = guardrail_metrics.modifications + EXCLUDED.modifications,
			passes        = guardrail_metrics.passes + EXCLUDED.passes`,
		e.GuardrailName,
		boolToCount(e.EventType == EventBlock),
		boolToCount(e.EventType == EventModify),
		boolToCount(e.EventType == EventPass),
	)
	if err != nil {
		return 0, fmt.Errorf("AppendEvent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("AppendEvent: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) RecordFeedback(ctx context.Context, eventID int64, feedback string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("RecordFeedback: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var guardrail string
	var ts time.Time
	err = tx.QueryRowContext(ctx, `
		UPDATE guardrail_events SET user_feedback = $2
		WHERE id = $1
		RETURNING guardrail_name, ts`,
		eventID, feedback,
	).Scan(&guardrail, &ts)
	if err == sql.ErrNoRows {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("RecordFeedback: %w", err)
	}

	// The accuracy counters land on the event's creation date, and they
	// increment every time feedback arrives, including repeats.
	switch feedback {
	case FeedbackFalsePositive:
		_, err = tx.ExecContext(ctx, `
			UPDATE guardrail_metrics SET false_positives = false_positives + 1
			WHERE date = $1 AND guardrail_name = $2`,
			ts.Format("2006-01-02"), guardrail)
	case FeedbackFalseNegative:
		_, err = tx.ExecContext(ctx, `
			UPDATE guardrail_metrics SET false_negatives = false_negatives + 1
			WHERE date = $1 AND guardrail_name = $2`,
			ts.Format("2006-01-02"), guardrail)
	}
	if err != nil {
		return fmt.Errorf("RecordFeedback: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("RecordFeedback: %w", err)
	}
	return nil
}

func (s *PostgresStore) QueryDaily(ctx context.Context, f MetricsFilter) ([]DailyRow, error) {
	query := `
		SELECT to_char(date, 'YYYY-MM-DD'), guardrail_name,
		       invocations, blocks, modifications, passes,
		       false_positives, false_negatives
		FROM guardrail_metrics WHERE 1=1`
	var args []any
	if f.GuardrailName != "" {
		args = append(args, f.GuardrailName)
		query += fmt.Sprintf(" AND guardrail_name = $%d", len(args))
	}
	if f.StartDate != "" {
		args = append(args, f.StartDate)
		query += fmt.Sprintf(" AND date >= $%d::date", len(args))
	}
	if f.EndDate != "" {
		args = append(args, f.EndDate)
		query += fmt.Sprintf(" AND date <= $%d::date", len(args))
	}
	query += " ORDER BY date, guardrail_name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("QueryDaily: %w", err)
	}
	defer rows.Close()

	var out []DailyRow
	for rows.Next() {
		var r DailyRow
		if err := rows.Scan(&r.Date, &r.GuardrailName,
			&r.Invocations, &r.Blocks, &r.Modifications, &r.Passes,
			&r.FalsePositives, &r.FalseNegatives); err != nil {
			return nil, fmt.Errorf("QueryDaily: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecentEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	query := `
		SELECT id, ts, guardrail_name, event_type,
		       COALESCE(content_id, ''), COALESCE(workflow_id, ''), COALESCE(agent_id, ''),
		       COALESCE(details, 'null'::jsonb), COALESCE(user_feedback, '')
		FROM guardrail_events WHERE 1=1`
	var args []any
	if f.GuardrailName != "" {
		args = append(args, f.GuardrailName)
		query += fmt.Sprintf(" AND guardrail_name = $%d", len(args))
	}
	if f.EventType != "" {
		args = append(args, f.EventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY ts DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("RecentEvents: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var details []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.GuardrailName, &e.EventType,
			&e.Correlation.ContentID, &e.Correlation.WorkflowID, &e.Correlation.AgentID,
			&details, &e.UserFeedback); err != nil {
			return nil, fmt.Errorf("RecentEvents: %w", err)
		}
		if len(details) > 0 && string(details) != "null" {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("RecentEvents: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToCount(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

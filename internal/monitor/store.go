package monitor

import "context"

// Store is the durable backing for the guardrail audit trail: an
// append-only event log plus per-(date, guardrail) counter rollups.
//
// Implementations must keep the rollup increments atomic with respect to
// concurrent writers — an upsert-with-increment, never read-then-write.
type Store interface {
	// AppendEvent inserts an event, assigns its id and timestamp, and
	// increments today's rollup row (invocations plus the counter matching
	// the event type) in the same logical write.
	AppendEvent(ctx context.Context, e *NewEvent) (int64, error)

	// RecordFeedback attaches feedback to an existing event. Returns
	// ErrEventNotFound for unknown ids. false_positive / false_negative
	// feedback additionally increments the matching counter on the
	// event-day rollup row. Repeated feedback on one event increments
	// again each time; the log is a vote tally, not a flag.
	RecordFeedback(ctx context.Context, eventID int64, feedback string) error

	// QueryDaily returns rollup rows matching the filter.
	QueryDaily(ctx context.Context, f MetricsFilter) ([]DailyRow, error)

	// RecentEvents returns events newest-first, honoring the filter.
	RecentEvents(ctx context.Context, f EventFilter) ([]Event, error)

	Close() error
}

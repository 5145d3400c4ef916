package storage

import "time"

// EventWriter is the interface for mirroring guardrail events to the
// analytics store. Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *GuardrailEvent)
	Close()
}

// GuardrailEvent is the analytics projection of one guardrail invocation.
// The authoritative audit row lives in Postgres; this copy feeds
// long-horizon trend queries.
type GuardrailEvent struct {
	EventID           int64
	Timestamp         time.Time
	GuardrailName     string
	EventType         string
	ContentID         string
	WorkflowID        string
	AgentID           string
	FlaggedCategories []string
	CategoryNames     []string
	CategoryScores    []float64
	OverallSafety     float64
	Reason            string
}

// ReasonPreviewLength is the max chars stored in the reason column.
const ReasonPreviewLength = 500

// TruncateReason returns the first N characters (runes) of a reason for
// storage. It never splits a multi-byte UTF-8 character.
func TruncateReason(reason string, maxLen int) string {
	runes := []rune(reason)
	if len(runes) <= maxLen {
		return reason
	}
	return string(runes[:maxLen])
}

package monitor

import (
	"errors"
	"time"
)

// Event types recorded per guardrail invocation.
const (
	EventBlock  = "block"
	EventModify = "modify"
	EventPass   = "pass"
)

// Feedback labels with special handling: they increment the accuracy
// counters on the event's daily rollup row.
const (
	FeedbackFalsePositive = "false_positive"
	FeedbackFalseNegative = "false_negative"
)

// ErrEventNotFound is returned when feedback targets an unknown event id.
var ErrEventNotFound = errors.New("guardrail event not found")

// Correlation carries optional identifiers tying an event back to the
// content item, workflow run, and agent that produced it.
type Correlation struct {
	ContentID  string `json:"content_id,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
}

// EventDetails is the structured payload stored with each event.
type EventDetails struct {
	CategoryScores    map[string]float64 `json:"category_scores,omitempty"`
	FlaggedCategories []string           `json:"flagged_categories,omitempty"`
}

// Event is one row of the append-only guardrail event log. Core fields are
// immutable after creation; only UserFeedback may be attached later.
type Event struct {
	ID            int64        `json:"id"`
	Timestamp     time.Time    `json:"timestamp"`
	GuardrailName string       `json:"guardrail_name"`
	EventType     string       `json:"event_type"`
	Correlation   Correlation  `json:"correlation"`
	Details       EventDetails `json:"details"`
	UserFeedback  string       `json:"user_feedback,omitempty"`
}

// NewEvent is the input to LogEvent: an Event before id and timestamp
// assignment. Reason travels only to the analytics mirror; the audit row
// derives it from the flagged categories.
type NewEvent struct {
	GuardrailName string
	EventType     string
	Correlation   Correlation
	Details       EventDetails
	Reason        string
}

// DailyRow is the per-day, per-guardrail counter rollup.
type DailyRow struct {
	Date           string
	GuardrailName  string
	Invocations    int64
	Blocks         int64
	Modifications  int64
	Passes         int64
	FalsePositives int64
	FalseNegatives int64
}

// MetricsFilter narrows a daily-rollup query. Empty fields match everything;
// dates are inclusive ISO "2006-01-02" strings.
type MetricsFilter struct {
	GuardrailName string
	StartDate     string
	EndDate       string
}

// EventFilter narrows a recent-events query.
type EventFilter struct {
	Limit         int
	GuardrailName string
	EventType     string
}

// GuardrailTotals holds summed counters plus derived rates for one scope
// (global or a single guardrail). Rates are 0.0 when their denominator is 0.
type GuardrailTotals struct {
	Invocations    int64 `json:"invocations"`
	Blocks         int64 `json:"blocks"`
	Modifications  int64 `json:"modifications"`
	Passes         int64 `json:"passes"`
	FalsePositives int64 `json:"false_positives"`
	FalseNegatives int64 `json:"false_negatives"`

	BlockRate         float64 `json:"block_rate"`
	ModificationRate  float64 `json:"modification_rate"`
	PassRate          float64 `json:"pass_rate"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// computeRates fills the derived rate fields from the counters.
func (t *GuardrailTotals) computeRates() {
	if t.Invocations > 0 {
		t.BlockRate = float64(t.Blocks) / float64(t.Invocations)
		t.ModificationRate = float64(t.Modifications) / float64(t.Invocations)
		t.PassRate = float64(t.Passes) / float64(t.Invocations)
	}
	if interventions := t.Blocks + t.Modifications; interventions > 0 {
		t.FalsePositiveRate = float64(t.FalsePositives) / float64(interventions)
	}
}

// DayTotals holds summed counters for one calendar day.
type DayTotals struct {
	Invocations    int64 `json:"invocations"`
	Blocks         int64 `json:"blocks"`
	Modifications  int64 `json:"modifications"`
	Passes         int64 `json:"passes"`
	FalsePositives int64 `json:"false_positives"`
	FalseNegatives int64 `json:"false_negatives"`
}

// MetricsReport aggregates daily rollups across the requested window.
type MetricsReport struct {
	GuardrailTotals
	ByGuardrail map[string]*GuardrailTotals `json:"by_guardrail"`
	ByDate      map[string]*DayTotals       `json:"by_date"`
}

// GuardrailFinding names a guardrail exhibiting one of the drift patterns.
type GuardrailFinding struct {
	Guardrail   string  `json:"guardrail"`
	Rate        float64 `json:"rate"`
	Invocations int64   `json:"invocations"`
}

// Recommendation is a human-readable improvement suggestion.
type Recommendation struct {
	Guardrail      string `json:"guardrail"`
	Issue          string `json:"issue"`
	Recommendation string `json:"recommendation"`
}

// OpportunityReport flags guardrails whose trailing-30-day behavior
// suggests tuning work.
type OpportunityReport struct {
	HighFalsePositive   []GuardrailFinding `json:"high_false_positive_guardrails"`
	LowEfficacy         []GuardrailFinding `json:"low_efficacy_guardrails"`
	FrequentlyTriggered []GuardrailFinding `json:"frequently_triggered_guardrails"`
	RarelyTriggered     []GuardrailFinding `json:"rarely_triggered_guardrails"`
	Recommendations     []Recommendation   `json:"recommendations"`
}

// ComplianceSummary is the headline section of an audit report.
type ComplianceSummary struct {
	TotalContentProcessed int64   `json:"total_content_processed"`
	ContentBlocked        int64   `json:"content_blocked"`
	ContentModified       int64   `json:"content_modified"`
	ContentPassed         int64   `json:"content_passed"`
	FalsePositives        int64   `json:"false_positives"`
	FalseNegatives        int64   `json:"false_negatives"`
	ComplianceRate        float64 `json:"compliance_rate"`
}

// AuditReport bundles metrics with sample events for human review.
// SampleEvents is keyed guardrail name → event type → up to five newest
// events.
type AuditReport struct {
	GeneratedAt  time.Time                     `json:"report_generated"`
	PeriodStart  string                        `json:"period_start,omitempty"`
	PeriodEnd    string                        `json:"period_end,omitempty"`
	Metrics      *MetricsReport                `json:"metrics"`
	SampleEvents map[string]map[string][]Event `json:"sample_events"`
	Compliance   ComplianceSummary             `json:"compliance_summary"`
}

package monitor

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/newsforge-ai/gatekeeper/internal/storage"
	"go.uber.org/zap"
)

// Policy constants for improvement-opportunity analysis. These are fixed
// operational cutoffs, not tunables.
const (
	opportunityWindowDays   = 30
	highFalsePositiveRate   = 0.2
	lowInterventionRate     = 0.05
	lowEfficacyMinCalls     = 50
	frequentShare           = 0.2
	healthyFalsePositiveMax = 0.1
	rareShare               = 0.01
	feedbackScanLimit       = 1000
	falsePositivePatternMin = 10
	auditSampleLimit        = 5
)

// persistFailureAlertEvery controls how often repeated persistence failures
// escalate from warn to error. Gaps in the audit trail are a compliance
// problem and operators need to see them.
const persistFailureAlertEvery = 10

// Monitor owns the durable guardrail audit trail: it appends events,
// maintains daily rollups, attaches reviewer feedback, and derives the
// metrics, drift, and compliance reports.
type Monitor struct {
	store  Store
	mirror storage.EventWriter // nil when no analytics sink is configured
	logger *zap.Logger

	persistFailures atomic.Int64
}

// NewMonitor creates a Monitor over the given store. mirror may be nil.
func NewMonitor(store Store, mirror storage.EventWriter, logger *zap.Logger) *Monitor {
	return &Monitor{
		store:  store,
		mirror: mirror,
		logger: logger,
	}
}

// LogEvent appends one guardrail event and bumps today's rollup counters.
// Returns the assigned event id. A store failure is reported to the caller
// but must not change any guardrail verdict; repeated failures are logged
// at error level since they erode the audit trail.
func (m *Monitor) LogEvent(ctx context.Context, e NewEvent) (int64, error) {
	id, err := m.store.AppendEvent(ctx, &e)
	if err != nil {
		n := m.persistFailures.Add(1)
		if n%persistFailureAlertEvery == 0 {
			m.logger.Error("guardrail event persistence failing repeatedly, audit trail incomplete",
				zap.Int64("consecutive_failures", n),
				zap.Error(err),
			)
		} else {
			m.logger.Warn("guardrail event persistence failed",
				zap.String("guardrail", e.GuardrailName),
				zap.Error(err),
			)
		}
		return 0, err
	}
	m.persistFailures.Store(0)

	if m.mirror != nil {
		names := make([]string, 0, len(e.Details.CategoryScores))
		scores := make([]float64, 0, len(e.Details.CategoryScores))
		var maxScore float64
		for name, score := range e.Details.CategoryScores {
			names = append(names, name)
			scores = append(scores, score)
			if score > maxScore {
				maxScore = score
			}
		}
		m.mirror.Write(&storage.GuardrailEvent{
			EventID:           id,
			Timestamp:         time.Now(),
			GuardrailName:     e.GuardrailName,
			EventType:         e.EventType,
			ContentID:         e.Correlation.ContentID,
			WorkflowID:        e.Correlation.WorkflowID,
			AgentID:           e.Correlation.AgentID,
			FlaggedCategories: e.Details.FlaggedCategories,
			CategoryNames:     names,
			CategoryScores:    scores,
			OverallSafety:     1.0 - maxScore,
			Reason:            storage.TruncateReason(e.Reason, storage.ReasonPreviewLength),
		})
	}

	return id, nil
}

// RecordUserFeedback attaches a reviewer's label to an event. Returns
// ErrEventNotFound for unknown ids. false_positive / false_negative labels
// increment the accuracy counters on the event-day rollup, once per call —
// repeated feedback on the same event counts again by design.
func (m *Monitor) RecordUserFeedback(ctx context.Context, eventID int64, feedback string) error {
	return m.store.RecordFeedback(ctx, eventID, feedback)
}

// Metrics sums the daily rollups matching the filter and derives rates
// globally, per guardrail, and per date. Every rate is 0.0 when its
// denominator is 0.
func (m *Monitor) Metrics(ctx context.Context, f MetricsFilter) (*MetricsReport, error) {
	rows, err := m.store.QueryDaily(ctx, f)
	if err != nil {
		return nil, err
	}

	report := &MetricsReport{
		ByGuardrail: make(map[string]*GuardrailTotals),
		ByDate:      make(map[string]*DayTotals),
	}

	for _, row := range rows {
		report.Invocations += row.Invocations
		report.Blocks += row.Blocks
		report.Modifications += row.Modifications
		report.Passes += row.Passes
		report.FalsePositives += row.FalsePositives
		report.FalseNegatives += row.FalseNegatives

		g := report.ByGuardrail[row.GuardrailName]
		if g == nil {
			g = &GuardrailTotals{}
			report.ByGuardrail[row.GuardrailName] = g
		}
		g.Invocations += row.Invocations
		g.Blocks += row.Blocks
		g.Modifications += row.Modifications
		g.Passes += row.Passes
		g.FalsePositives += row.FalsePositives
		g.FalseNegatives += row.FalseNegatives

		d := report.ByDate[row.Date]
		if d == nil {
			d = &DayTotals{}
			report.ByDate[row.Date] = d
		}
		d.Invocations += row.Invocations
		d.Blocks += row.Blocks
		d.Modifications += row.Modifications
		d.Passes += row.Passes
		d.FalsePositives += row.FalsePositives
		d.FalseNegatives += row.FalseNegatives
	}

	report.computeRates()
	for _, g := range report.ByGuardrail {
		g.computeRates()
	}
	return report, nil
}

// RecentEvents returns logged events newest first.
func (m *Monitor) RecentEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	return m.store.RecentEvents(ctx, f)
}

// ImprovementOpportunities analyzes the trailing 30 days of rollups and
// recent block feedback for guardrails that need tuning.
func (m *Monitor) ImprovementOpportunities(ctx context.Context) (*OpportunityReport, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -opportunityWindowDays)
	metrics, err := m.Metrics(ctx, MetricsFilter{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
	})
	if err != nil {
		return nil, err
	}

	report := &OpportunityReport{}

	for name, g := range metrics.ByGuardrail {
		if g.FalsePositiveRate > highFalsePositiveRate {
			report.HighFalsePositive = append(report.HighFalsePositive, GuardrailFinding{
				Guardrail:   name,
				Rate:        g.FalsePositiveRate,
				Invocations: g.Invocations,
			})
			report.Recommendations = append(report.Recommendations, Recommendation{
				Guardrail:      name,
				Issue:          "High false positive rate",
				Recommendation: "Adjust threshold or refine detection patterns to reduce false positives.",
			})
		}

		interventionRate := g.BlockRate + g.ModificationRate
		if interventionRate < lowInterventionRate && g.Invocations > lowEfficacyMinCalls {
			report.LowEfficacy = append(report.LowEfficacy, GuardrailFinding{
				Guardrail:   name,
				Rate:        interventionRate,
				Invocations: g.Invocations,
			})
			report.Recommendations = append(report.Recommendations, Recommendation{
				Guardrail:      name,
				Issue:          "Low intervention rate",
				Recommendation: "Consider adjusting threshold or expanding detection patterns.",
			})
		}

		if metrics.Invocations == 0 {
			continue
		}
		share := float64(g.Invocations) / float64(metrics.Invocations)

		if share > frequentShare {
			report.FrequentlyTriggered = append(report.FrequentlyTriggered, GuardrailFinding{
				Guardrail:   name,
				Rate:        share,
				Invocations: g.Invocations,
			})
			if g.FalsePositiveRate < healthyFalsePositiveMax {
				report.Recommendations = append(report.Recommendations, Recommendation{
					Guardrail:      name,
					Issue:          "Frequently triggered with good accuracy",
					Recommendation: "This guardrail is effective and should be maintained.",
				})
			}
		}

		if share < rareShare {
			report.RarelyTriggered = append(report.RarelyTriggered, GuardrailFinding{
				Guardrail:   name,
				Rate:        share,
				Invocations: g.Invocations,
			})
			report.Recommendations = append(report.Recommendations, Recommendation{
				Guardrail:      name,
				Issue:          "Rarely triggered",
				Recommendation: "Evaluate if this guardrail is necessary or if it should be adjusted.",
			})
		}
	}

	// Scan recent block events for accumulating false-positive feedback.
	blocks, err := m.store.RecentEvents(ctx, EventFilter{
		Limit:     feedbackScanLimit,
		EventType: EventBlock,
	})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, e := range blocks {
		if e.UserFeedback == FeedbackFalsePositive {
			counts[e.GuardrailName]++
		}
	}
	for name, count := range counts {
		if count >= falsePositivePatternMin {
			report.Recommendations = append(report.Recommendations, Recommendation{
				Guardrail:      name,
				Issue:          "Pattern of false positives (" + strconv.Itoa(count) + " instances)",
				Recommendation: "Review and adjust detection patterns based on false positive examples.",
			})
		}
	}

	return report, nil
}

// AuditReport bundles the metrics report with sample events per guardrail
// and event type, plus a compliance summary, for human compliance review.
func (m *Monitor) AuditReport(ctx context.Context, startDate, endDate string) (*AuditReport, error) {
	metrics, err := m.Metrics(ctx, MetricsFilter{StartDate: startDate, EndDate: endDate})
	if err != nil {
		return nil, err
	}

	samples := make(map[string]map[string][]Event, len(metrics.ByGuardrail))
	for name := range metrics.ByGuardrail {
		samples[name] = make(map[string][]Event, 3)
		for _, eventType := range []string{EventBlock, EventModify, EventPass} {
			events, err := m.store.RecentEvents(ctx, EventFilter{
				Limit:         auditSampleLimit,
				GuardrailName: name,
				EventType:     eventType,
			})
			if err != nil {
				return nil, err
			}
			if events == nil {
				events = []Event{}
			}
			samples[name][eventType] = events
		}
	}

	return &AuditReport{
		GeneratedAt:  time.Now(),
		PeriodStart:  startDate,
		PeriodEnd:    endDate,
		Metrics:      metrics,
		SampleEvents: samples,
		Compliance: ComplianceSummary{
			TotalContentProcessed: metrics.Invocations,
			ContentBlocked:        metrics.Blocks,
			ContentModified:       metrics.Modifications,
			ContentPassed:         metrics.Passes,
			FalsePositives:        metrics.FalsePositives,
			FalseNegatives:        metrics.FalseNegatives,
			ComplianceRate:        metrics.PassRate + metrics.ModificationRate,
		},
	}, nil
}

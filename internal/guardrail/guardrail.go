package guardrail

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/newsforge-ai/gatekeeper/internal/analyzer"
	"github.com/newsforge-ai/gatekeeper/internal/monitor"
	"go.uber.org/zap"
)

// Guardrail is the capability every content evaluator implements: take a
// candidate piece of content, return the (possibly transformed) content
// and a verdict. Process never fails; infrastructure problems degrade to
// a pass, not an error, so the content pipeline is never stalled by its
// own safety net.
type Guardrail interface {
	Name() string
	Process(ctx context.Context, content string, corr monitor.Correlation) (string, *Result)
}

// Result is the verdict metadata returned by one Process call. Exactly one
// of Blocked, Modified, Passed is true.
type Result struct {
	Blocked  bool            `json:"blocked,omitempty"`
	Modified bool            `json:"modified,omitempty"`
	Passed   bool            `json:"passed,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Analysis analyzer.Result `json:"analysis"`
}

// EventSink receives one durable event per guardrail invocation. The
// monitor implements it; tests substitute fakes.
type EventSink interface {
	LogEvent(ctx context.Context, e monitor.NewEvent) (int64, error)
}

// MetricsSnapshot is a point-in-time copy of a guardrail's in-memory
// counters. Process-lifetime only; durable history lives in the monitor.
type MetricsSnapshot struct {
	Invocations   int64 `json:"invocations"`
	Blocks        int64 `json:"blocks"`
	Modifications int64 `json:"modifications"`
	Passes        int64 `json:"passes"`
}

// ContentSafety evaluates content against a set of harm categories and
// blocks, modifies, or passes it.
type ContentSafety struct {
	name             string
	description      string
	extremeThreshold float64
	analyzer         *analyzer.Analyzer
	sink             EventSink // nil disables event logging
	logger           *zap.Logger

	invocations   atomic.Int64
	blocks        atomic.Int64
	modifications atomic.Int64
	passes        atomic.Int64
}

// NewContentSafety builds a content-safety guardrail. The per-category
// flagging threshold lives in the analyzer; only the unconditional-block
// ceiling is applied here.
func NewContentSafety(name, description string, extremeThreshold float64, a *analyzer.Analyzer, sink EventSink, logger *zap.Logger) *ContentSafety {
	return &ContentSafety{
		name:             name,
		description:      description,
		extremeThreshold: extremeThreshold,
		analyzer:         a,
		sink:             sink,
		logger:           logger,
	}
}

func (g *ContentSafety) Name() string { return g.name }

// Description returns the guardrail's human-readable purpose.
func (g *ContentSafety) Description() string { return g.description }

// Metrics returns a snapshot of the in-memory counters. At every quiescent
// point Invocations == Blocks + Modifications + Passes.
func (g *ContentSafety) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Invocations:   g.invocations.Load(),
		Blocks:        g.blocks.Load(),
		Modifications: g.modifications.Load(),
		Passes:        g.passes.Load(),
	}
}

// Process evaluates one piece of content and returns it blocked (original
// content, Blocked verdict), modified (warning banner prepended), or
// passed (unchanged).
func (g *ContentSafety) Process(ctx context.Context, content string, corr monitor.Correlation) (string, *Result) {
	g.invocations.Add(1)

	analysis := g.analyzer.Analyze(ctx, content)

	if g.shouldBlock(analysis) {
		g.blocks.Add(1)
		reason := "Content flagged for: " + strings.Join(analysis.FlaggedCategories, ", ")
		g.emit(ctx, monitor.EventBlock, reason, analysis, corr)
		return content, &Result{Blocked: true, Reason: reason, Analysis: analysis}
	}

	if analysis.NeedsModification {
		g.modifications.Add(1)
		reason := "Content modified for: " + strings.Join(analysis.FlaggedCategories, ", ")
		g.emit(ctx, monitor.EventModify, reason, analysis, corr)
		return warningBanner(analysis.FlaggedCategories) + content, &Result{Modified: true, Reason: reason, Analysis: analysis}
	}

	g.passes.Add(1)
	g.emit(ctx, monitor.EventPass, "", analysis, corr)
	return content, &Result{Passed: true, Analysis: analysis}
}

// ProcessValue evaluates structured content by projecting it to text.
// Content with no usable projection passes untouched.
func (g *ContentSafety) ProcessValue(ctx context.Context, content any, corr monitor.Correlation) (any, *Result) {
	text, ok := analyzer.ProjectText(content)
	if !ok {
		g.invocations.Add(1)
		g.passes.Add(1)
		analysis := analyzer.Result{CategoryScores: map[string]float64{}, OverallSafetyScore: 1.0}
		g.emit(ctx, monitor.EventPass, "", analysis, corr)
		return content, &Result{Passed: true, Analysis: analysis}
	}
	processed, result := g.Process(ctx, text, corr)
	if result.Modified {
		return processed, result
	}
	return content, result
}

// shouldBlock applies the decision policy: any single category at or above
// the extreme threshold is an unconditional block, and co-occurrence of
// two or more flagged categories escalates to a block even when no single
// score is extreme.
func (g *ContentSafety) shouldBlock(analysis analyzer.Result) bool {
	for _, score := range analysis.CategoryScores {
		if score >= g.extremeThreshold {
			return true
		}
	}
	return len(analysis.FlaggedCategories) >= 2
}

// emit logs the event to the sink. Sink failures are swallowed: telemetry
// must never change or delay a verdict.
func (g *ContentSafety) emit(ctx context.Context, eventType, reason string, analysis analyzer.Result, corr monitor.Correlation) {
	if g.sink == nil {
		return
	}
	_, err := g.sink.LogEvent(ctx, monitor.NewEvent{
		GuardrailName: g.name,
		EventType:     eventType,
		Correlation:   corr,
		Details: monitor.EventDetails{
			CategoryScores:    analysis.CategoryScores,
			FlaggedCategories: analysis.FlaggedCategories,
		},
		Reason: reason,
	})
	if err != nil {
		g.logger.Warn("guardrail event logging failed",
			zap.String("guardrail", g.name),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

// warningBanner builds the visible marker prepended to modified content so
// downstream reviewers know it was altered.
func warningBanner(categories []string) string {
	return "\n\n[CONTENT WARNING: This content may contain " +
		strings.Join(categories, ", ") +
		". Proceed with caution.]\n\n"
}

package guardrail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/newsforge-ai/gatekeeper/internal/analyzer"
	"github.com/newsforge-ai/gatekeeper/internal/monitor"
	"go.uber.org/zap"
)

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	events []monitor.NewEvent
	err    error
}

func (s *recordingSink) LogEvent(_ context.Context, e monitor.NewEvent) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.events = append(s.events, e)
	return int64(len(s.events)), nil
}

func testAnalyzer(t *testing.T, categories []string, threshold float64, table map[string][]string) *analyzer.Analyzer {
	t.Helper()
	patterns, err := analyzer.NewPatternSource(table)
	if err != nil {
		t.Fatalf("NewPatternSource: %v", err)
	}
	return analyzer.NewAnalyzer(categories, threshold, patterns, nil, time.Second, zap.NewNop())
}

func TestProcess_Pass(t *testing.T) {
	sink := &recordingSink{}
	a := testAnalyzer(t, analyzer.DefaultCategories(), 0.8, analyzer.DefaultPatterns())
	g := NewContentSafety("content_safety", "", 0.9, a, sink, zap.NewNop())

	content := "the council passed the budget unanimously"
	out, res := g.Process(context.Background(), content, monitor.Correlation{})

	if out != content {
		t.Errorf("passed content must be unchanged, got %q", out)
	}
	if !res.Passed || res.Blocked || res.Modified {
		t.Errorf("expected pass verdict, got %+v", res)
	}
	if res.Reason != "" {
		t.Errorf("pass should carry no reason, got %q", res.Reason)
	}
	if len(sink.events) != 1 || sink.events[0].EventType != monitor.EventPass {
		t.Errorf("expected one pass event, got %+v", sink.events)
	}
}

func TestProcess_EmptyContentPasses(t *testing.T) {
	a := testAnalyzer(t, analyzer.DefaultCategories(), 0.8, analyzer.DefaultPatterns())
	g := NewContentSafety("content_safety", "", 0.9, a, nil, zap.NewNop())

	out, res := g.Process(context.Background(), "", monitor.Correlation{})
	if out != "" || !res.Passed {
		t.Errorf("empty content must pass unchanged, got %q %+v", out, res)
	}
}

func TestProcess_ModifyPrependsBanner(t *testing.T) {
	sink := &recordingSink{}
	// One flagged category, score below extreme: modification path.
	a := testAnalyzer(t, []string{"violence"}, 0.2, map[string][]string{
		"violence": {`(?i)\briot\b`},
	})
	g := NewContentSafety("content_safety", "", 0.9, a, sink, zap.NewNop())

	content := "a riot erupted after the match"
	out, res := g.Process(context.Background(), content, monitor.Correlation{})

	if !res.Modified {
		t.Fatalf("expected modification, got %+v", res)
	}
	want := "\n\n[CONTENT WARNING: This content may contain violence. Proceed with caution.]\n\n" + content
	if out != want {
		t.Errorf("banner mismatch:\nwant %q\ngot  %q", want, out)
	}
	if res.Reason != "Content modified for: violence" {
		t.Errorf("unexpected reason: %q", res.Reason)
	}
	if len(sink.events) != 1 || sink.events[0].EventType != monitor.EventModify {
		t.Errorf("expected one modify event, got %+v", sink.events)
	}
}

func TestProcess_BlockOnExtremeScore(t *testing.T) {
	sink := &recordingSink{}
	// Five matches saturate the score at 1.0, above the extreme threshold.
	a := testAnalyzer(t, []string{"violence"}, 0.8, map[string][]string{
		"violence": {`(?i)\bkill\b`},
	})
	g := NewContentSafety("content_safety", "", 0.9, a, sink, zap.NewNop())

	content := "kill kill kill kill kill"
	out, res := g.Process(context.Background(), content, monitor.Correlation{})

	if !res.Blocked {
		t.Fatalf("expected block, got %+v", res)
	}
	if out != content {
		t.Errorf("blocked content must be returned unaltered, got %q", out)
	}
	if res.Reason != "Content flagged for: violence" {
		t.Errorf("unexpected reason: %q", res.Reason)
	}
	if len(sink.events) != 1 || sink.events[0].EventType != monitor.EventBlock {
		t.Errorf("expected one block event, got %+v", sink.events)
	}
}

func TestProcess_BlockOnTwoFlaggedCategories(t *testing.T) {
	// Each category scores 0.2: well below extreme, but two flags together
	// escalate to a block.
	a := testAnalyzer(t, []string{"violence", "misleading"}, 0.2, map[string][]string{
		"violence":   {`(?i)\briot\b`},
		"misleading": {`(?i)\bhoax\b`},
	})
	g := NewContentSafety("content_safety", "", 0.9, a, nil, zap.NewNop())

	_, res := g.Process(context.Background(), "a riot over a hoax", monitor.Correlation{})
	if !res.Blocked {
		t.Fatalf("two flagged categories must block, got %+v", res)
	}
}

func TestProcess_SingleFlagBelowExtremeModifies(t *testing.T) {
	a := testAnalyzer(t, []string{"violence", "misleading"}, 0.2, map[string][]string{
		"violence": {`(?i)\briot\b`},
	})
	g := NewContentSafety("content_safety", "", 0.9, a, nil, zap.NewNop())

	_, res := g.Process(context.Background(), "a riot broke out", monitor.Correlation{})
	if res.Blocked {
		t.Fatal("one non-extreme flag must not block")
	}
	if !res.Modified {
		t.Errorf("expected modification, got %+v", res)
	}
}

func TestProcess_CountersSumToInvocations(t *testing.T) {
	a := testAnalyzer(t, []string{"violence"}, 0.2, map[string][]string{
		"violence": {`(?i)\bkill\b`},
	})
	g := NewContentSafety("content_safety", "", 0.9, a, nil, zap.NewNop())

	ctx := context.Background()
	g.Process(ctx, "peaceful prose", monitor.Correlation{})               // pass
	g.Process(ctx, "one kill mention", monitor.Correlation{})             // modify
	g.Process(ctx, "kill kill kill kill kill", monitor.Correlation{})     // block
	g.Process(ctx, "more peaceful prose here too", monitor.Correlation{}) // pass

	m := g.Metrics()
	if m.Invocations != 4 {
		t.Errorf("expected 4 invocations, got %d", m.Invocations)
	}
	if m.Blocks+m.Modifications+m.Passes != m.Invocations {
		t.Errorf("counter invariant violated: %+v", m)
	}
	if m.Blocks != 1 || m.Modifications != 1 || m.Passes != 2 {
		t.Errorf("unexpected counters: %+v", m)
	}
}

func TestProcess_SinkFailureDoesNotChangeVerdict(t *testing.T) {
	sink := &recordingSink{err: errors.New("store down")}
	a := testAnalyzer(t, analyzer.DefaultCategories(), 0.8, analyzer.DefaultPatterns())
	g := NewContentSafety("content_safety", "", 0.9, a, sink, zap.NewNop())

	out, res := g.Process(context.Background(), "fine content", monitor.Correlation{})
	if out != "fine content" || !res.Passed {
		t.Errorf("sink failure must not affect the verdict: %q %+v", out, res)
	}
}

func TestProcess_CorrelationForwardedToSink(t *testing.T) {
	sink := &recordingSink{}
	a := testAnalyzer(t, analyzer.DefaultCategories(), 0.8, analyzer.DefaultPatterns())
	g := NewContentSafety("content_safety", "", 0.9, a, sink, zap.NewNop())

	corr := monitor.Correlation{ContentID: "c-1", WorkflowID: "w-1", AgentID: "writer"}
	g.Process(context.Background(), "content", corr)

	if len(sink.events) != 1 {
		t.Fatalf("expected one event, got %d", len(sink.events))
	}
	if sink.events[0].Correlation != corr {
		t.Errorf("correlation not forwarded: %+v", sink.events[0].Correlation)
	}
	if sink.events[0].GuardrailName != "content_safety" {
		t.Errorf("unexpected guardrail name: %q", sink.events[0].GuardrailName)
	}
}

func TestProcessValue_UnprojectableContentPasses(t *testing.T) {
	sink := &recordingSink{}
	a := testAnalyzer(t, analyzer.DefaultCategories(), 0.8, analyzer.DefaultPatterns())
	g := NewContentSafety("content_safety", "", 0.9, a, sink, zap.NewNop())

	out, res := g.ProcessValue(context.Background(), nil, monitor.Correlation{})
	if out != nil || !res.Passed {
		t.Errorf("unprojectable content must pass untouched: %v %+v", out, res)
	}
	if m := g.Metrics(); m.Invocations != 1 || m.Passes != 1 {
		t.Errorf("pass-through must still count: %+v", m)
	}
	if len(sink.events) != 1 || sink.events[0].EventType != monitor.EventPass {
		t.Errorf("pass-through must still log an event: %+v", sink.events)
	}
}

func TestProcessValue_StructPreservedWhenPassed(t *testing.T) {
	a := testAnalyzer(t, analyzer.DefaultCategories(), 0.8, analyzer.DefaultPatterns())
	g := NewContentSafety("content_safety", "", 0.9, a, nil, zap.NewNop())

	payload := map[string]string{"headline": "rates hold steady"}
	out, res := g.ProcessValue(context.Background(), payload, monitor.Correlation{})
	if !res.Passed {
		t.Fatalf("expected pass, got %+v", res)
	}
	// Passed structured content comes back as the original value, not its
	// JSON projection.
	m, ok := out.(map[string]string)
	if !ok || m["headline"] != "rates hold steady" {
		t.Errorf("original value not preserved: %v", out)
	}
}

func TestWarningBanner(t *testing.T) {
	got := warningBanner([]string{"hate", "violence"})
	if !strings.Contains(got, "hate, violence") {
		t.Errorf("banner missing category list: %q", got)
	}
	if !strings.HasPrefix(got, "\n\n[CONTENT WARNING:") || !strings.HasSuffix(got, "]\n\n") {
		t.Errorf("banner framing wrong: %q", got)
	}
}

package guardrail

import (
	"context"
	"errors"
	"testing"

	"github.com/newsforge-ai/gatekeeper/internal/monitor"
	"go.uber.org/zap"
)

// scriptedGuardrail returns a fixed verdict and records invocations.
type scriptedGuardrail struct {
	name    string
	verdict *Result
	rewrite func(string) string
	calls   int
}

func (s *scriptedGuardrail) Name() string { return s.name }

func (s *scriptedGuardrail) Process(_ context.Context, content string, _ monitor.Correlation) (string, *Result) {
	s.calls++
	out := content
	if s.rewrite != nil {
		out = s.rewrite(content)
	}
	v := *s.verdict
	return out, &v
}

func TestChain_AllPass(t *testing.T) {
	a := &scriptedGuardrail{name: "a", verdict: &Result{Passed: true}}
	b := &scriptedGuardrail{name: "b", verdict: &Result{Passed: true}}
	chain := NewChain(a, b)

	out, res := chain.Process(context.Background(), "clean", monitor.Correlation{})
	if out != "clean" {
		t.Errorf("content must be unchanged, got %q", out)
	}
	if res.Blocked {
		t.Error("no step blocked")
	}
	if len(res.Steps) != 2 {
		t.Errorf("expected 2 step results, got %d", len(res.Steps))
	}
	if res.Modified() {
		t.Error("nothing was modified")
	}
}

func TestChain_BlockShortCircuits(t *testing.T) {
	first := &scriptedGuardrail{name: "first", verdict: &Result{Blocked: true, Reason: "Content flagged for: hate"}}
	second := &scriptedGuardrail{name: "second", verdict: &Result{Passed: true}}
	chain := NewChain(first, second)

	out, res := chain.Process(context.Background(), "bad", monitor.Correlation{})
	if second.calls != 0 {
		t.Error("downstream guardrail must not run after a block")
	}
	if !res.Blocked || res.BlockingGuardrail != "first" {
		t.Errorf("block attribution wrong: %+v", res)
	}
	if res.BlockingReason != "Content flagged for: hate" {
		t.Errorf("unexpected blocking reason: %q", res.BlockingReason)
	}
	if out != "bad" {
		t.Errorf("content returned as of the blocking step, got %q", out)
	}
	if len(res.Steps) != 1 {
		t.Errorf("only the blocking step should be recorded, got %d", len(res.Steps))
	}
}

func TestChain_ModificationsAccumulate(t *testing.T) {
	first := &scriptedGuardrail{
		name:    "first",
		verdict: &Result{Modified: true},
		rewrite: func(s string) string { return "[w1]" + s },
	}
	second := &scriptedGuardrail{
		name:    "second",
		verdict: &Result{Modified: true},
		rewrite: func(s string) string { return "[w2]" + s },
	}
	chain := NewChain(first, second)

	out, res := chain.Process(context.Background(), "body", monitor.Correlation{})
	// Second step sees the first step's output.
	if out != "[w2][w1]body" {
		t.Errorf("modifications must accumulate in order, got %q", out)
	}
	if !res.Modified() {
		t.Error("Modified() should report the accumulated modification")
	}
}

func TestChain_Empty(t *testing.T) {
	chain := NewChain()
	out, res := chain.Process(context.Background(), "anything", monitor.Correlation{})
	if out != "anything" || res.Blocked || len(res.Steps) != 0 {
		t.Errorf("empty chain must pass content through: %q %+v", out, res)
	}
}

func TestChain_WithRealGuardrails(t *testing.T) {
	safety := NewContentSafety("content_safety", "", 0.9,
		testAnalyzer(t, []string{"violence"}, 0.2, map[string][]string{
			"violence": {`(?i)\bkill\b`},
		}),
		nil, zap.NewNop())
	chain := NewChain(safety)

	_, res := chain.Process(context.Background(), "kill kill kill kill kill", monitor.Correlation{})
	if !res.Blocked || res.BlockingGuardrail != "content_safety" {
		t.Errorf("expected content_safety block, got %+v", res)
	}
}

// echoTool returns its input as output.
type echoTool struct {
	name string
	out  string
	err  error
}

func (e *echoTool) Name() string { return e.name }

func (e *echoTool) Run(_ context.Context, _ string) (string, error) {
	return e.out, e.err
}

func TestGuardedTool_Name(t *testing.T) {
	gt := NewGuardedTool(&echoTool{name: "summarize"}, NewChain(), zap.NewNop())
	if gt.Name() != "guarded_summarize" {
		t.Errorf("unexpected wrapped name: %q", gt.Name())
	}
}

func TestGuardedTool_PassThrough(t *testing.T) {
	pass := &scriptedGuardrail{name: "g", verdict: &Result{Passed: true}}
	gt := NewGuardedTool(&echoTool{name: "summarize", out: "safe summary"}, NewChain(pass), zap.NewNop())

	out, err := gt.Run(context.Background(), "input")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "safe summary" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestGuardedTool_BlockedOutput(t *testing.T) {
	block := &scriptedGuardrail{name: "g", verdict: &Result{Blocked: true, Reason: "Content flagged for: hate"}}
	gt := NewGuardedTool(&echoTool{name: "summarize", out: "vile output"}, NewChain(block), zap.NewNop())

	_, err := gt.Run(context.Background(), "input")
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockedError, got %v", err)
	}
	if blocked.Guardrail != "g" || blocked.Reason != "Content flagged for: hate" {
		t.Errorf("unexpected error detail: %+v", blocked)
	}
}

func TestGuardedTool_ToolErrorPropagates(t *testing.T) {
	toolErr := errors.New("upstream failure")
	gt := NewGuardedTool(&echoTool{name: "summarize", err: toolErr}, NewChain(), zap.NewNop())

	_, err := gt.Run(context.Background(), "input")
	if !errors.Is(err, toolErr) {
		t.Errorf("tool error must propagate unwrapped, got %v", err)
	}
}

func TestGuardedTool_ModifiedOutputReturned(t *testing.T) {
	modify := &scriptedGuardrail{
		name:    "g",
		verdict: &Result{Modified: true},
		rewrite: func(s string) string { return "[warn]" + s },
	}
	gt := NewGuardedTool(&echoTool{name: "summarize", out: "edgy summary"}, NewChain(modify), zap.NewNop())

	out, err := gt.Run(context.Background(), "input")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "[warn]edgy summary" {
		t.Errorf("expected modified output, got %q", out)
	}
}

package guardrail

import (
	"context"

	"github.com/newsforge-ai/gatekeeper/internal/monitor"
)

// Chain runs guardrails in a fixed, caller-chosen order. Each step sees
// the previous step's output content, not the original, so ordering is
// part of the policy: cheap, high-precision guardrails first lets a block
// short-circuit before the expensive ones run.
type Chain struct {
	guardrails []Guardrail
}

// NewChain creates a chain over the given guardrails, evaluated in order.
func NewChain(guardrails ...Guardrail) *Chain {
	return &Chain{guardrails: guardrails}
}

// StepResult pairs a guardrail with its verdict for one chain invocation.
type StepResult struct {
	Guardrail string  `json:"guardrail"`
	Result    *Result `json:"result"`
}

// ChainResult aggregates the per-step verdicts for one invocation.
type ChainResult struct {
	Steps             []StepResult `json:"guardrail_results"`
	Blocked           bool         `json:"blocked,omitempty"`
	BlockingGuardrail string       `json:"blocking_guardrail,omitempty"`
	BlockingReason    string       `json:"blocking_reason,omitempty"`
}

// Modified reports whether any step altered the content.
func (r *ChainResult) Modified() bool {
	for _, step := range r.Steps {
		if step.Result.Modified {
			return true
		}
	}
	return false
}

// Process threads content through every guardrail in order. The first
// block stops the chain: downstream guardrails never run, and the content
// is returned as of the blocking step. Otherwise the content accumulates
// each step's modifications.
func (c *Chain) Process(ctx context.Context, content string, corr monitor.Correlation) (string, *ChainResult) {
	current := content
	result := &ChainResult{}

	for _, g := range c.guardrails {
		processed, stepResult := g.Process(ctx, current, corr)
		result.Steps = append(result.Steps, StepResult{
			Guardrail: g.Name(),
			Result:    stepResult,
		})

		if stepResult.Blocked {
			result.Blocked = true
			result.BlockingGuardrail = g.Name()
			result.BlockingReason = stepResult.Reason
			break
		}

		current = processed
	}

	return current, result
}

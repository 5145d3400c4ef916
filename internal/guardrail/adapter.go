package guardrail

import (
	"context"
	"fmt"

	"github.com/newsforge-ai/gatekeeper/internal/monitor"
	"go.uber.org/zap"
)

// Tool is a content-producing operation whose output must clear the chain
// before the caller may treat it as final.
type Tool interface {
	Name() string
	Run(ctx context.Context, input string) (string, error)
}

// BlockedError reports that a tool's output was blocked by the chain.
type BlockedError struct {
	Guardrail string
	Reason    string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("output blocked by %s: %s", e.Guardrail, e.Reason)
}

// GuardedTool wraps a Tool so its output is routed through a chain before
// being returned. A blocked output surfaces as a BlockedError; a modified
// output is returned in its modified form.
type GuardedTool struct {
	tool   Tool
	chain  *Chain
	logger *zap.Logger
}

// NewGuardedTool wraps tool with the given chain.
func NewGuardedTool(tool Tool, chain *Chain, logger *zap.Logger) *GuardedTool {
	return &GuardedTool{tool: tool, chain: chain, logger: logger}
}

func (g *GuardedTool) Name() string {
	return "guarded_" + g.tool.Name()
}

func (g *GuardedTool) Run(ctx context.Context, input string) (string, error) {
	output, err := g.tool.Run(ctx, input)
	if err != nil {
		return "", err
	}

	guarded, result := g.chain.Process(ctx, output, monitor.Correlation{AgentID: g.tool.Name()})
	if result.Blocked {
		g.logger.Warn("tool output blocked",
			zap.String("tool", g.tool.Name()),
			zap.String("guardrail", result.BlockingGuardrail),
			zap.String("reason", result.BlockingReason),
		)
		return "", &BlockedError{
			Guardrail: result.BlockingGuardrail,
			Reason:    result.BlockingReason,
		}
	}

	return guarded, nil
}

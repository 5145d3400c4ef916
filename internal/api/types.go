package api

import (
	"github.com/newsforge-ai/gatekeeper/internal/guardrail"
)

// --- POST /v1/gatekeeper/check request/response ---

// CheckRequest is the JSON body for POST /v1/gatekeeper/check.
type CheckRequest struct {
	Content    string `json:"content"`
	ContentID  string `json:"content_id,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
}

// CheckResponse carries the chain verdict and the content the caller must
// use: unchanged on pass, banner-marked on modify, original on block (in
// which case it must not be published).
type CheckResponse struct {
	RequestID         string                 `json:"request_id"`
	Content           string                 `json:"content"`
	Blocked           bool                   `json:"blocked"`
	Modified          bool                   `json:"modified"`
	BlockingGuardrail string                 `json:"blocking_guardrail,omitempty"`
	BlockingReason    string                 `json:"blocking_reason,omitempty"`
	Results           []guardrail.StepResult `json:"guardrail_results"`
	LatencyMs         float64                `json:"latency_ms"`
}

// --- Feedback ---

// FeedbackRequest is the JSON body for the event feedback endpoint.
// Feedback is a free-text label; "false_positive" and "false_negative"
// additionally adjust the accuracy counters.
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/newsforge-ai/gatekeeper/internal/monitor"
)

// handleCheck implements POST /v1/gatekeeper/check: the producer boundary.
// Callers must branch on the response — blocked content is never published,
// modified content is published in its returned form.
func (d *Dependencies) handleCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req CheckRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "content is required"})
		return
	}

	corr := monitor.Correlation{
		ContentID:  req.ContentID,
		WorkflowID: req.WorkflowID,
		AgentID:    req.AgentID,
	}
	if corr.ContentID == "" {
		corr.ContentID = uuid.New().String()
	}

	content, result := d.Chain.Process(r.Context(), req.Content, corr)

	writeJSON(w, http.StatusOK, CheckResponse{
		RequestID:         corr.ContentID,
		Content:           content,
		Blocked:           result.Blocked,
		Modified:          result.Modified(),
		BlockingGuardrail: result.BlockingGuardrail,
		BlockingReason:    result.BlockingReason,
		Results:           result.Steps,
		LatencyMs:         float64(time.Since(start)) / float64(time.Millisecond),
	})
}

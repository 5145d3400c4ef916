package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/newsforge-ai/gatekeeper/internal/monitor"
	"go.uber.org/zap"
)

// handleGetMetrics implements GET /api/gatekeeper/metrics.
// Optional query params: guardrail, start_date, end_date (inclusive ISO dates).
func (d *Dependencies) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := d.Monitor.Metrics(r.Context(), monitor.MetricsFilter{
		GuardrailName: q.Get("guardrail"),
		StartDate:     q.Get("start_date"),
		EndDate:       q.Get("end_date"),
	})
	if err != nil {
		d.Logger.Error("metrics query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "metrics query failed"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleListEvents implements GET /api/gatekeeper/events.
// Optional query params: limit (default 100), guardrail, event_type.
func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "limit must be an integer between 1 and 1000"})
			return
		}
		limit = n
	}

	events, err := d.Monitor.RecentEvents(r.Context(), monitor.EventFilter{
		Limit:         limit,
		GuardrailName: q.Get("guardrail"),
		EventType:     q.Get("event_type"),
	})
	if err != nil {
		d.Logger.Error("events query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "events query failed"})
		return
	}
	if events == nil {
		events = []monitor.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// handleRecordFeedback implements POST /api/gatekeeper/events/{event_id}/feedback.
func (d *Dependencies) handleRecordFeedback(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(r.PathValue("event_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "event_id must be an integer"})
		return
	}

	var req FeedbackRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Feedback == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "feedback is required"})
		return
	}

	err = d.Monitor.RecordUserFeedback(r.Context(), eventID, req.Feedback)
	if errors.Is(err, monitor.ErrEventNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "event not found"})
		return
	}
	if err != nil {
		d.Logger.Error("feedback update failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "feedback update failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// handleOpportunities implements GET /api/gatekeeper/opportunities.
func (d *Dependencies) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	report, err := d.Monitor.ImprovementOpportunities(r.Context())
	if err != nil {
		d.Logger.Error("opportunity analysis failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "opportunity analysis failed"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleTrends implements GET /api/gatekeeper/trends.
// Optional query param: days (default 7, max 90). Requires ClickHouse.
func (d *Dependencies) handleTrends(w http.ResponseWriter, r *http.Request) {
	if d.Trends == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "trend analytics not configured"})
		return
	}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 90 {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "days must be an integer between 1 and 90"})
			return
		}
		days = n
	}

	report, err := d.Trends.Trends(r.Context(), days)
	if err != nil {
		d.Logger.Error("trend query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "trend query failed"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleAuditReport implements GET /api/gatekeeper/audit.
// Optional query params: start_date, end_date.
func (d *Dependencies) handleAuditReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := d.Monitor.AuditReport(r.Context(), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		d.Logger.Error("audit report failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "audit report failed"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

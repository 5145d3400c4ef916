package api

import (
	"net/http"

	"github.com/newsforge-ai/gatekeeper/internal/guardrail"
	"github.com/newsforge-ai/gatekeeper/internal/monitor"
	"github.com/newsforge-ai/gatekeeper/internal/storage"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Chain   *guardrail.Chain
	Monitor *monitor.Monitor
	// Trends serves long-horizon analytics queries. nil when no ClickHouse
	// is configured; the trends endpoint then returns 503.
	Trends *storage.TrendReader
	Logger *zap.Logger
	// APIKeyHash is the bcrypt hash of the check-endpoint key. Empty
	// disables auth (local development).
	APIKeyHash string
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Check endpoint (auth required via Bearer gk_ token when configured)
	mux.HandleFunc("POST /v1/gatekeeper/check", deps.authMiddleware(deps.handleCheck))

	// Review & audit surface (dashboard auth handled upstream)
	mux.HandleFunc("GET /api/gatekeeper/metrics", deps.handleGetMetrics)
	mux.HandleFunc("GET /api/gatekeeper/events", deps.handleListEvents)
	mux.HandleFunc("POST /api/gatekeeper/events/{event_id}/feedback", deps.handleRecordFeedback)
	mux.HandleFunc("GET /api/gatekeeper/opportunities", deps.handleOpportunities)
	mux.HandleFunc("GET /api/gatekeeper/audit", deps.handleAuditReport)
	mux.HandleFunc("GET /api/gatekeeper/trends", deps.handleTrends)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}

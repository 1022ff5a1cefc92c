package http

import (
	"net/http"

	"github.com/learnerinfo/lis/internal/observability"
)

// StatsHandler reports the busiest dashboard views and filters.
type StatsHandler struct {
	stats *observability.UsageStats
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(stats *observability.UsageStats) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// ServeHTTP handles GET /v1/stats?limit=.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}
	limit, err := intParam(r, "limit", 10)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Report(limit))
}

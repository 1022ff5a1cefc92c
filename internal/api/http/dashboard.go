package http

import (
	"net/http"

	"github.com/learnerinfo/lis/internal/aggregator"
	"github.com/learnerinfo/lis/internal/registry"
)

// YearsHandler lists the school years that have an enrollment file.
type YearsHandler struct {
	registry *registry.Registry
}

// NewYearsHandler creates a years handler.
func NewYearsHandler(reg *registry.Registry) *YearsHandler {
	return &YearsHandler{registry: reg}
}

// ServeHTTP handles GET /v1/years.
func (h *YearsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}
	years, err := h.registry.GetAvailableSchoolYears(r.Context())
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"years": years})
}

// DashboardHandler serves every dashboard view for one year and filter.
type DashboardHandler struct {
	engine   *aggregator.Engine
	registry *registry.Registry
}

// NewDashboardHandler creates a dashboard handler.
func NewDashboardHandler(engine *aggregator.Engine, reg *registry.Registry) *DashboardHandler {
	return &DashboardHandler{engine: engine, registry: reg}
}

// ServeHTTP handles GET /v1/dashboard?year=&region=&grade=&gender=.
func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	filter, err := filterParam(r)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	year, err := yearParam(ctx, r, h.registry)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}

	d, err := h.engine.Dashboard(ctx, year, filter)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// TransitionHandler serves the G6->G7 and G10->G11 transition rates.
type TransitionHandler struct {
	engine   *aggregator.Engine
	registry *registry.Registry
}

// NewTransitionHandler creates a transition handler.
func NewTransitionHandler(engine *aggregator.Engine, reg *registry.Registry) *TransitionHandler {
	return &TransitionHandler{engine: engine, registry: reg}
}

// ServeHTTP handles GET /v1/transition?year=.
func (h *TransitionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	filter, err := filterParam(r)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	year, err := yearParam(ctx, r, h.registry)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}

	t, err := h.engine.Transition(ctx, year, filter)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// TrendHandler serves total enrollment over the years around a year.
type TrendHandler struct {
	engine   *aggregator.Engine
	registry *registry.Registry
}

// NewTrendHandler creates a trend handler.
func NewTrendHandler(engine *aggregator.Engine, reg *registry.Registry) *TrendHandler {
	return &TrendHandler{engine: engine, registry: reg}
}

// ServeHTTP handles GET /v1/trend?year=.
func (h *TrendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	filter, err := filterParam(r)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	year, err := yearParam(ctx, r, h.registry)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}

	points, err := h.engine.Trend(ctx, year, filter)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"year": year, "points": points})
}

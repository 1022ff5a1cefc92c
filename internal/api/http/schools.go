package http

import (
	"net/http"
	"strings"

	"github.com/learnerinfo/lis/internal/aggregator"
	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/registry"
	"github.com/learnerinfo/lis/pkg/types"
)

// SchoolsHandler searches the school registry.
type SchoolsHandler struct {
	registry *registry.Registry
}

// NewSchoolsHandler creates a school search handler.
func NewSchoolsHandler(reg *registry.Registry) *SchoolsHandler {
	return &SchoolsHandler{registry: reg}
}

// ServeHTTP handles GET /v1/schools?q=&limit= and
// GET /v1/schools?region=&division=.
func (h *SchoolsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	q := r.URL.Query()
	var (
		schools []types.School
		err     error
	)
	if region := q.Get("region"); region != "" {
		schools, err = h.registry.SchoolsIn(ctx, region, q.Get("division"))
	} else {
		limit, perr := intParam(r, "limit", registry.DefaultSearchLimit)
		if perr != nil {
			writeLISError(w, perr, requestID)
			return
		}
		schools, err = h.registry.Search(ctx, q.Get("q"), limit)
	}
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	if schools == nil {
		schools = []types.School{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"schools": schools, "count": len(schools)})
}

// SchoolHandler serves one school's registry record and, when a year is
// given, its enrollment summary for that year.
type SchoolHandler struct {
	engine   *aggregator.Engine
	registry *registry.Registry
}

// NewSchoolHandler creates a school detail handler.
func NewSchoolHandler(engine *aggregator.Engine, reg *registry.Registry) *SchoolHandler {
	return &SchoolHandler{engine: engine, registry: reg}
}

// SchoolResponse is the body of GET /v1/schools/{id}.
type SchoolResponse struct {
	School  types.School              `json:"school"`
	Summary *aggregator.SchoolSummary `json:"summary,omitempty"`
}

// ServeHTTP handles GET /v1/schools/{id}?year=.
func (h *SchoolHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeLISError(w, lerrors.NewValidationError(lerrors.CodeMissingField, "school id is required"), requestID)
		return
	}

	school, err := h.registry.GetSchoolByID(ctx, id)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	resp := SchoolResponse{School: school}

	if year := r.URL.Query().Get("year"); year != "" {
		summary, err := h.engine.School(ctx, year, id)
		if err != nil {
			writeLISError(w, err, requestID)
			return
		}
		resp.Summary = &summary
	}
	writeJSON(w, http.StatusOK, resp)
}

// DivisionsHandler lists the divisions of a region.
type DivisionsHandler struct {
	registry *registry.Registry
}

// NewDivisionsHandler creates a divisions handler.
func NewDivisionsHandler(reg *registry.Registry) *DivisionsHandler {
	return &DivisionsHandler{registry: reg}
}

// ServeHTTP handles GET /v1/divisions?region=.
func (h *DivisionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}
	region := r.URL.Query().Get("region")
	if region == "" {
		writeLISError(w, lerrors.NewValidationError(lerrors.CodeMissingField, "region is required"), requestID)
		return
	}
	divisions, err := h.registry.Divisions(ctx, region)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	if divisions == nil {
		divisions = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"region": region, "divisions": divisions})
}

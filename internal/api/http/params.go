package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/registry"
	"github.com/learnerinfo/lis/internal/resolver"
)

// listParam collects a repeated or comma-separated query parameter.
func listParam(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// filterParam parses the region, grade and gender query parameters.
func filterParam(r *http.Request) (resolver.Filter, error) {
	return resolver.ParseFilter(listParam(r, "region"), listParam(r, "grade"), r.URL.Query().Get("gender"))
}

// yearParam returns the year query parameter, defaulting to the latest year
// that has an enrollment file.
func yearParam(ctx context.Context, r *http.Request, reg *registry.Registry) (string, error) {
	if year := strings.TrimSpace(r.URL.Query().Get("year")); year != "" {
		return year, nil
	}
	years, err := reg.GetAvailableSchoolYears(ctx)
	if err != nil {
		return "", err
	}
	if len(years) == 0 {
		return "", lerrors.NewValidationError(lerrors.CodeMissingField, "year is required: no enrollment files exist")
	}
	return years[len(years)-1], nil
}

// intParam parses an optional non-negative integer parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, lerrors.NewValidationError(lerrors.CodeInvalidRequest, name+" must be a non-negative integer").
			WithDetails(map[string]interface{}{name: raw})
	}
	return n, nil
}

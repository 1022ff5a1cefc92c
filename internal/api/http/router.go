package http

import (
	"net/http"

	"github.com/learnerinfo/lis/internal/accounts"
	"github.com/learnerinfo/lis/internal/aggregator"
	"github.com/learnerinfo/lis/internal/entry"
	"github.com/learnerinfo/lis/internal/manifest"
	"github.com/learnerinfo/lis/internal/observability"
	"github.com/learnerinfo/lis/internal/registry"
)

// Deps are the services behind the API. Accounts, Tokens, Catalog and
// Stats may be nil; the routes that need them are then not registered.
type Deps struct {
	Engine   *aggregator.Engine
	Registry *registry.Registry
	Writer   *entry.Writer
	Accounts *accounts.Store
	Tokens   *accounts.Tokens
	Catalog  manifest.Catalog
	Stats    *observability.UsageStats

	// RequireAuth guards the write routes with a bearer token.
	RequireAuth bool
	// MaxUploadBytes caps multipart upload bodies.
	MaxUploadBytes int64
}

// NewRouter registers every route on a new mux.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	guard := func(h http.Handler) http.Handler { return h }
	if d.RequireAuth {
		guard = AuthMiddleware(d.Tokens)
	}

	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/v1/years", NewYearsHandler(d.Registry))
	mux.Handle("/v1/dashboard", NewDashboardHandler(d.Engine, d.Registry))
	mux.Handle("/v1/transition", NewTransitionHandler(d.Engine, d.Registry))
	mux.Handle("/v1/trend", NewTrendHandler(d.Engine, d.Registry))
	mux.Handle("/v1/schools", NewSchoolsHandler(d.Registry))
	mux.Handle("/v1/schools/{id}", NewSchoolHandler(d.Engine, d.Registry))
	mux.Handle("/v1/divisions", NewDivisionsHandler(d.Registry))
	mux.Handle("/v1/enrollment", NewEnrollmentHandler(d.Engine, d.Registry, d.Writer, guard))
	mux.Handle("/v1/enrollment/upload", guard(NewUploadHandler(d.Writer, d.MaxUploadBytes)))

	if d.Catalog != nil {
		mux.Handle("/v1/submissions", NewSubmissionsHandler(d.Catalog))
	}
	if d.Stats != nil {
		mux.Handle("/v1/stats", NewStatsHandler(d.Stats))
	}
	if d.Accounts != nil && d.Tokens != nil {
		mux.Handle("/v1/auth/login", NewLoginHandler(d.Accounts, d.Tokens))
	}

	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

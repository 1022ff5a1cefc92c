package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/learnerinfo/lis/internal/aggregator"
	"github.com/learnerinfo/lis/internal/entry"
	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/manifest"
	"github.com/learnerinfo/lis/internal/registry"
	"github.com/learnerinfo/lis/internal/tabular"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// EnrollmentHandler serves the enrollment table and accepts single
// data-entry submissions.
type EnrollmentHandler struct {
	engine   *aggregator.Engine
	registry *registry.Registry
	writer   *entry.Writer
	submit   http.Handler
}

// NewEnrollmentHandler creates an enrollment handler. guard wraps the
// submission path.
func NewEnrollmentHandler(engine *aggregator.Engine, reg *registry.Registry, writer *entry.Writer, guard func(http.Handler) http.Handler) *EnrollmentHandler {
	h := &EnrollmentHandler{engine: engine, registry: reg, writer: writer}
	h.submit = guard(http.HandlerFunc(h.handleSubmit))
	return h
}

// ServeHTTP handles GET and POST /v1/enrollment.
func (h *EnrollmentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleTable(w, r)
	case http.MethodPost:
		h.submit.ServeHTTP(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", GetRequestID(r.Context()))
	}
}

// handleTable serves the year's table as JSON, CSV or XLSX.
func (h *EnrollmentHandler) handleTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)

	year, err := yearParam(ctx, r, h.registry)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	rows, err := h.engine.Table(ctx, year)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	switch format {
	case "", "json":
		writeJSON(w, http.StatusOK, map[string]interface{}{"year": year, "rows": rows})
	case "csv", "xlsx":
		var buf bytes.Buffer
		sheet := aggregator.TableSheet(rows)
		contentType := "text/csv"
		if format == "csv" {
			err = sheet.WriteCSV(&buf)
		} else {
			contentType = xlsxContentType
			err = sheet.WriteXLSX(&buf, year)
		}
		if err != nil {
			writeLISError(w, err, requestID)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="enrollment_%s.%s"`, year, format))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	default:
		writeLISError(w, lerrors.NewValidationError(lerrors.CodeUnsupportedInput,
			fmt.Sprintf("unsupported format %q (expected json, csv or xlsx)", format)), requestID)
	}
}

// handleSubmit applies one data-entry submission.
func (h *EnrollmentHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)

	var sub entry.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field == "count" {
			writeLISError(w, lerrors.NewValidationError(lerrors.CodeInvalidCount,
				"invalid count: must be a non-negative whole number"), requestID)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), requestID)
		return
	}

	res, err := h.writer.SubmitEnrollment(ctx, sub)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UploadHandler replaces a year's enrollment file with an uploaded sheet.
type UploadHandler struct {
	writer   *entry.Writer
	maxBytes int64
}

// DefaultMaxUploadBytes caps upload bodies when no limit is configured.
const DefaultMaxUploadBytes = 32 << 20

// NewUploadHandler creates an upload handler.
func NewUploadHandler(writer *entry.Writer, maxBytes int64) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &UploadHandler{writer: writer, maxBytes: maxBytes}
}

// ServeHTTP handles POST /v1/enrollment/upload?year= with a multipart
// "file" field holding a .csv or .xlsx sheet.
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	year := strings.TrimSpace(r.URL.Query().Get("year"))
	if year == "" {
		writeLISError(w, lerrors.NewValidationError(lerrors.CodeMissingField, "year is required"), requestID)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error(), requestID)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeLISError(w, lerrors.NewValidationError(lerrors.CodeMissingField, "multipart field \"file\" is required"), requestID)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload: "+err.Error(), requestID)
		return
	}
	tbl, err := tabular.Decode(header.Filename, data)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}

	res, err := h.writer.BulkUpload(ctx, year, tbl)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SubmissionsHandler lists the catalog's submission journal.
type SubmissionsHandler struct {
	catalog manifest.Catalog
}

// NewSubmissionsHandler creates a journal handler.
func NewSubmissionsHandler(catalog manifest.Catalog) *SubmissionsHandler {
	return &SubmissionsHandler{catalog: catalog}
}

// ServeHTTP handles GET /v1/submissions?year=&limit=.
func (h *SubmissionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	subs, err := h.catalog.ListSubmissions(ctx, r.URL.Query().Get("year"), limit)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	if subs == nil {
		subs = []*manifest.Submission{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"submissions": subs})
}

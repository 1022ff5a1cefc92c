package entry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/learnerinfo/lis/internal/enrollment"
	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/manifest"
	"github.com/learnerinfo/lis/internal/storage"
	"github.com/learnerinfo/lis/internal/tabular"
	"github.com/learnerinfo/lis/pkg/types"
)

// UploadResult describes an applied bulk upload.
type UploadResult struct {
	Year string `json:"year"`
	Rows int    `json:"rows"`
	// NewSchools is the number of school IDs added to the registry.
	NewSchools int `json:"new_schools"`
	// SnapshotKey names the copy of the replaced file, if one existed.
	SnapshotKey  string `json:"snapshot_key,omitempty"`
	ETag         string `json:"etag"`
	SubmissionID string `json:"submission_id,omitempty"`
	// RegistryError is set when the file was replaced but the new schools
	// could not be added to the registry.
	RegistryError string `json:"registry_error,omitempty"`
}

// BulkUpload replaces the year's file with tbl. The table is validated in
// full before anything is written: it must carry a school ID on every row,
// its School Year cells must be blank or match year, and every grade cell
// must be blank, N/A or a non-negative whole number. The replaced file is
// snapshotted first; a snapshot of a version that lost a concurrent write
// race is discarded, so one snapshot survives per upload. School IDs the
// registry does not know are appended to it with whatever registry columns
// the upload carries. A registry failure after the file is replaced is
// reported in RegistryError rather than as an error.
func (w *Writer) BulkUpload(ctx context.Context, year string, tbl *tabular.Table) (*UploadResult, error) {
	sy, err := types.ParseSchoolYear(year)
	if err != nil {
		return nil, lerrors.NewValidationError(lerrors.CodeInvalidYear, err.Error())
	}
	if err := validateUpload(sy, tbl); err != nil {
		return nil, err
	}

	enrollment.PadToSchema(tbl)
	file, err := enrollment.DecodeTable(tbl)
	if err != nil {
		return nil, err
	}
	data, err := file.Table().CSV()
	if err != nil {
		return nil, lerrors.NewInternalError("failed to encode enrollment file", err)
	}

	unlock := w.lockYear(sy)
	defer unlock()

	res := &UploadResult{Year: string(sy), Rows: len(file.Records)}
	key := w.layout.Key(sy)
	for attempt := 1; ; attempt++ {
		previous, etag, err := w.store.Get(ctx, key)
		switch {
		case errors.Is(err, storage.ErrObjectNotFound):
			previous, etag = nil, ""
		case err != nil:
			return nil, lerrors.NewStorageError(lerrors.CodeReadFailed, "failed to read "+key, err)
		}

		if previous != nil && w.snapshots != nil {
			if res.SnapshotKey, err = w.snapshots.Save(ctx, sy, previous); err != nil {
				return nil, err
			}
		}

		res.ETag, err = w.store.ConditionalPut(ctx, key, data, etag)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrPreconditionFailed) {
			return nil, lerrors.NewStorageError(lerrors.CodeWriteFailed, "failed to write "+key, err)
		}
		if attempt >= w.attempts {
			return nil, lerrors.NewConflictError(key+" changed concurrently", err)
		}
		w.discardSnapshot(ctx, res)
	}
	log.Printf("entry: replaced %s with %d row(s)", key, res.Rows)

	res.NewSchools, err = w.registry.AppendSchools(ctx, uploadSchools(tbl))
	if err != nil {
		log.Printf("[WARN] entry: %s replaced but registry update failed: %v", key, err)
		res.RegistryError = err.Error()
	}

	w.journal(ctx, sy, key, res.ETag, file, data, &manifest.Submission{
		Year:     string(sy),
		Delta:    int64(res.Rows),
		NewValue: int64(res.Rows),
		Kind:     manifest.KindUpload,
		ETag:     res.ETag,
	}, &res.SubmissionID)
	return res, nil
}

// discardSnapshot drops the snapshot taken for an attempt whose put lost.
func (w *Writer) discardSnapshot(ctx context.Context, res *UploadResult) {
	if res.SnapshotKey == "" {
		return
	}
	if err := w.snapshots.Discard(ctx, res.SnapshotKey); err != nil {
		log.Printf("[WARN] entry: %v", err)
	}
	res.SnapshotKey = ""
}

// validateUpload checks every row and fills blank School Year cells.
func validateUpload(year types.SchoolYear, tbl *tabular.Table) error {
	if tbl == nil || !tbl.Has(types.ColSchoolID) {
		return lerrors.NewValidationError(lerrors.CodeInvalidSchema,
			fmt.Sprintf("upload has no %q column", types.ColSchoolID))
	}
	tbl.AddColumn(types.ColSchoolYear, "")

	var gradeCols []string
	for _, c := range tbl.Header {
		if _, ok := types.GradeOfColumn(c); ok {
			gradeCols = append(gradeCols, c)
		}
	}

	for i := range tbl.Rows {
		line := i + 2 // header is line 1
		if strings.TrimSpace(tbl.Get(i, types.ColSchoolID)) == "" {
			return rowError(lerrors.CodeMissingField, line, types.ColSchoolID, "missing school ID")
		}

		switch y := strings.TrimSpace(tbl.Get(i, types.ColSchoolYear)); y {
		case "", types.NA:
			tbl.Set(i, types.ColSchoolYear, string(year))
		case string(year):
		default:
			return rowError(lerrors.CodeInvalidYear, line, types.ColSchoolYear,
				fmt.Sprintf("school year %q does not match %s", y, year))
		}

		for _, col := range gradeCols {
			if _, err := types.ParseStrictCount(tbl.Get(i, col)); err != nil {
				return rowError(lerrors.CodeInvalidCount, line, col, "invalid count: "+err.Error())
			}
		}
	}
	return nil
}

func rowError(code string, line int, column, msg string) error {
	return lerrors.NewValidationError(code, fmt.Sprintf("line %d, %s: %s", line, column, msg)).
		WithDetails(map[string]interface{}{"line": line, "column": column})
}

// uploadSchools collects one registry entry per distinct school ID, taking
// the registry columns the upload carries.
func uploadSchools(tbl *tabular.Table) []types.School {
	var cols []string
	for _, c := range types.RegistryColumns() {
		if tbl.Has(c) {
			cols = append(cols, c)
		}
	}

	seen := make(map[string]bool)
	var out []types.School
	for i := range tbl.Rows {
		var s types.School
		for _, c := range cols {
			if v := strings.TrimSpace(tbl.Get(i, c)); v != "" && v != types.NA {
				s.SetField(c, v)
			}
		}
		if s.ID == "" || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out
}

// RestoreSnapshot writes a snapshot back as the year's file, snapshotting
// the file it replaces.
func (w *Writer) RestoreSnapshot(ctx context.Context, year string, key string) (*UploadResult, error) {
	if w.snapshots == nil {
		return nil, lerrors.NewValidationError(lerrors.CodeUnsupportedInput, "snapshots are disabled")
	}
	data, err := w.snapshots.Restore(ctx, key)
	if err != nil {
		return nil, err
	}
	tbl, err := tabular.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return w.BulkUpload(ctx, year, tbl)
}

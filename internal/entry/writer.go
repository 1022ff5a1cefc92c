// Package entry applies enrollment submissions and bulk uploads to the
// per-year enrollment files.
package entry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/learnerinfo/lis/internal/enrollment"
	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/manifest"
	"github.com/learnerinfo/lis/internal/notify"
	"github.com/learnerinfo/lis/internal/registry"
	"github.com/learnerinfo/lis/internal/snapshot"
	"github.com/learnerinfo/lis/internal/storage"
	"github.com/learnerinfo/lis/internal/tabular"
	"github.com/learnerinfo/lis/pkg/types"
)

// DefaultMaxAttempts bounds compare-and-swap retries per write.
const DefaultMaxAttempts = 3

// Config holds writer configuration.
type Config struct {
	Layout      enrollment.Layout
	MaxAttempts int
	// Notifier, when set, announces every committed write.
	Notifier *notify.Notifier
}

// Writer serializes writes per year within the process and relies on the
// storage compare-and-swap across processes. Catalog and snapshots are
// optional.
type Writer struct {
	store     storage.ObjectStorage
	registry  *registry.Registry
	catalog   manifest.Catalog
	snapshots *snapshot.Store
	notifier  *notify.Notifier
	layout    enrollment.Layout
	attempts  int
	validate  *validator.Validate

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWriter creates a writer. catalog and snapshots may be nil.
func NewWriter(store storage.ObjectStorage, reg *registry.Registry, catalog manifest.Catalog, snapshots *snapshot.Store, cfg Config) *Writer {
	if cfg.Layout.Prefix == "" {
		cfg.Layout = enrollment.DefaultLayout
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Writer{
		store:     store,
		registry:  reg,
		catalog:   catalog,
		snapshots: snapshots,
		notifier:  cfg.Notifier,
		layout:    cfg.Layout,
		attempts:  cfg.MaxAttempts,
		validate:  newValidator(),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (w *Writer) lockYear(year types.SchoolYear) func() {
	w.mu.Lock()
	l, ok := w.locks[string(year)]
	if !ok {
		l = &sync.Mutex{}
		w.locks[string(year)] = l
	}
	w.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Submission is one data-entry form submission.
type Submission struct {
	SchoolName string `json:"school_name" validate:"required"`
	Year       string `json:"year" validate:"required,schoolyear"`
	Grade      string `json:"grade" validate:"required,grade"`
	Gender     string `json:"gender" validate:"required,oneof=Male Female"`
	Count      int64  `json:"count" validate:"gte=0"`
	// Strand selects the track column for G11 and G12.
	Strand string `json:"strand,omitempty" validate:"omitempty,strand"`
}

// Column returns the enrollment column the submission targets.
func (s Submission) Column() (string, error) {
	grade, _ := types.ParseGrade(s.Grade)
	gender := types.Gender(s.Gender)
	if s.Strand == "" {
		return grade.Column(gender), nil
	}
	if !grade.IsSHS() {
		return "", lerrors.NewValidationError(lerrors.CodeInvalidGrade,
			fmt.Sprintf("strand %q applies only to G11 and G12", s.Strand))
	}
	strand, _ := types.StrandByLabel(s.Strand)
	return strand.Column(grade, gender), nil
}

// Result describes an applied submission.
type Result struct {
	SubmissionID string `json:"submission_id,omitempty"`
	Year         string `json:"year"`
	SchoolID     string `json:"school_id"`
	Column       string `json:"column"`
	Previous     int64  `json:"previous"`
	Value        int64  `json:"value"`
	// RowCreated is set when the (year, school) row did not exist.
	RowCreated bool   `json:"row_created"`
	ETag       string `json:"etag"`
}

// SubmitEnrollment adds the submitted count to the target cell of the
// school's row, creating the year's file and the row as needed. Validation
// failures write nothing.
func (w *Writer) SubmitEnrollment(ctx context.Context, sub Submission) (*Result, error) {
	if err := w.validate.Struct(sub); err != nil {
		return nil, validationError(err)
	}
	column, err := sub.Column()
	if err != nil {
		return nil, err
	}
	year, _ := types.ParseSchoolYear(sub.Year)

	school, err := w.registry.GetSchoolMetadata(ctx, sub.SchoolName)
	if err != nil {
		return nil, err
	}

	unlock := w.lockYear(year)
	defer unlock()

	key := w.layout.Key(year)
	for attempt := 1; ; attempt++ {
		file, etag, err := w.readFile(ctx, key)
		if err != nil {
			return nil, err
		}

		res := &Result{Year: string(year), SchoolID: school.ID, Column: column}
		rec := file.Find(string(year), school.ID)
		if rec == nil {
			rec = file.Insert(string(year), school.ID)
			res.RowCreated = true
		}
		file.EnsureColumn(column)

		res.Previous = rec.Count(column)
		if res.Previous > 0 && sub.Count > math.MaxInt64-res.Previous {
			return nil, lerrors.NewValidationError(lerrors.CodeInvalidCount,
				fmt.Sprintf("invalid count: %d + %d overflows", res.Previous, sub.Count))
		}
		res.Value = res.Previous + sub.Count
		rec.Counts[column] = types.Some(res.Value)

		data, err := file.Table().CSV()
		if err != nil {
			return nil, lerrors.NewInternalError("failed to encode enrollment file", err)
		}

		res.ETag, err = w.store.ConditionalPut(ctx, key, data, etag)
		if err == nil {
			log.Printf("entry: %s %s %s += %d (now %d)", year, school.ID, column, sub.Count, res.Value)
			w.journal(ctx, year, key, res.ETag, file, data, &manifest.Submission{
				Year:     string(year),
				SchoolID: school.ID,
				Column:   column,
				Delta:    sub.Count,
				NewValue: res.Value,
				Kind:     manifest.KindSubmit,
				ETag:     res.ETag,
			}, &res.SubmissionID)
			return res, nil
		}
		if !errors.Is(err, storage.ErrPreconditionFailed) {
			return nil, lerrors.NewStorageError(lerrors.CodeWriteFailed, "failed to write "+key, err)
		}
		if attempt >= w.attempts {
			return nil, lerrors.NewConflictError(key+" changed concurrently", err)
		}
		log.Printf("entry: %s changed during write, retrying (attempt %d/%d)", key, attempt+1, w.attempts)
	}
}

// readFile loads the year's file padded to the fixed schema. A missing
// file yields an empty one and an empty ETag, which makes the following
// put create-only.
func (w *Writer) readFile(ctx context.Context, key string) (*enrollment.File, string, error) {
	data, etag, err := w.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return enrollment.NewFile(), "", nil
		}
		return nil, "", lerrors.NewStorageError(lerrors.CodeReadFailed, "failed to read "+key, err)
	}

	tbl, err := tabular.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	if !tbl.Has(types.ColSchoolID) {
		return nil, "", lerrors.NewMalformedError(key+" has no "+types.ColSchoolID+" column", nil)
	}
	enrollment.PadToSchema(tbl)
	file, err := enrollment.DecodeTable(tbl)
	if err != nil {
		return nil, "", err
	}
	return file, etag, nil
}

// journal announces the write, then records the new file version and the
// submission. The catalog is advisory, so failures are logged and the
// write stands.
func (w *Writer) journal(ctx context.Context, year types.SchoolYear, key, etag string, file *enrollment.File, data []byte, sub *manifest.Submission, id *string) {
	if w.notifier != nil {
		w.notifier.Publish(notify.Event{
			Kind:     notify.Kind(sub.Kind),
			Year:     string(year),
			Key:      key,
			ETag:     etag,
			SchoolID: sub.SchoolID,
		})
	}
	if w.catalog == nil {
		return
	}
	if _, err := w.catalog.RecordFileVersion(ctx, manifest.FileVersion{
		Year:       string(year),
		ObjectPath: key,
		ETag:       etag,
		RowCount:   int64(len(file.Records)),
		SizeBytes:  int64(len(data)),
	}); err != nil {
		log.Printf("[WARN] entry: failed to record file version for %s: %v", year, err)
	}
	got, err := w.catalog.AppendSubmission(ctx, sub)
	if err != nil {
		log.Printf("[WARN] entry: failed to journal submission for %s: %v", year, err)
		return
	}
	if id != nil {
		*id = got
	}
}

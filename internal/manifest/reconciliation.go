package manifest

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/learnerinfo/lis/internal/enrollment"
	"github.com/learnerinfo/lis/internal/storage"
	"github.com/learnerinfo/lis/internal/tabular"
)

// ReconciliationReport contains the results of a catalog-storage reconciliation.
type ReconciliationReport struct {
	// Dangling are catalog entries whose file no longer exists in storage.
	Dangling []*FileVersion
	// Untracked are enrollment files with no catalog entry.
	Untracked []string
	// Stale are catalog entries whose ETag no longer matches the file.
	Stale []*FileVersion
	// TotalCatalogEntries is the number of catalog entries checked.
	TotalCatalogEntries int
	// TotalStorageObjects is the number of enrollment files scanned.
	TotalStorageObjects int
	RunAt               time.Time
}

// HasIssues returns true if storage and catalog disagree.
func (r *ReconciliationReport) HasIssues() bool {
	return len(r.Dangling) > 0 || len(r.Untracked) > 0 || len(r.Stale) > 0
}

// Reconcile compares the catalog with the enrollment files in storage.
func Reconcile(ctx context.Context, catalog Catalog, store storage.ObjectStorage, layout enrollment.Layout) (*ReconciliationReport, error) {
	report := &ReconciliationReport{RunAt: time.Now()}

	files, err := catalog.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list catalog files: %w", err)
	}
	report.TotalCatalogEntries = len(files)

	tracked := make(map[string]*FileVersion, len(files))
	for _, fv := range files {
		tracked[fv.ObjectPath] = fv
	}

	keys, err := store.List(ctx, layout.Prefix)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list storage objects: %w", err)
	}

	present := make(map[string]bool)
	for _, key := range keys {
		if _, ok := layout.ParseKey(key); !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.TotalStorageObjects++
		present[key] = true

		fv, ok := tracked[key]
		if !ok {
			report.Untracked = append(report.Untracked, key)
			continue
		}
		_, etag, err := store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reconciliation: failed to read %s: %w", key, err)
		}
		if etag != fv.ETag {
			report.Stale = append(report.Stale, fv)
		}
	}

	for _, fv := range files {
		if !present[fv.ObjectPath] {
			report.Dangling = append(report.Dangling, fv)
		}
	}
	return report, nil
}

// Sync records the current version of every untracked or stale enrollment
// file and returns the number of entries written. Dangling entries are
// reported, not removed.
func Sync(ctx context.Context, catalog Catalog, store storage.ObjectStorage, layout enrollment.Layout) (int, error) {
	report, err := Reconcile(ctx, catalog, store, layout)
	if err != nil {
		return 0, err
	}

	keys := append([]string(nil), report.Untracked...)
	for _, fv := range report.Stale {
		keys = append(keys, fv.ObjectPath)
	}

	synced := 0
	for _, key := range keys {
		year, _ := layout.ParseKey(key)
		data, etag, err := store.Get(ctx, key)
		if err != nil {
			return synced, fmt.Errorf("reconciliation: failed to read %s: %w", key, err)
		}
		rows := int64(0)
		if t, err := tabular.ReadCSV(bytes.NewReader(data)); err == nil {
			rows = int64(t.Len())
		}
		if _, err := catalog.RecordFileVersion(ctx, FileVersion{
			Year:       string(year),
			ObjectPath: key,
			ETag:       etag,
			RowCount:   rows,
			SizeBytes:  int64(len(data)),
		}); err != nil {
			return synced, err
		}
		synced++
	}

	for _, fv := range report.Dangling {
		log.Printf("[WARN] manifest: catalog entry for %s points at missing %s", fv.Year, fv.ObjectPath)
	}
	return synced, nil
}

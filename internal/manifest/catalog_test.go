package manifest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	lerrors "github.com/learnerinfo/lis/internal/errors"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	catalog, err := NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })
	return catalog
}

func TestCatalog_RecordAndGetFileVersion(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	fv, err := catalog.RecordFileVersion(ctx, FileVersion{
		Year:       "2023-2024",
		ObjectPath: "data_2023-2024.csv",
		ETag:       "abc",
		RowCount:   12,
		SizeBytes:  4096,
	})
	if err != nil {
		t.Fatalf("failed to record file version: %v", err)
	}
	if fv.Version != 1 {
		t.Errorf("version mismatch: got %d, want 1", fv.Version)
	}

	fv, err = catalog.RecordFileVersion(ctx, FileVersion{
		Year:       "2023-2024",
		ObjectPath: "data_2023-2024.csv",
		ETag:       "def",
		RowCount:   13,
		SizeBytes:  4200,
	})
	if err != nil {
		t.Fatalf("failed to record file version: %v", err)
	}
	if fv.Version != 2 {
		t.Errorf("version mismatch: got %d, want 2", fv.Version)
	}

	got, err := catalog.GetFileVersion(ctx, "2023-2024")
	if err != nil {
		t.Fatalf("failed to get file version: %v", err)
	}
	if got.ETag != "def" || got.RowCount != 13 || got.Version != 2 {
		t.Errorf("unexpected file version: %+v", got)
	}
}

func TestCatalog_GetFileVersion_NotFound(t *testing.T) {
	catalog := newTestCatalog(t)

	_, err := catalog.GetFileVersion(context.Background(), "2010-2011")
	if !lerrors.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestCatalog_RecordFileVersion_RequiresYear(t *testing.T) {
	catalog := newTestCatalog(t)

	_, err := catalog.RecordFileVersion(context.Background(), FileVersion{ObjectPath: "x"})
	if !lerrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCatalog_ListFiles(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	for _, year := range []string{"2024-2025", "2022-2023", "2023-2024"} {
		if _, err := catalog.RecordFileVersion(ctx, FileVersion{Year: year, ObjectPath: "data_" + year + ".csv"}); err != nil {
			t.Fatalf("failed to record %s: %v", year, err)
		}
	}

	files, err := catalog.ListFiles(ctx)
	if err != nil {
		t.Fatalf("failed to list files: %v", err)
	}
	want := []string{"2022-2023", "2023-2024", "2024-2025"}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %d", len(want), len(files))
	}
	for i, fv := range files {
		if fv.Year != want[i] {
			t.Errorf("file %d: got %s, want %s", i, fv.Year, want[i])
		}
	}
}

func TestCatalog_Submissions(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		id, err := catalog.AppendSubmission(ctx, &Submission{
			Year:      "2023-2024",
			SchoolID:  "100",
			Column:    "G1 Male",
			Delta:     int64(i + 1),
			NewValue:  int64(i + 1),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("failed to append submission: %v", err)
		}
		if id == "" {
			t.Fatal("expected a generated submission ID")
		}
	}
	if _, err := catalog.AppendSubmission(ctx, &Submission{Year: "2024-2025", SchoolID: "200", Kind: KindUpload}); err != nil {
		t.Fatalf("failed to append upload: %v", err)
	}

	subs, err := catalog.ListSubmissions(ctx, "2023-2024", 3)
	if err != nil {
		t.Fatalf("failed to list submissions: %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(subs))
	}
	if subs[0].Delta != 5 || subs[2].Delta != 3 {
		t.Errorf("expected newest first, got deltas %d..%d", subs[0].Delta, subs[2].Delta)
	}
	if subs[0].Kind != KindSubmit {
		t.Errorf("expected default kind %q, got %q", KindSubmit, subs[0].Kind)
	}

	all, err := catalog.ListSubmissions(ctx, "", 0)
	if err != nil {
		t.Fatalf("failed to list submissions: %v", err)
	}
	if len(all) != 6 {
		t.Errorf("expected 6 submissions, got %d", len(all))
	}

	count, err := catalog.CountSubmissions(ctx, "2023-2024")
	if err != nil {
		t.Fatalf("failed to count submissions: %v", err)
	}
	if count != 5 {
		t.Errorf("expected 5 submissions, got %d", count)
	}
}

func TestCatalog_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	catalog, err := NewCatalog(path)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	if _, err := catalog.RecordFileVersion(ctx, FileVersion{Year: "2023-2024", ObjectPath: "data_2023-2024.csv"}); err != nil {
		t.Fatalf("failed to record: %v", err)
	}
	if err := catalog.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	catalog, err = NewCatalog(path)
	if err != nil {
		t.Fatalf("failed to reopen catalog: %v", err)
	}
	defer catalog.Close()
	if _, err := catalog.GetFileVersion(ctx, "2023-2024"); err != nil {
		t.Errorf("expected entry to survive reopen: %v", err)
	}
}

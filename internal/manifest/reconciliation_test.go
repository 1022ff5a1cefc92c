package manifest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnerinfo/lis/internal/enrollment"
	"github.com/learnerinfo/lis/internal/storage"
)

const sampleFile = "School Year,BEIS School ID,K Male\n2023-2024,100,4\n2023-2024,200,N/A\n"

func setupReconciliationTest(t *testing.T) (*SQLiteCatalog, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return newTestCatalog(t), store
}

func TestReconcile_NoIssues(t *testing.T) {
	catalog, store := setupReconciliationTest(t)
	ctx := context.Background()

	etag, err := store.Put(ctx, "data_2023-2024.csv", []byte(sampleFile))
	require.NoError(t, err)
	_, err = catalog.RecordFileVersion(ctx, FileVersion{Year: "2023-2024", ObjectPath: "data_2023-2024.csv", ETag: etag})
	require.NoError(t, err)

	report, err := Reconcile(ctx, catalog, store, enrollment.DefaultLayout)
	require.NoError(t, err)
	assert.False(t, report.HasIssues())
	assert.Equal(t, 1, report.TotalCatalogEntries)
	assert.Equal(t, 1, report.TotalStorageObjects)
}

func TestReconcile_DetectsDanglingUntrackedAndStale(t *testing.T) {
	catalog, store := setupReconciliationTest(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "data_2022-2023.csv", []byte(sampleFile))
	require.NoError(t, err)
	_, err = store.Put(ctx, "data_2023-2024.csv", []byte(sampleFile))
	require.NoError(t, err)
	_, err = store.Put(ctx, "schools.csv", []byte("BEIS School ID\n"))
	require.NoError(t, err)

	_, err = catalog.RecordFileVersion(ctx, FileVersion{Year: "2023-2024", ObjectPath: "data_2023-2024.csv", ETag: "old"})
	require.NoError(t, err)
	_, err = catalog.RecordFileVersion(ctx, FileVersion{Year: "2019-2020", ObjectPath: "data_2019-2020.csv", ETag: "x"})
	require.NoError(t, err)

	report, err := Reconcile(ctx, catalog, store, enrollment.DefaultLayout)
	require.NoError(t, err)
	assert.True(t, report.HasIssues())
	assert.Equal(t, []string{"data_2022-2023.csv"}, report.Untracked)
	require.Len(t, report.Stale, 1)
	assert.Equal(t, "2023-2024", report.Stale[0].Year)
	require.Len(t, report.Dangling, 1)
	assert.Equal(t, "2019-2020", report.Dangling[0].Year)
}

func TestSync_RecordsUntrackedAndStale(t *testing.T) {
	catalog, store := setupReconciliationTest(t)
	ctx := context.Background()

	etag, err := store.Put(ctx, "data_2023-2024.csv", []byte(sampleFile))
	require.NoError(t, err)
	_, err = catalog.RecordFileVersion(ctx, FileVersion{Year: "2023-2024", ObjectPath: "data_2023-2024.csv", ETag: "old"})
	require.NoError(t, err)
	_, err = store.Put(ctx, "data_2024-2025.csv", []byte(sampleFile))
	require.NoError(t, err)

	n, err := Sync(ctx, catalog, store, enrollment.DefaultLayout)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fv, err := catalog.GetFileVersion(ctx, "2023-2024")
	require.NoError(t, err)
	assert.Equal(t, etag, fv.ETag)
	assert.Equal(t, int64(2), fv.Version)
	assert.Equal(t, int64(2), fv.RowCount)

	report, err := Reconcile(ctx, catalog, store, enrollment.DefaultLayout)
	require.NoError(t, err)
	assert.False(t, report.HasIssues())
}

// Package manifest provides the catalog of enrollment file versions and the
// journal of submissions applied to them.
package manifest

// The catalog is a SQLite database (catalog.db) kept next to the data
// files. It is advisory: the files in storage stay the source of truth and
// the catalog can be rebuilt from them with Sync.

// CreateEnrollmentFilesTableSQL tracks the latest known version of each
// per-year enrollment file.
const CreateEnrollmentFilesTableSQL = `
CREATE TABLE IF NOT EXISTS enrollment_files (
    year TEXT PRIMARY KEY,
    object_path TEXT NOT NULL,
    etag TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    row_count INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateSubmissionsTableSQL is the append-only journal of writes.
const CreateSubmissionsTableSQL = `
CREATE TABLE IF NOT EXISTS submissions (
    id TEXT PRIMARY KEY,
    year TEXT NOT NULL,
    school_id TEXT NOT NULL,
    column_name TEXT NOT NULL,
    delta INTEGER NOT NULL,
    new_value INTEGER NOT NULL,
    kind TEXT NOT NULL,
    etag TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateSubmissionsIndexesSQL creates the journal lookup indexes.
var CreateSubmissionsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_submissions_year ON submissions(year, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_school ON submissions(school_id)`,
}

// AnalyzeSQL refreshes query planner statistics.
const AnalyzeSQL = `ANALYZE`

// AllSchemaSQL returns all SQL statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	statements := []string{
		CreateEnrollmentFilesTableSQL,
		CreateSubmissionsTableSQL,
	}
	return append(statements, CreateSubmissionsIndexesSQL...)
}

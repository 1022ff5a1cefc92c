package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	lerrors "github.com/learnerinfo/lis/internal/errors"
)

// Catalog records enrollment file versions and the submission journal.
type Catalog interface {
	// RecordFileVersion upserts the latest version of a year's file. The
	// version counter increments on every call for the same year.
	RecordFileVersion(ctx context.Context, fv FileVersion) (*FileVersion, error)

	// GetFileVersion returns the recorded version of a year's file.
	GetFileVersion(ctx context.Context, year string) (*FileVersion, error)

	// ListFiles returns every recorded file ordered by year.
	ListFiles(ctx context.Context) ([]*FileVersion, error)

	// AppendSubmission journals one applied write and returns its ID.
	AppendSubmission(ctx context.Context, s *Submission) (string, error)

	// ListSubmissions returns the newest submissions for a year, newest
	// first. An empty year lists every year.
	ListSubmissions(ctx context.Context, year string, limit int) ([]*Submission, error)

	// Close closes the catalog database connection.
	Close() error
}

// FileVersion is one enrollment_files row.
type FileVersion struct {
	Year       string    `json:"year"`
	ObjectPath string    `json:"object_path"`
	ETag       string    `json:"etag"`
	Version    int64     `json:"version"`
	RowCount   int64     `json:"row_count"`
	SizeBytes  int64     `json:"size_bytes"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Submission kinds.
const (
	KindSubmit = "submit"
	KindUpload = "upload"
)

// Submission is one journal entry. Uploads replace a whole file and carry
// no column.
type Submission struct {
	ID        string    `json:"id"`
	Year      string    `json:"year"`
	SchoolID  string    `json:"school_id"`
	Column    string    `json:"column"`
	Delta     int64     `json:"delta"`
	NewValue  int64     `json:"new_value"`
	Kind      string    `json:"kind"`
	ETag      string    `json:"etag"`
	CreatedAt time.Time `json:"created_at"`
}

const defaultSubmissionLimit = 100

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool
	dbPath string
	mu     sync.Mutex // Write-only lock

	upsertFileStmt   *sql.Stmt
	insertSubmitStmt *sql.Stmt
}

// NewCatalog opens (creating if needed) the catalog at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	catalog := &SQLiteCatalog{db: db, dbPath: dbPath}

	// Schema must exist before the read-only pool connects.
	if err := catalog.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	catalog.readDB = readDB

	catalog.upsertFileStmt, err = db.Prepare(`
		INSERT INTO enrollment_files (
			year, object_path, etag, version, row_count, size_bytes, updated_at
		) VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(year) DO UPDATE SET
			object_path = excluded.object_path,
			etag = excluded.etag,
			version = enrollment_files.version + 1,
			row_count = excluded.row_count,
			size_bytes = excluded.size_bytes,
			updated_at = excluded.updated_at`)
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("manifest: failed to prepare upsert statement: %w", err)
	}

	catalog.insertSubmitStmt, err = db.Prepare(`
		INSERT INTO submissions (
			id, year, school_id, column_name, delta, new_value, kind, etag, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("manifest: failed to prepare insert statement: %w", err)
	}

	return catalog, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// RecordFileVersion upserts the latest version of a year's file.
func (c *SQLiteCatalog) RecordFileVersion(ctx context.Context, fv FileVersion) (*FileVersion, error) {
	if fv.Year == "" {
		return nil, lerrors.NewValidationError(lerrors.CodeMissingField, "file version requires a year")
	}
	if fv.UpdatedAt.IsZero() {
		fv.UpdatedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.upsertFileStmt.ExecContext(ctx,
		fv.Year, fv.ObjectPath, fv.ETag, fv.RowCount, fv.SizeBytes, fv.UpdatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to record file version: %w", err)
	}

	// Read back through the writer so the caller sees its own write.
	return scanFileVersion(c.db.QueryRowContext(ctx, selectFileSQL+" WHERE year = ?", fv.Year))
}

const selectFileSQL = `
	SELECT year, object_path, etag, version, row_count, size_bytes, updated_at
	FROM enrollment_files`

// GetFileVersion returns the recorded version of a year's file.
func (c *SQLiteCatalog) GetFileVersion(ctx context.Context, year string) (*FileVersion, error) {
	fv, err := scanFileVersion(c.readDB.QueryRowContext(ctx, selectFileSQL+" WHERE year = ?", year))
	if err == sql.ErrNoRows {
		return nil, lerrors.NewNotFoundError(lerrors.CodeObjectNotFound,
			fmt.Sprintf("no catalog entry for year %s", year))
	}
	return fv, err
}

// ListFiles returns every recorded file ordered by year.
func (c *SQLiteCatalog) ListFiles(ctx context.Context) ([]*FileVersion, error) {
	rows, err := c.readDB.QueryContext(ctx, selectFileSQL+" ORDER BY year")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to list files: %w", err)
	}
	defer rows.Close()

	var out []*FileVersion
	for rows.Next() {
		fv, err := scanFileVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fv)
	}
	return out, rows.Err()
}

// AppendSubmission journals one applied write. A missing ID is assigned.
func (c *SQLiteCatalog) AppendSubmission(ctx context.Context, s *Submission) (string, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.Kind == "" {
		s.Kind = KindSubmit
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.insertSubmitStmt.ExecContext(ctx,
		s.ID, s.Year, s.SchoolID, s.Column, s.Delta, s.NewValue, s.Kind, s.ETag,
		s.CreatedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("manifest: failed to append submission: %w", err)
	}
	return s.ID, nil
}

// ListSubmissions returns the newest submissions, newest first.
func (c *SQLiteCatalog) ListSubmissions(ctx context.Context, year string, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = defaultSubmissionLimit
	}

	query := `
		SELECT id, year, school_id, column_name, delta, new_value, kind, etag, created_at
		FROM submissions`
	var args []interface{}
	if year != "" {
		query += " WHERE year = ?"
		args = append(args, year)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to list submissions: %w", err)
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		var s Submission
		var created int64
		if err := rows.Scan(&s.ID, &s.Year, &s.SchoolID, &s.Column, &s.Delta,
			&s.NewValue, &s.Kind, &s.ETag, &created); err != nil {
			return nil, fmt.Errorf("manifest: failed to scan submission: %w", err)
		}
		s.CreatedAt = time.Unix(0, created)
		out = append(out, &s)
	}
	return out, rows.Err()
}

// CountSubmissions returns the number of journal entries for a year.
func (c *SQLiteCatalog) CountSubmissions(ctx context.Context, year string) (int64, error) {
	var count int64
	err := c.readDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM submissions WHERE year = ?", year,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("manifest: failed to count submissions: %w", err)
	}
	return count, nil
}

// RunAnalyze runs ANALYZE to update SQLite query planner statistics.
func (c *SQLiteCatalog) RunAnalyze(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, AnalyzeSQL); err != nil {
		return fmt.Errorf("manifest: failed to run ANALYZE: %w", err)
	}
	return nil
}

// Close closes the catalog database connections.
func (c *SQLiteCatalog) Close() error {
	if c.upsertFileStmt != nil {
		c.upsertFileStmt.Close()
	}
	if c.insertSubmitStmt != nil {
		c.insertSubmitStmt.Close()
	}
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			c.db.Close()
			return err
		}
	}
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFileVersion(row rowScanner) (*FileVersion, error) {
	var fv FileVersion
	var updated int64
	err := row.Scan(&fv.Year, &fv.ObjectPath, &fv.ETag, &fv.Version,
		&fv.RowCount, &fv.SizeBytes, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("manifest: failed to scan file version: %w", err)
	}
	fv.UpdatedAt = time.Unix(updated, 0)
	return &fv, nil
}

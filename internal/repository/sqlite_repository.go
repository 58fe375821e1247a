package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/recipegrabba/internal/domain"
)

const importsSchema = `
CREATE TABLE IF NOT EXISTS imports (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	status TEXT NOT NULL,
	slug TEXT,
	recipe_name TEXT,
	error TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_imports_created_at ON imports(created_at);
CREATE INDEX IF NOT EXISTS idx_imports_status ON imports(status);
`

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteImportRepository persists the import history in a SQLite file.
type SQLiteImportRepository struct {
	db   *sql.DB
	path string
}

// OpenSQLiteImportRepository opens or creates the history database at path.
func OpenSQLiteImportRepository(path string) (*SQLiteImportRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer avoids SQLITE_BUSY between concurrent imports.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(importsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteImportRepository{db: db, path: path}, nil
}

// Path returns the database file path.
func (r *SQLiteImportRepository) Path() string { return r.path }

// Record inserts a finished import.
func (r *SQLiteImportRepository) Record(ctx context.Context, rec *domain.ImportRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO imports (id, source, target, status, slug, recipe_name, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Source),
		rec.Target,
		string(rec.Status),
		nullableString(rec.Slug),
		nullableString(rec.RecipeName),
		nullableString(rec.Error),
		rec.DurationMS,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert import: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *SQLiteImportRepository) Recent(ctx context.Context, limit int) ([]*domain.ImportRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source, target, status, slug, recipe_name, error, duration_ms, created_at
		 FROM imports ORDER BY created_at DESC, rowid DESC LIMIT ?`, pageSize(limit))
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()

	var out []*domain.ImportRecord
	for rows.Next() {
		var (
			rec                     domain.ImportRecord
			source, status, created string
			slug, name, errMsg      sql.NullString
		)
		if err := rows.Scan(&rec.ID, &source, &rec.Target, &status, &slug, &name, &errMsg, &rec.DurationMS, &created); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		rec.Source = domain.ImportSource(source)
		rec.Status = domain.ImportStatus(status)
		rec.Slug = slug.String
		rec.RecipeName = name.String
		rec.Error = errMsg.String
		if t, err := time.Parse(timeLayout, created); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate imports: %w", err)
	}
	return out, nil
}

// Stats counts records by status.
func (r *SQLiteImportRepository) Stats(ctx context.Context) (*domain.ImportStats, error) {
	var (
		stats domain.ImportStats
		last  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(status = 'ok'), 0),
		       COALESCE(SUM(status = 'error'), 0),
		       COALESCE(SUM(status = 'duplicate'), 0),
		       MAX(CASE WHEN status = 'ok' THEN created_at END)
		FROM imports`).Scan(&stats.Total, &stats.OK, &stats.Failed, &stats.Duplicates, &last)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	if last.Valid {
		if t, err := time.Parse(timeLayout, last.String); err == nil {
			stats.LastImport = t
		}
	}
	return &stats, nil
}

// Close closes the database.
func (r *SQLiteImportRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

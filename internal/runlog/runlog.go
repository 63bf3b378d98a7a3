// Package runlog persists a queryable index of completed jobs in a
// SQLite database under the smartfolder home. The authoritative audit
// trail stays in each folder's history.jsonl; the index exists so the
// history command can answer "what ran lately" across folders without
// scanning every state directory.
package runlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run is one completed job.
type Run struct {
	ID         string
	Folder     string
	File       string
	Model      string
	OK         bool
	Summary    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store handles run persistence.
type Store struct {
	db *sql.DB
}

// NewStore opens (and migrates) the run index at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		folder TEXT NOT NULL,
		file TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		ok INTEGER NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_folder ON runs(folder);
	CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// NewID generates a new UUIDv7, falling back to v4.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Record persists one run.
func (s *Store) Record(r *Run) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, folder, file, model, ok, summary, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Folder, r.File, r.Model, boolToInt(r.OK), r.Summary,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns the most recently finished runs, newest first.
// folder narrows the query when non-empty.
func (s *Store) Recent(folder string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, folder, file, model, ok, summary, started_at, finished_at
		 FROM runs`
	args := []any{}
	if folder != "" {
		query += ` WHERE folder = ?`
		args = append(args, folder)
	}
	query += ` ORDER BY finished_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var ok int
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Folder, &r.File, &r.Model, &ok, &r.Summary, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.OK = ok != 0
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

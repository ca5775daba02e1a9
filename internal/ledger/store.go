// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records every acquisition outcome in a SQLite database so
// past runs can be reviewed with the history command.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mengsi16/PaperCrawler/pkg/types"
)

// Store is an open ledger database. Records written through one Store share
// a run ID.
type Store struct {
	db    *sql.DB
	runID string
}

// Open opens or creates the ledger at path and starts a new run.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	s := &Store{db: db, runID: uuid.NewString()}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return s, nil
}

// RunID returns the identifier shared by this Store's records.
func (s *Store) RunID() string { return s.runID }

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS acquisitions (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			run_id TEXT NOT NULL,
			title TEXT NOT NULL,
			venue TEXT,
			path TEXT,
			success INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			source TEXT,
			failures TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_acquisitions_run_id ON acquisitions(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_acquisitions_title ON acquisitions(title)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores rec. An empty ID or RunID is filled in, and a zero
// CreatedAt becomes the current time.
func (s *Store) Record(ctx context.Context, rec types.AcquisitionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RunID == "" {
		rec.RunID = s.runID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var failures []byte
	if len(rec.Failures) > 0 {
		var err error
		if failures, err = json.Marshal(rec.Failures); err != nil {
			return fmt.Errorf("encoding failures: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO acquisitions (id, run_id, title, venue, path, success, skipped, source, failures, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Title, rec.Venue, rec.Path,
		boolToInt(rec.Success), boolToInt(rec.Skipped), rec.Source,
		string(failures), rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting acquisition %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first. A limit of zero or less
// returns every record.
func (s *Store) Recent(ctx context.Context, limit int) ([]types.AcquisitionRecord, error) {
	query := `SELECT id, run_id, title, venue, path, success, skipped, source, failures, created_at
		FROM acquisitions ORDER BY rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying acquisitions: %w", err)
	}
	defer rows.Close()

	var out []types.AcquisitionRecord
	for rows.Next() {
		var (
			rec                 types.AcquisitionRecord
			venue, path, source sql.NullString
			failures            sql.NullString
			success, skipped    int
			createdAt           string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Title, &venue, &path,
			&success, &skipped, &source, &failures, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning acquisition: %w", err)
		}
		rec.Venue = venue.String
		rec.Path = path.String
		rec.Source = source.String
		rec.Success = success != 0
		rec.Skipped = skipped != 0
		if failures.String != "" {
			if err := json.Unmarshal([]byte(failures.String), &rec.Failures); err != nil {
				return nil, fmt.Errorf("decoding failures of %s: %w", rec.ID, err)
			}
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing time of %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

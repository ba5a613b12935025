// Package store keeps a SQLite log of stall decisions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sweeney/stall-sensor/internal/logic"

	_ "modernc.org/sqlite" // SQLite driver.
)

const writeTimeout = 2 * time.Second

// Entry is one recorded decision.
type Entry struct {
	ID         int64
	RunID      string
	Decision   logic.Decision
	RecordedAt time.Time
}

// Store wraps SQLite access for the decision log.
type Store struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
// Decisions reported through the returned Store are tagged with runID.
func Open(path, runID string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// Reports arrive from one goroutine; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, runID: runID, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			sim_ts REAL NOT NULL,
			predicted_stall INTEGER NOT NULL,
			score REAL NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_run_seq ON decisions(run_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Report appends d to the log. Store satisfies report.Reporter.
func (s *Store) Report(d logic.Decision) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.Insert(ctx, d)
}

// Insert appends d to the log.
func (s *Store) Insert(ctx context.Context, d logic.Decision) error {
	positive := 0
	if d.Positive {
		positive = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (run_id, seq, sim_ts, predicted_stall, score, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.runID,
		int64(d.Seq),
		d.Timestamp,
		positive,
		d.Score,
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: insert decision %d: %w", d.Seq, err)
	}
	return nil
}

// Recent returns up to limit decisions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, seq, sim_ts, predicted_stall, score, recorded_at
		 FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			seq      int64
			positive int
			recorded string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &seq, &e.Decision.Timestamp, &positive, &e.Decision.Score, &recorded); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		e.Decision.Seq = uint64(seq)
		e.Decision.Positive = positive != 0
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("store: parse recorded_at %q: %w", recorded, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows: %w", err)
	}
	return out, nil
}

// Count returns the number of decisions for runID, or all runs if runID is empty.
func (s *Store) Count(ctx context.Context, runID string) (int, error) {
	var (
		n   int
		err error
	)
	if runID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions WHERE run_id = ?`, runID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

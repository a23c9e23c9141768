package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/Iron-Ham/phasekit/internal/errors"
	"github.com/Iron-Ham/phasekit/internal/plan"
)

// SQLiteStore keeps snapshots of all plans in one SQLite database. Each
// Save replaces the plan's rows inside a single transaction.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		source_id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		current_group TEXT NOT NULL DEFAULT '',
		finished INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS steps (
		source_id TEXT NOT NULL,
		step_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		status TEXT NOT NULL,
		assignee TEXT NOT NULL DEFAULT '',
		result_summary TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		commit_ref TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (source_id, step_id)
	);`,
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewStateError("failed to create state directory", err).
			WithBackend(BackendSQLite).
			WithPath(path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewStateError("failed to open database", err).
			WithBackend(BackendSQLite).
			WithPath(path)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	for _, q := range sqliteSchema {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, errors.NewStateError("failed to create schema", err).
				WithBackend(BackendSQLite).
				WithPath(path)
		}
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Load reads the snapshot for sourceID.
func (s *SQLiteStore) Load(sourceID string) (*Snapshot, error) {
	snap := Snapshot{SourceID: sourceID}
	var startedAt, updatedAt string
	var finished, success int

	row := s.db.QueryRow(`SELECT version, run_id, started_at, updated_at, current_group, finished, success
		FROM runs WHERE source_id = ?`, sourceID)
	err := row.Scan(&snap.Version, &snap.RunID, &startedAt, &updatedAt, &snap.CurrentGroup, &finished, &success)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewStateError("no saved state for "+sourceID, errors.ErrStateNotFound).
			WithBackend(BackendSQLite).
			WithPath(s.path)
	}
	if err != nil {
		return nil, s.wrap("failed to read run", err)
	}
	snap.Finished = finished != 0
	snap.Success = success != 0
	if snap.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, s.corrupted("started_at", err)
	}
	if snap.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, s.corrupted("updated_at", err)
	}

	rows, err := s.db.Query(`SELECT step_id, status, assignee, result_summary, error_message, commit_ref, updated_at
		FROM steps WHERE source_id = ? ORDER BY position`, sourceID)
	if err != nil {
		return nil, s.wrap("failed to read steps", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var st StepState
		var status, stepUpdated string
		if err := rows.Scan(&st.ID, &status, &st.Assignee, &st.ResultSummary, &st.ErrorMessage, &st.CommitRef, &stepUpdated); err != nil {
			return nil, s.wrap("failed to scan step", err)
		}
		st.Status = plan.Status(status)
		if st.UpdatedAt, err = parseTime(stepUpdated); err != nil {
			return nil, s.corrupted("steps.updated_at", err)
		}
		snap.Steps = append(snap.Steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("failed to read steps", err)
	}

	return &snap, nil
}

// Save writes snap, replacing any earlier snapshot of the same plan.
func (s *SQLiteStore) Save(snap *Snapshot) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return s.wrap("failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.Exec(`INSERT INTO runs (source_id, version, run_id, started_at, updated_at, current_group, finished, success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			version = excluded.version,
			run_id = excluded.run_id,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at,
			current_group = excluded.current_group,
			finished = excluded.finished,
			success = excluded.success`,
		snap.SourceID, snap.Version, snap.RunID, formatTime(snap.StartedAt), formatTime(snap.UpdatedAt),
		snap.CurrentGroup, boolInt(snap.Finished), boolInt(snap.Success))
	if err != nil {
		return s.wrap("failed to save run", err)
	}

	if _, err = tx.Exec(`DELETE FROM steps WHERE source_id = ?`, snap.SourceID); err != nil {
		return s.wrap("failed to clear steps", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO steps (source_id, step_id, position, status, assignee, result_summary, error_message, commit_ref, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return s.wrap("failed to prepare step insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, st := range snap.Steps {
		if _, err = stmt.Exec(snap.SourceID, st.ID, i, string(st.Status), st.Assignee, st.ResultSummary,
			st.ErrorMessage, st.CommitRef, formatTime(st.UpdatedAt)); err != nil {
			return s.wrap("failed to save step "+st.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return s.wrap("failed to commit snapshot", err)
	}
	return nil
}

// Delete removes the snapshot for sourceID.
func (s *SQLiteStore) Delete(sourceID string) error {
	if _, err := s.db.Exec(`DELETE FROM steps WHERE source_id = ?`, sourceID); err != nil {
		return s.wrap("failed to delete steps", err)
	}
	if _, err := s.db.Exec(`DELETE FROM runs WHERE source_id = ?`, sourceID); err != nil {
		return s.wrap("failed to delete run", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) wrap(msg string, err error) error {
	return errors.NewStateError(msg, err).
		WithBackend(BackendSQLite).
		WithPath(s.path).
		WithRetryable(true)
}

func (s *SQLiteStore) corrupted(field string, err error) error {
	return errors.NewStateError(fmt.Sprintf("invalid %s: %v", field, err), errors.ErrStateCorrupted).
		WithBackend(BackendSQLite).
		WithPath(s.path)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

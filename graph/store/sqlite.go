package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file SQLite implementation of Store.
//
// Designed for local workflows that need persistence with zero setup:
// the database file is created and migrated on first use, WAL mode keeps
// concurrent readers off the writer's back, and ":memory:" gives an
// ephemeral database for tests.
//
// Schema:
//   - run_steps: append-only step history per run
//   - run_checkpoints: named snapshots for resumption
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) the database at path.
//
// Path may be a file ("./opsmend.db") or ":memory:" for an in-memory
// database that vanishes on Close.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports a single writer; keep one connection so the in-memory
	// variant sees a consistent database too.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stepsTable := `
		CREATE TABLE IF NOT EXISTS run_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, step)
		)
	`
	if _, err := s.db.ExecContext(ctx, stepsTable); err != nil {
		return fmt.Errorf("failed to create run_steps table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_run_steps_run ON run_steps(run_id, step)"); err != nil {
		return fmt.Errorf("failed to create idx_run_steps_run: %w", err)
	}

	checkpointsTable := `
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			checkpoint_id TEXT NOT NULL UNIQUE,
			state TEXT NOT NULL,
			step INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, checkpointsTable); err != nil {
		return fmt.Errorf("failed to create run_checkpoints table: %w", err)
	}
	return nil
}

// SaveStep persists a step, replacing any existing record for the same
// run and step number.
func (s *SQLiteStore) SaveStep(ctx context.Context, runID string, step int, nodeID string, state Snapshot) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := `
		INSERT INTO run_steps (run_id, step, node_id, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			node_id = excluded.node_id,
			state = excluded.state
	`
	if _, err := s.db.ExecContext(ctx, query, runID, step, nodeID, string(stateJSON)); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest returns the state of the highest-numbered step for the run.
func (s *SQLiteStore) LoadLatest(ctx context.Context, runID string) (Snapshot, int, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT step, state FROM run_steps
		WHERE run_id = ?
		ORDER BY step DESC
		LIMIT 1
	`
	var step int
	var stateJSON string
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load latest step: %w", err)
	}

	var state Snapshot
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

// History returns the run's steps in step order.
func (s *SQLiteStore) History(ctx context.Context, runID string) ([]StepRecord, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT step, node_id, state, created_at FROM run_steps
		WHERE run_id = ?
		ORDER BY step ASC
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []StepRecord
	for rows.Next() {
		var rec StepRecord
		var stateJSON string
		if err := rows.Scan(&rec.Step, &rec.NodeID, &stateJSON, &rec.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// SaveCheckpoint stores (or replaces) a named snapshot.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cpID string, state Snapshot, step int) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := `
		INSERT INTO run_checkpoints (checkpoint_id, state, step)
		VALUES (?, ?, ?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET
			state = excluded.state,
			step = excluded.step,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, cpID, string(stateJSON), step); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint retrieves a named snapshot.
func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, cpID string) (Snapshot, int, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, 0, err
	}

	query := `SELECT state, step FROM run_checkpoints WHERE checkpoint_id = ?`
	var stateJSON string
	var step int
	err := s.db.QueryRowContext(ctx, query, cpID).Scan(&stateJSON, &step)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var state Snapshot
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

// Close releases the database connection. Subsequent operations fail.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

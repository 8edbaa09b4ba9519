package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL-backed implementation of Store for deployments
// where several remediation workers share one history database.
//
// The DSN must include parseTime=true so TIMESTAMP columns scan into
// time.Time, e.g.:
//
//	user:pass@tcp(localhost:3306)/opsmend?parseTime=true
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore connects to MySQL, verifies the connection, and creates
// the schema if it does not exist.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	stepsTable := `
		CREATE TABLE IF NOT EXISTS run_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			state JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_run_step (run_id, step),
			KEY idx_run (run_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`
	if _, err := s.db.ExecContext(ctx, stepsTable); err != nil {
		return fmt.Errorf("failed to create run_steps table: %w", err)
	}

	checkpointsTable := `
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			checkpoint_id VARCHAR(255) NOT NULL,
			state JSON NOT NULL,
			step INT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uq_checkpoint (checkpoint_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`
	if _, err := s.db.ExecContext(ctx, checkpointsTable); err != nil {
		return fmt.Errorf("failed to create run_checkpoints table: %w", err)
	}
	return nil
}

// SaveStep persists a step, replacing any existing record for the same
// run and step number.
func (s *MySQLStore) SaveStep(ctx context.Context, runID string, step int, nodeID string, state Snapshot) error {
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
		ON DUPLICATE KEY UPDATE
			node_id = VALUES(node_id),
			state = VALUES(state)
	`
	if _, err := s.db.ExecContext(ctx, query, runID, step, nodeID, string(stateJSON)); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest returns the state of the highest-numbered step for the run.
func (s *MySQLStore) LoadLatest(ctx context.Context, runID string) (Snapshot, int, error) {
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
	var stateJSON []byte
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load latest step: %w", err)
	}

	var state Snapshot
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

// History returns the run's steps in step order.
func (s *MySQLStore) History(ctx context.Context, runID string) ([]StepRecord, error) {
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
		var stateJSON []byte
		if err := rows.Scan(&rec.Step, &rec.NodeID, &stateJSON, &rec.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal(stateJSON, &rec.State); err != nil {
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
func (s *MySQLStore) SaveCheckpoint(ctx context.Context, cpID string, state Snapshot, step int) error {
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
		ON DUPLICATE KEY UPDATE
			state = VALUES(state),
			step = VALUES(step)
	`
	if _, err := s.db.ExecContext(ctx, query, cpID, string(stateJSON), step); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint retrieves a named snapshot.
func (s *MySQLStore) LoadCheckpoint(ctx context.Context, cpID string) (Snapshot, int, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, 0, err
	}

	query := `SELECT state, step FROM run_checkpoints WHERE checkpoint_id = ?`
	var stateJSON []byte
	var step int
	err := s.db.QueryRowContext(ctx, query, cpID).Scan(&stateJSON, &step)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var state Snapshot
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

// Close releases the connection pool. Subsequent operations fail.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *MySQLStore) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Package store provides persistence backends for run state and checkpoints.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run ID or checkpoint ID does not
// exist.
var ErrNotFound = errors.New("not found")

// Snapshot is a persisted state image. The engine hands its State to the
// store as a Snapshot; backends serialize it as JSON.
type Snapshot map[string]interface{}

// StepRecord is one persisted execution step of a run.
type StepRecord struct {
	Step    int
	NodeID  string
	State   Snapshot
	SavedAt time.Time
}

// Store persists run state and named checkpoints.
//
// Per run ID the step history is append-only and single-writer: the engine
// invocation that owns the run is the only writer, so backends need no
// cross-writer coordination beyond their own internal locking.
//
// Implementations: MemStore (testing, ephemeral runs), SQLiteStore (local
// persistence, zero setup), MySQLStore (shared production persistence).
type Store interface {
	// SaveStep persists the post-merge state of one execution step.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state Snapshot) error

	// LoadLatest retrieves the most recent persisted state of a run.
	// Returns ErrNotFound if the run has no persisted steps.
	LoadLatest(ctx context.Context, runID string) (Snapshot, int, error)

	// History returns a run's persisted steps in step order.
	// Returns ErrNotFound if the run has no persisted steps.
	History(ctx context.Context, runID string) ([]StepRecord, error)

	// SaveCheckpoint stores a named snapshot for later resumption.
	// Saving an existing checkpoint ID replaces it.
	SaveCheckpoint(ctx context.Context, cpID string, state Snapshot, step int) error

	// LoadCheckpoint retrieves a named snapshot.
	// Returns ErrNotFound if the checkpoint does not exist.
	LoadCheckpoint(ctx context.Context, cpID string) (Snapshot, int, error)
}

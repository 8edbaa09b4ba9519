package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests, development, and short-lived
// runs that don't need persistence across process restarts.
//
// Snapshots are deep-copied on save and load so callers can never mutate
// stored history through a shared map.
type MemStore struct {
	mu          sync.RWMutex
	steps       map[string][]StepRecord
	checkpoints map[string]checkpointRecord
}

type checkpointRecord struct {
	state Snapshot
	step  int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		steps:       make(map[string][]StepRecord),
		checkpoints: make(map[string]checkpointRecord),
	}
}

// SaveStep appends a step to the run's history.
func (m *MemStore) SaveStep(_ context.Context, runID string, step int, nodeID string, state Snapshot) error {
	copied, err := copySnapshot(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.steps[runID] = append(m.steps[runID], StepRecord{
		Step:    step,
		NodeID:  nodeID,
		State:   copied,
		SavedAt: time.Now().UTC(),
	})
	return nil
}

// LoadLatest returns the state of the highest-numbered step for the run.
func (m *MemStore) LoadLatest(_ context.Context, runID string) (Snapshot, int, error) {
	m.mu.RLock()
	records := m.steps[runID]
	var latest *StepRecord
	for i := range records {
		if latest == nil || records[i].Step > latest.Step {
			latest = &records[i]
		}
	}
	m.mu.RUnlock()

	if latest == nil {
		return nil, 0, ErrNotFound
	}
	copied, err := copySnapshot(latest.State)
	if err != nil {
		return nil, 0, err
	}
	return copied, latest.Step, nil
}

// History returns the run's steps sorted by step number.
func (m *MemStore) History(_ context.Context, runID string) ([]StepRecord, error) {
	m.mu.RLock()
	records := m.steps[runID]
	out := make([]StepRecord, 0, len(records))
	for _, rec := range records {
		copied, err := copySnapshot(rec.State)
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		rec.State = copied
		out = append(out, rec)
	}
	m.mu.RUnlock()

	if len(out) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// SaveCheckpoint stores (or replaces) a named snapshot.
func (m *MemStore) SaveCheckpoint(_ context.Context, cpID string, state Snapshot, step int) error {
	copied, err := copySnapshot(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cpID] = checkpointRecord{state: copied, step: step}
	return nil
}

// LoadCheckpoint retrieves a named snapshot.
func (m *MemStore) LoadCheckpoint(_ context.Context, cpID string) (Snapshot, int, error) {
	m.mu.RLock()
	rec, ok := m.checkpoints[cpID]
	m.mu.RUnlock()

	if !ok {
		return nil, 0, ErrNotFound
	}
	copied, err := copySnapshot(rec.state)
	if err != nil {
		return nil, 0, err
	}
	return copied, rec.step, nil
}

// copySnapshot deep-copies via a JSON round trip, matching how the SQL
// backends serialize state.
func copySnapshot(s Snapshot) (Snapshot, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	var copied Snapshot
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return copied, nil
}

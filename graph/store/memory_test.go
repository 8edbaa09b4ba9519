package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	t.Run("load latest returns highest step", func(t *testing.T) {
		for step := 1; step <= 3; step++ {
			snap := Snapshot{"iteration": step}
			if err := st.SaveStep(ctx, "run-1", step, "worker", snap); err != nil {
				t.Fatalf("SaveStep failed: %v", err)
			}
		}

		snap, step, err := st.LoadLatest(ctx, "run-1")
		if err != nil {
			t.Fatalf("LoadLatest failed: %v", err)
		}
		if step != 3 {
			t.Errorf("expected step 3, got %d", step)
		}
		// Snapshots round trip through JSON, so numbers come back as float64.
		if got, _ := snap["iteration"].(float64); got != 3 {
			t.Errorf("expected iteration 3, got %v", snap["iteration"])
		}
	})

	t.Run("history in step order", func(t *testing.T) {
		records, err := st.History(ctx, "run-1")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		for i, rec := range records {
			if rec.Step != i+1 {
				t.Errorf("record %d has step %d", i, rec.Step)
			}
			if rec.NodeID != "worker" {
				t.Errorf("record %d has node %q", i, rec.NodeID)
			}
		}
	})

	t.Run("unknown run returns ErrNotFound", func(t *testing.T) {
		if _, _, err := st.LoadLatest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := st.History(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMemStore_Isolation(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	snap := Snapshot{"items": []interface{}{"a"}}
	if err := st.SaveStep(ctx, "run-1", 1, "worker", snap); err != nil {
		t.Fatalf("SaveStep failed: %v", err)
	}

	// Mutating the caller's snapshot after save must not affect the store.
	snap["items"] = []interface{}{"mutated"}

	loaded, _, err := st.LoadLatest(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	items, _ := loaded["items"].([]interface{})
	if len(items) != 1 || items[0] != "a" {
		t.Errorf("stored snapshot aliases caller data: %#v", loaded["items"])
	}

	// Mutating a loaded snapshot must not affect later loads.
	loaded["items"] = "poisoned"
	again, _, err := st.LoadLatest(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if _, ok := again["items"].([]interface{}); !ok {
		t.Errorf("loaded snapshot shares state with store: %#v", again["items"])
	}
}

func TestMemStore_Checkpoints(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	if err := st.SaveCheckpoint(ctx, "cp-1", Snapshot{"validated": true}, 4); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	snap, step, err := st.LoadCheckpoint(ctx, "cp-1")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if step != 4 {
		t.Errorf("expected step 4, got %d", step)
	}
	if v, _ := snap["validated"].(bool); !v {
		t.Errorf("expected validated snapshot, got %#v", snap)
	}

	// Same ID overwrites.
	if err := st.SaveCheckpoint(ctx, "cp-1", Snapshot{"validated": false}, 5); err != nil {
		t.Fatalf("SaveCheckpoint overwrite failed: %v", err)
	}
	_, step, err = st.LoadCheckpoint(ctx, "cp-1")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if step != 5 {
		t.Errorf("expected overwritten step 5, got %d", step)
	}

	if _, _, err := st.LoadCheckpoint(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

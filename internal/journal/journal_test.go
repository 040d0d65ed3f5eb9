package journal

import (
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func TestAppendAndPending(t *testing.T) {
	j := openTestJournal(t)

	for _, kind := range []string{"agent_started", "config_changed", "sync_cycle"} {
		if err := j.Append(kind, []byte(`{"n":1}`)); err != nil {
			t.Fatal(err)
		}
	}

	events, err := j.PendingBatch(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("pending = %d, want 3", len(events))
	}
	// append order
	if events[0].Kind != "agent_started" || events[2].Kind != "sync_cycle" {
		t.Fatalf("wrong order: %v, %v", events[0].Kind, events[2].Kind)
	}
	if j.Depth() != 3 {
		t.Fatalf("depth = %d, want 3", j.Depth())
	}
}

func TestPendingBatch_Limit(t *testing.T) {
	j := openTestJournal(t)
	for i := 0; i < 5; i++ {
		if err := j.Append("tick", nil); err != nil {
			t.Fatal(err)
		}
	}
	events, err := j.PendingBatch(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("batch = %d, want 2", len(events))
	}
}

func TestMarkDelivered(t *testing.T) {
	j := openTestJournal(t)
	if err := j.Append("one", nil); err != nil {
		t.Fatal(err)
	}
	if err := j.Append("two", nil); err != nil {
		t.Fatal(err)
	}

	events, err := j.PendingBatch(10)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.MarkDelivered([]uint{events[0].ID}); err != nil {
		t.Fatal(err)
	}

	remaining, err := j.PendingBatch(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].Kind != "two" {
		t.Fatalf("unexpected remaining events: %+v", remaining)
	}
	if j.Depth() != 1 {
		t.Fatalf("depth = %d, want 1", j.Depth())
	}

	// empty id list is a no-op, not an error
	if err := j.MarkDelivered(nil); err != nil {
		t.Fatal(err)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	j := openTestJournal(t)
	if err := j.Append("old", nil); err != nil {
		t.Fatal(err)
	}
	if err := j.Append("new", nil); err != nil {
		t.Fatal(err)
	}

	events, err := j.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Kind != "new" {
		t.Fatalf("unexpected recent events: %+v", events)
	}
}

func TestPruneDelivered(t *testing.T) {
	j := openTestJournal(t)
	if err := j.Append("keep-pending", nil); err != nil {
		t.Fatal(err)
	}
	if err := j.Append("prune-me", nil); err != nil {
		t.Fatal(err)
	}

	events, err := j.PendingBatch(10)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.MarkDelivered([]uint{events[1].ID}); err != nil {
		t.Fatal(err)
	}

	// retention in the past prunes everything delivered
	n, err := j.PruneDelivered(-time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}
	// the undelivered row survives
	if j.Depth() != 1 {
		t.Fatalf("depth = %d, want 1", j.Depth())
	}

	// recent delivered rows are kept
	if err := j.MarkDelivered([]uint{events[0].ID}); err != nil {
		t.Fatal(err)
	}
	n, err = j.PruneDelivered(24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("pruned fresh row: n = %d", n)
	}
}

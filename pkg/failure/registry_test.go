package failure

import (
	"context"
	"testing"

	"github.com/meshland/catalyst/pkg/storage"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRegistry(store)
}

func TestRecordAndGetStatus(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Record(ctx, "E1", "scene", "peer-a", 1000, ReasonFetchProblem, "content fetch timed out"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	fd, ok, err := r.GetStatus(ctx, "E1")
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if !ok {
		t.Fatal("GetStatus() ok = false, want true")
	}
	if fd.Reason != ReasonFetchProblem {
		t.Errorf("Reason = %q, want %q", fd.Reason, ReasonFetchProblem)
	}
}

func TestGetStatusMissingReturnsFalse(t *testing.T) {
	r := newTestRegistry(t)
	_, ok, err := r.GetStatus(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if ok {
		t.Fatal("GetStatus() ok = true for unrecorded entity")
	}
}

func TestClearRemovesEntry(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Record(ctx, "E1", "scene", "peer-a", 1000, ReasonDeploymentError, "storage error"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := r.Clear(ctx, "E1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	_, ok, err := r.GetStatus(ctx, "E1")
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if ok {
		t.Fatal("GetStatus() ok = true after Clear")
	}
}

func TestListReturnsAllFailures(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Record(ctx, "E1", "scene", "peer-a", 1000, ReasonNoEntityOrAudit, ""); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := r.Record(ctx, "E2", "profile", "peer-b", 2000, ReasonFetchProblem, ""); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	all, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(all))
	}
}

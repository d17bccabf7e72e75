package history

import (
	"context"
	"testing"
	"time"

	"github.com/meshland/catalyst/pkg/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewManager(store, time.Minute)
}

func TestAppendIsIdempotentOnEntityID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	e := Event{ServerName: "s1", EntityID: "E1", EntityType: "scene", Timestamp: 1000}
	if err := m.Append(ctx, e); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := m.Append(ctx, e); err != nil {
		t.Fatalf("second Append() error = %v", err)
	}

	events, err := m.GetHistory(ctx, nil, nil, "")
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("GetHistory() returned %d events, want 1 (duplicate should be ignored)", len(events))
	}
}

func TestGetHistoryOrdersByTimestampThenEntityID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Appended out of order; must come back ordered by (timestamp, entityId).
	events := []Event{
		{ServerName: "s1", EntityID: "B", EntityType: "scene", Timestamp: 2000},
		{ServerName: "s1", EntityID: "A", EntityType: "scene", Timestamp: 1000},
		{ServerName: "s1", EntityID: "D", EntityType: "scene", Timestamp: 2000},
		{ServerName: "s1", EntityID: "C", EntityType: "scene", Timestamp: 2000},
	}
	for _, e := range events {
		if err := m.Append(ctx, e); err != nil {
			t.Fatalf("Append(%s) error = %v", e.EntityID, err)
		}
	}

	got, err := m.GetHistory(ctx, nil, nil, "")
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	wantOrder := []string{"A", "B", "C", "D"}
	if len(got) != len(wantOrder) {
		t.Fatalf("GetHistory() returned %d events, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].EntityID != id {
			t.Errorf("event[%d].EntityID = %q, want %q", i, got[i].EntityID, id)
		}
	}
}

func TestGetHistoryFiltersByRangeAndServer(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for i, ts := range []int64{1000, 2000, 3000} {
		e := Event{ServerName: "s1", EntityID: string(rune('A' + i)), EntityType: "scene", Timestamp: ts}
		if err := m.Append(ctx, e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := m.Append(ctx, Event{ServerName: "s2", EntityID: "X", EntityType: "scene", Timestamp: 2500}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	from := int64(1500)
	to := int64(3000)
	got, err := m.GetHistory(ctx, &from, &to, "")
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("range filter: got %d events, want 2", len(got))
	}

	got, err = m.GetHistory(ctx, nil, nil, "s2")
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(got) != 1 || got[0].EntityID != "X" {
		t.Fatalf("server filter: got %+v, want single event X", got)
	}
}

func TestImmutableTimeIsBoundedByDelay(t *testing.T) {
	m := newTestManager(t)
	imm := m.ImmutableTime()
	wantMax := time.Now().Add(-time.Minute).UnixMilli()
	if imm > wantMax {
		t.Errorf("ImmutableTime() = %d, want <= %d", imm, wantMax)
	}
}

func TestContainsReflectsAppendedEvents(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if ok, err := m.Contains(ctx, "E1"); err != nil || ok {
		t.Fatalf("Contains() before append = %v, %v, want false, nil", ok, err)
	}

	if err := m.Append(ctx, Event{ServerName: "s1", EntityID: "E1", EntityType: "scene", Timestamp: 1000}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if ok, err := m.Contains(ctx, "E1"); err != nil || !ok {
		t.Fatalf("Contains() after append = %v, %v, want true, nil", ok, err)
	}
}

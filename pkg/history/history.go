package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meshland/catalyst/pkg/storage"
)

// Category is the storage category under which history events are persisted.
const Category = "history"

// DefaultImmutableDelay is the Δ_imm bound from §3: once an event's
// timestamp is this far in the past, its effect on pointer state is
// considered final.
const DefaultImmutableDelay = 10 * time.Minute

// Event is a single accepted deployment record.
type Event struct {
	ServerName string `json:"serverName"`
	EntityID   string `json:"entityId"`
	EntityType string `json:"entityType"`
	Timestamp  int64  `json:"timestamp"`
}

// Manager is the History Manager (C6). It owns the ledger exclusively.
type Manager struct {
	store          storage.Store
	immutableDelay time.Duration

	mu     sync.RWMutex
	events []Event // kept sorted by (Timestamp, EntityID)
	seen   map[string]bool
	loaded bool
}

// NewManager creates a History Manager backed by store. immutableDelay is
// Δ_imm; pass 0 to use DefaultImmutableDelay.
func NewManager(store storage.Store, immutableDelay time.Duration) *Manager {
	if immutableDelay <= 0 {
		immutableDelay = DefaultImmutableDelay
	}
	return &Manager{
		store:          store,
		immutableDelay: immutableDelay,
		seen:           make(map[string]bool),
	}
}

func (m *Manager) ensureLoaded(ctx context.Context) error {
	m.mu.RLock()
	loaded := m.loaded
	m.mu.RUnlock()
	if loaded {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}

	keys, err := m.store.Keys(ctx, Category)
	if err != nil {
		return fmt.Errorf("history: load: %w", err)
	}
	sort.Strings(keys) // storage key encodes (timestamp, entityId) order

	events := make([]Event, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		data, err := m.store.Get(ctx, Category, k)
		if err != nil {
			return fmt.Errorf("history: load %s: %w", k, err)
		}
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			return fmt.Errorf("history: decode %s: %w", k, err)
		}
		events = append(events, evt)
		seen[evt.EntityID] = true
	}

	m.events = events
	m.seen = seen
	m.loaded = true
	return nil
}

// eventKey encodes (timestamp, entityId) so lexicographic key order
// matches the ledger's required ordering. Timestamps are assumed
// non-negative, as client-supplied millisecond epoch values always are.
func eventKey(e Event) string {
	return fmt.Sprintf("%020d:%s", e.Timestamp, e.EntityID)
}

// Append adds event to the ledger. It is idempotent on EntityID: if an
// event for the same entity id was already appended, the call is a no-op.
func (m *Manager) Append(ctx context.Context, event Event) error {
	if err := m.ensureLoaded(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen[event.EntityID] {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("history: encode event: %w", err)
	}
	if err := m.store.Put(ctx, Category, eventKey(event), data); err != nil {
		return fmt.Errorf("history: persist event: %w", err)
	}

	idx := sort.Search(len(m.events), func(i int) bool {
		return eventKey(m.events[i]) > eventKey(event)
	})
	m.events = append(m.events, Event{})
	copy(m.events[idx+1:], m.events[idx:])
	m.events[idx] = event
	m.seen[event.EntityID] = true
	return nil
}

// Contains reports whether an event for entityID has already been
// appended.
func (m *Manager) Contains(ctx context.Context, entityID string) (bool, error) {
	if err := m.ensureLoaded(ctx); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seen[entityID], nil
}

// GetHistory returns events in (timestamp, entityId) order, optionally
// filtered by a half-open timestamp range [from, to) and/or serverName.
// A nil bound is unconstrained on that side.
func (m *Manager) GetHistory(ctx context.Context, from, to *int64, serverName string) ([]Event, error) {
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Event, 0, len(m.events))
	for _, e := range m.events {
		if from != nil && e.Timestamp < *from {
			continue
		}
		if to != nil && e.Timestamp >= *to {
			continue
		}
		if serverName != "" && e.ServerName != serverName {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// ImmutableTime returns T_imm: the greatest timestamp T such that
// T + Δ_imm ≤ now(). Events at or below this watermark are final.
func (m *Manager) ImmutableTime() int64 {
	return time.Now().Add(-m.immutableDelay).UnixMilli()
}

package pointer

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshland/catalyst/pkg/entity"
	"github.com/meshland/catalyst/pkg/metrics"
	"github.com/meshland/catalyst/pkg/storage"
)

// EntityLookup resolves an entity id to its descriptor. The Pointer Manager
// needs this to compare a candidate against the incumbent(s) it would
// displace, and to tell whether an incumbent's other pointers still
// reference it after the commit.
type EntityLookup interface {
	Get(ctx context.Context, id string) (*entity.Entity, error)
}

// Result is the outcome of a TryToCommit call.
type Result struct {
	CouldCommit    bool
	EntitiesDeleted []string
}

// Manager is the Pointer Manager (C5). It owns pointer state exclusively:
// no other component may write to the pointers-<type> storage category.
type Manager struct {
	store storage.Store

	mu     sync.RWMutex
	active map[entity.Type]map[string]string // pointer -> active entity id
	loaded map[entity.Type]bool
}

// NewManager creates a Pointer Manager backed by store. Pointer state for a
// given type is lazily loaded from storage the first time it's touched.
func NewManager(store storage.Store) *Manager {
	return &Manager{
		store:  store,
		active: make(map[entity.Type]map[string]string),
		loaded: make(map[entity.Type]bool),
	}
}

func (m *Manager) ensureLoaded(ctx context.Context, typ entity.Type) error {
	m.mu.RLock()
	loaded := m.loaded[typ]
	m.mu.RUnlock()
	if loaded {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded[typ] {
		return nil
	}

	category := storage.PointerCategory(string(typ))
	keys, err := m.store.Keys(ctx, category)
	if err != nil {
		return fmt.Errorf("pointer: load %s: %w", typ, err)
	}

	forType := make(map[string]string, len(keys))
	for _, p := range keys {
		id, err := m.store.Get(ctx, category, p)
		if err != nil {
			return fmt.Errorf("pointer: load %s/%s: %w", typ, p, err)
		}
		forType[p] = string(id)
	}
	m.active[typ] = forType
	m.loaded[typ] = true
	return nil
}

// ActiveEntity returns the entity id currently active for (typ, p), if any.
func (m *Manager) ActiveEntity(ctx context.Context, typ entity.Type, p string) (string, bool, error) {
	if err := m.ensureLoaded(ctx, typ); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.active[typ][p]
	return id, ok, nil
}

// ActivePointers returns every pointer of typ with a currently active
// entity.
func (m *Manager) ActivePointers(ctx context.Context, typ entity.Type) ([]string, error) {
	if err := m.ensureLoaded(ctx, typ); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	pointers := make([]string, 0, len(m.active[typ]))
	for p := range m.active[typ] {
		pointers = append(pointers, p)
	}
	return pointers, nil
}

// TryToCommit implements the commit algorithm of §4.2: it determines the
// distinct incumbent entities for e's pointers, shadows e if any incumbent
// is timestamp/id-greater-or-equal, otherwise moves every pointer to e.ID
// and reports which incumbents became orphaned (none of their other
// pointers still reference them).
func (m *Manager) TryToCommit(ctx context.Context, e *entity.Entity, lookup EntityLookup) (Result, error) {
	if err := m.ensureLoaded(ctx, e.Type); err != nil {
		return Result{}, err
	}

	m.mu.RLock()
	currentForType := m.active[e.Type]
	incumbentIDs := make(map[string]bool)
	for _, p := range e.Pointers {
		if id, ok := currentForType[p]; ok && id != "" && id != e.ID {
			incumbentIDs[id] = true
		}
	}
	m.mu.RUnlock()

	incumbents := make(map[string]*entity.Entity, len(incumbentIDs))
	for id := range incumbentIDs {
		inc, err := lookup.Get(ctx, id)
		if err != nil {
			return Result{}, fmt.Errorf("pointer: resolve incumbent %s: %w", id, err)
		}
		incumbents[id] = inc
	}

	for _, inc := range incumbents {
		if isGreaterOrEqual(inc.Timestamp, inc.ID, e.Timestamp, e.ID) {
			metrics.PointerCommitsTotal.WithLabelValues(string(e.Type), "shadowed").Inc()
			return Result{CouldCommit: false}, nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	newForType := make(map[string]string, len(m.active[e.Type])+len(e.Pointers))
	for p, id := range m.active[e.Type] {
		newForType[p] = id
	}
	for _, p := range e.Pointers {
		newForType[p] = e.ID
	}

	var deleted []string
	for id, inc := range incumbents {
		orphaned := true
		for _, op := range inc.Pointers {
			if e.HasPointer(op) {
				continue // overwritten by this commit
			}
			if newForType[op] == id {
				orphaned = false
				break
			}
		}
		if orphaned {
			deleted = append(deleted, id)
		}
	}

	for _, p := range e.Pointers {
		category := storage.PointerCategory(string(e.Type))
		if err := m.store.Put(ctx, category, p, []byte(e.ID)); err != nil {
			return Result{}, fmt.Errorf("pointer: persist %s/%s: %w", e.Type, p, err)
		}
	}
	m.active[e.Type] = newForType

	metrics.PointerCommitsTotal.WithLabelValues(string(e.Type), "committed").Inc()
	metrics.ActivePointersTotal.WithLabelValues(string(e.Type)).Set(float64(len(newForType)))

	return Result{CouldCommit: true, EntitiesDeleted: deleted}, nil
}

// isGreaterOrEqual reports whether (ts1, id1) >= (ts2, id2) under the
// timestamp-then-lexicographic-id ordering §3/§4.2 mandates.
func isGreaterOrEqual(ts1 int64, id1 string, ts2 int64, id2 string) bool {
	if ts1 != ts2 {
		return ts1 > ts2
	}
	return id1 >= id2
}

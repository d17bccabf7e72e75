package failure

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/meshland/catalyst/pkg/metrics"
	"github.com/meshland/catalyst/pkg/storage"
)

// Category is the storage category failed deployments are persisted under.
const Category = "failed-deployments"

// Reason classifies why a deployment could not be applied, per §4.4.
type Reason string

const (
	// ReasonNoEntityOrAudit: the source server could not return the
	// entity descriptor or its audit info.
	ReasonNoEntityOrAudit Reason = "NO_ENTITY_OR_AUDIT"
	// ReasonFetchProblem: content blobs referenced by the entity could
	// not be fetched.
	ReasonFetchProblem Reason = "FETCH_PROBLEM"
	// ReasonDeploymentError: local validation or storage failed.
	ReasonDeploymentError Reason = "DEPLOYMENT_ERROR"
)

// FailedDeployment records one entity that could not be deployed.
type FailedDeployment struct {
	EntityID    string `json:"entityId"`
	EntityType  string `json:"entityType"`
	ServerName  string `json:"serverName"`
	Timestamp   int64  `json:"timestamp"`
	Reason      Reason `json:"reason"`
	Description string `json:"description"`
	Moment      int64  `json:"moment"` // when this entry was recorded, ms since epoch
}

// Registry is the Failed-Deployment Registry (C7).
type Registry struct {
	store storage.Store

	mu       sync.RWMutex
	byEntity map[string]FailedDeployment
	loaded   bool
}

// NewRegistry creates a Failed-Deployment Registry backed by store.
func NewRegistry(store storage.Store) *Registry {
	return &Registry{store: store, byEntity: make(map[string]FailedDeployment)}
}

func (r *Registry) ensureLoaded(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}

	keys, err := r.store.Keys(ctx, Category)
	if err != nil {
		return fmt.Errorf("failure: load: %w", err)
	}
	byEntity := make(map[string]FailedDeployment, len(keys))
	for _, k := range keys {
		data, err := r.store.Get(ctx, Category, k)
		if err != nil {
			return fmt.Errorf("failure: load %s: %w", k, err)
		}
		var fd FailedDeployment
		if err := json.Unmarshal(data, &fd); err != nil {
			return fmt.Errorf("failure: decode %s: %w", k, err)
		}
		byEntity[fd.EntityID] = fd
	}
	r.byEntity = byEntity
	r.loaded = true
	r.recomputeFailedMetrics()
	return nil
}

// recomputeFailedMetrics refreshes the FailedDeploymentsTotal gauge from the
// registry's current contents. Callers must hold r.mu.
func (r *Registry) recomputeFailedMetrics() {
	counts := make(map[Reason]int)
	for _, fd := range r.byEntity {
		counts[fd.Reason]++
	}
	metrics.FailedDeploymentsTotal.Reset()
	for reason, n := range counts {
		metrics.FailedDeploymentsTotal.WithLabelValues(string(reason)).Set(float64(n))
	}
}

// Record persists a failed deployment, overwriting any prior failure for
// the same entity id.
func (r *Registry) Record(ctx context.Context, entityID, entityType, serverName string, timestamp int64, reason Reason, description string) error {
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}

	fd := FailedDeployment{
		EntityID:    entityID,
		EntityType:  entityType,
		ServerName:  serverName,
		Timestamp:   timestamp,
		Reason:      reason,
		Description: description,
		Moment:      time.Now().UnixMilli(),
	}
	data, err := json.Marshal(fd)
	if err != nil {
		return fmt.Errorf("failure: encode: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Put(ctx, Category, entityID, data); err != nil {
		return fmt.Errorf("failure: persist %s: %w", entityID, err)
	}
	r.byEntity[entityID] = fd
	r.recomputeFailedMetrics()
	return nil
}

// GetStatus returns the recorded failure for entityID, if any.
func (r *Registry) GetStatus(ctx context.Context, entityID string) (FailedDeployment, bool, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return FailedDeployment{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fd, ok := r.byEntity[entityID]
	return fd, ok, nil
}

// List returns every currently recorded failure, in no particular order.
func (r *Registry) List(ctx context.Context) ([]FailedDeployment, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FailedDeployment, 0, len(r.byEntity))
	for _, fd := range r.byEntity {
		out = append(out, fd)
	}
	return out, nil
}

// Clear removes any recorded failure for entityID. Called after a
// successful (re-)deployment of that entity.
func (r *Registry) Clear(ctx context.Context, entityID string) error {
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEntity[entityID]; !ok {
		return nil
	}
	if err := r.store.Delete(ctx, Category, entityID); err != nil {
		return fmt.Errorf("failure: clear %s: %w", entityID, err)
	}
	delete(r.byEntity, entityID)
	r.recomputeFailedMetrics()
	return nil
}

package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meshland/catalyst/pkg/apierr"
	"github.com/meshland/catalyst/pkg/entity"
	"github.com/meshland/catalyst/pkg/events"
	"github.com/meshland/catalyst/pkg/failure"
	"github.com/meshland/catalyst/pkg/hashing"
	"github.com/meshland/catalyst/pkg/history"
	"github.com/meshland/catalyst/pkg/log"
	"github.com/meshland/catalyst/pkg/metrics"
	"github.com/meshland/catalyst/pkg/pointer"
	"github.com/meshland/catalyst/pkg/storage"
	"github.com/meshland/catalyst/pkg/validation"
)

// entityJSONFile is the conventional name a deploy request's entity
// descriptor must be uploaded under, among the other referenced content
// files.
const entityJSONFile = "entity.json"

// DeployRequest is the single entry point's input: the uploaded files
// (keyed by content hash, entity.json included), the entity id the client
// claims for them, and the auth chain authorizing the deployment.
//
// ServerName and ExplicitTimestamp are populated on the sync path (peer
// name and the peer-provided deployment timestamp, replayed verbatim);
// they are left zero on the local path, where the server's own name and
// now() are used instead. MigrationData is attached only when replaying a
// legacy-protocol entity carried over from an earlier deployment, for the
// LEGACY_ENTITY predicate.
type DeployRequest struct {
	Files             map[string][]byte
	EntityID          string
	AuthChain         []entity.AuthChainLink
	ServerName        string
	ExplicitTimestamp *int64
	CheckFreshness    bool
	MigrationData     *entity.MigrationData

	// AllowMissingContent lets the CONTENT predicate pass even when a
	// referenced hash could not be fetched. Only the Synchronizer sets
	// this, replaying an event whose source peer already validated the
	// reference (spec.md S6): the pointer still commits and the missing
	// hash is retried on a later sync tick.
	AllowMissingContent bool
}

// Status is the payload returned by GET /status.
type Status struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	CurrentTime       int64  `json:"currentTime"`
	LastImmutableTime int64  `json:"lastImmutableTime"`
}

// AnalyticsSink receives a fire-and-forget record of every successful
// deployment (step 12 of the orchestrator). It is deliberately minimal —
// a concrete billing/analytics backend is out of scope — and is injected
// the same way the teacher injects an optional, swappable collaborator.
type AnalyticsSink interface {
	RecordDeployment(ctx context.Context, e *entity.Entity, serverName string, deployedTimestamp int64)
}

// NoopAnalyticsSink discards every record. It is the default when no sink
// is configured.
type NoopAnalyticsSink struct{}

func (NoopAnalyticsSink) RecordDeployment(context.Context, *entity.Entity, string, int64) {}

// Service is the Service / Deploy Orchestrator's public contract (C8).
type Service interface {
	Deploy(ctx context.Context, req DeployRequest) (deployedTimestamp int64, err error)
	GetEntities(ctx context.Context, typ entity.Type, pointers, ids []string) ([]*entity.Entity, error)
	GetContent(ctx context.Context, hash string) ([]byte, error)
	GetAudit(ctx context.Context, typ entity.Type, id string) (*entity.AuditInfo, error)
	GetActivePointers(ctx context.Context, typ entity.Type) ([]string, error)
	GetHistory(ctx context.Context, from, to *int64, serverName *string) ([]history.Event, error)
	Status(ctx context.Context) Status
}

// Orchestrator implements Service. It is the only component that writes to
// the Pointer Manager and History Manager.
type Orchestrator struct {
	store    storage.Store
	pointers *pointer.Manager
	history  *history.Manager
	failures *failure.Registry

	cache *lru.Cache[string, *entity.Entity]

	rules []validation.NamedRule
	env   validation.Env
	calls validation.ExternalCalls

	analytics AnalyticsSink
	broker    *events.Broker

	serverName string
	version    string
	now        func() time.Time

	locksMu sync.Mutex
	locks   map[entity.Type]*sync.Mutex
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithAnalyticsSink overrides the default no-op analytics sink.
func WithAnalyticsSink(sink AnalyticsSink) Option {
	return func(o *Orchestrator) { o.analytics = sink }
}

// WithEventBroker attaches an events.Broker so deploy outcomes are
// republished for local subscribers (metrics, future webhooks).
func WithEventBroker(b *events.Broker) Option {
	return func(o *Orchestrator) { o.broker = b }
}

// WithRules overrides the default validation rule set (DefaultRules).
func WithRules(rules []validation.NamedRule) Option {
	return func(o *Orchestrator) { o.rules = rules }
}

// WithClock overrides time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithVersion sets the version string returned from Status.
func WithVersion(version string) Option {
	return func(o *Orchestrator) { o.version = version }
}

// New builds an Orchestrator. serverName identifies this node's own
// history entries and DAO registration.
func New(
	store storage.Store,
	pointers *pointer.Manager,
	historyMgr *history.Manager,
	failures *failure.Registry,
	serverName string,
	env validation.Env,
	calls validation.ExternalCalls,
	opts ...Option,
) *Orchestrator {
	cache, _ := lru.New[string, *entity.Entity](4096)

	o := &Orchestrator{
		store:      store,
		pointers:   pointers,
		history:    historyMgr,
		failures:   failures,
		cache:      cache,
		rules:      validation.DefaultRules,
		env:        env,
		calls:      calls,
		analytics:  NoopAnalyticsSink{},
		serverName: serverName,
		version:    "dev",
		now:        time.Now,
		locks:      make(map[entity.Type]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) lockFor(typ entity.Type) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	l, ok := o.locks[typ]
	if !ok {
		l = &sync.Mutex{}
		o.locks[typ] = l
	}
	return l
}

// lookupEntity resolves id to its descriptor, preferring the in-memory
// cache and falling back to storage. It satisfies pointer.EntityLookup.
type lookupEntity struct{ o *Orchestrator }

func (l lookupEntity) Get(ctx context.Context, id string) (*entity.Entity, error) {
	if e, ok := l.o.cache.Get(id); ok {
		return e, nil
	}
	raw, err := l.o.store.Get(ctx, storage.CategoryContents, id)
	if err != nil {
		return nil, err
	}
	e, err := entity.Parse(raw)
	if err != nil {
		return nil, err
	}
	e.ID = id
	l.o.cache.Add(id, e)
	return e, nil
}

// Deploy runs the 13-step deployment algorithm.
func (o *Orchestrator) Deploy(ctx context.Context, req DeployRequest) (int64, error) {
	// Step 1: locate entity.json among the uploaded files.
	raw, ok := req.Files[entityJSONFile]
	if !ok {
		// Some clients key entity.json by its own content hash rather
		// than by name; fall back to the claimed entity id.
		raw, ok = req.Files[req.EntityID]
	}
	if !ok {
		return 0, apierr.NewValidation([]string{"no entity.json found among the uploaded files"})
	}

	// Step 2: verify hash(entityFile) == entityId.
	computedID, err := hashing.Hash(raw, hashing.CodecDagJSON)
	if err != nil {
		return 0, apierr.Wrap(fmt.Errorf("deploy: hash entity file: %w", err))
	}
	if computedID != req.EntityID {
		return 0, apierr.NewValidation([]string{fmt.Sprintf("entity hash mismatch: computed %s, expected %s", computedID, req.EntityID)})
	}

	// Step 3: parse the entity descriptor.
	e, err := entity.Parse(raw)
	if err != nil {
		return 0, apierr.NewValidation([]string{err.Error()})
	}
	e.ID = req.EntityID
	if !e.Type.Valid() {
		return 0, apierr.NewValidation([]string{fmt.Sprintf("unknown entity type %q", e.Type)})
	}

	// From here the entity type is known, so every remaining outcome is
	// attributed to it.
	timer := metrics.NewTimer()

	contentFiles := make(map[string][]byte, len(req.Files))
	for hash, data := range req.Files {
		if hash == entityJSONFile {
			continue
		}
		contentFiles[hash] = data
	}

	// Step 4: run all validation predicates, collecting every failure.
	args := validation.Args{
		Ctx: ctx,
		Deployment: validation.Deployment{
			Entity:              e,
			AuthChain:           req.AuthChain,
			Files:               contentFiles,
			MigrationData:       req.MigrationData,
			AllowMissingContent: req.AllowMissingContent,
		},
		Env:   o.env,
		Calls: o.calls,
	}
	if errs := validation.RunAll(args, o.rules, func(name string) {
		metrics.ValidationFailuresTotal.WithLabelValues(name).Inc()
	}); len(errs) > 0 {
		metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "rejected").Inc()
		return 0, apierr.NewValidation(errs)
	}

	lock := o.lockFor(e.Type)
	lock.Lock()
	defer lock.Unlock()

	// Step 5: local-path freshness check.
	if req.CheckFreshness {
		for _, p := range e.Pointers {
			activeID, found, err := o.pointers.ActiveEntity(ctx, e.Type, p)
			if err != nil {
				metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "error").Inc()
				return 0, apierr.Wrap(err)
			}
			if !found {
				continue
			}
			active, err := (lookupEntity{o}).Get(ctx, activeID)
			if err != nil {
				metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "error").Inc()
				return 0, apierr.Wrap(err)
			}
			if isNewer(active, e) {
				metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "rejected").Inc()
				return 0, apierr.NewValidation([]string{fmt.Sprintf("there is a newer entity already active at pointer %s", p)})
			}
		}
	}

	// Step 6: hash all uploaded content files and reconcile.
	for hash, data := range contentFiles {
		sum, err := hashing.Hash(data, hashing.CodecRaw)
		if err != nil {
			metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "error").Inc()
			return 0, apierr.Wrap(fmt.Errorf("deploy: hash content %s: %w", hash, err))
		}
		if sum != hash {
			metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "rejected").Inc()
			return 0, apierr.NewValidation([]string{fmt.Sprintf("uploaded content does not match its claimed hash: %s", hash)})
		}
	}

	// Step 7: pointer commit.
	result, err := o.pointers.TryToCommit(ctx, e, lookupEntity{o})
	if err != nil {
		if recErr := o.failures.Record(ctx, e.ID, string(e.Type), req.ServerName, e.Timestamp, failure.ReasonDeploymentError, err.Error()); recErr != nil {
			log.Logger.Error().Err(recErr).Msg("deploy: record failure after pointer commit error")
		}
		metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "error").Inc()
		return 0, apierr.Wrap(err)
	}
	for _, deletedID := range result.EntitiesDeleted {
		o.cache.Remove(deletedID)
	}

	// Step 8: persist content.
	if result.CouldCommit {
		for hash, data := range contentFiles {
			exists, err := o.store.Exists(ctx, storage.CategoryContents, hash)
			if err != nil {
				metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "error").Inc()
				return 0, apierr.Wrap(err)
			}
			if exists {
				continue
			}
			if err := o.store.Put(ctx, storage.CategoryContents, hash, data); err != nil {
				metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "error").Inc()
				return 0, apierr.Wrap(fmt.Errorf("deploy: persist content %s: %w", hash, err))
			}
			metrics.ContentBytesStored.Add(float64(len(data)))
		}
	}
	if err := o.store.Put(ctx, storage.CategoryContents, e.ID, raw); err != nil {
		metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "error").Inc()
		return 0, apierr.Wrap(fmt.Errorf("deploy: persist entity file: %w", err))
	}
	o.cache.Add(e.ID, e)

	// Step 9: compute the deployment timestamp.
	var deployedTimestamp int64
	if req.ExplicitTimestamp != nil {
		deployedTimestamp = *req.ExplicitTimestamp
	} else {
		deployedTimestamp = o.now().UnixMilli()
	}

	// Step 10: persist AuditInfo.
	audit := entity.AuditInfo{
		Version:           "v3",
		DeployedTimestamp: deployedTimestamp,
		AuthChain:         req.AuthChain,
		MigrationData:     req.MigrationData,
	}
	auditBytes, err := json.Marshal(audit)
	if err != nil {
		metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "error").Inc()
		return 0, apierr.Wrap(fmt.Errorf("deploy: encode audit info: %w", err))
	}
	if err := o.store.Put(ctx, storage.CategoryProofs, e.ID, auditBytes); err != nil {
		metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "error").Inc()
		return 0, apierr.Wrap(fmt.Errorf("deploy: persist audit info: %w", err))
	}

	serverName := req.ServerName
	if serverName == "" {
		serverName = o.serverName
	}

	// Step 11: append to the history ledger.
	if err := o.history.Append(ctx, history.Event{
		ServerName: serverName,
		EntityID:   e.ID,
		EntityType: string(e.Type),
		Timestamp:  deployedTimestamp,
	}); err != nil {
		metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "error").Inc()
		return 0, apierr.Wrap(fmt.Errorf("deploy: append history: %w", err))
	}

	if err := o.failures.Clear(ctx, e.ID); err != nil {
		log.Logger.Warn().Err(err).Str("entity_id", e.ID).Msg("deploy: failed to clear failure registry entry")
	}

	// Step 12: fire-and-forget analytics + local event.
	o.analytics.RecordDeployment(ctx, e, serverName, deployedTimestamp)
	if o.broker != nil {
		o.broker.Publish(&events.Event{
			Type:    events.EventEntityDeployed,
			Message: fmt.Sprintf("%s entity %s deployed at %s", e.Type, e.ID, serverName),
			Metadata: map[string]string{
				"entityId":   e.ID,
				"entityType": string(e.Type),
				"serverName": serverName,
			},
		})
	}

	// Step 13: return the deployment timestamp.
	timer.ObserveDurationVec(metrics.DeploymentDuration, string(e.Type))
	metrics.DeploymentsTotal.WithLabelValues(string(e.Type), "success").Inc()
	return deployedTimestamp, nil
}

// isNewer reports whether active is strictly newer than candidate under
// the (timestamp, id) ordering, i.e. whether candidate would be rejected
// as stale by a freshness check.
func isNewer(active, candidate *entity.Entity) bool {
	if active.Timestamp != candidate.Timestamp {
		return active.Timestamp > candidate.Timestamp
	}
	return active.ID > candidate.ID
}

// GetEntities resolves pointers and ids to their active/addressed entities,
// deduplicated by id.
func (o *Orchestrator) GetEntities(ctx context.Context, typ entity.Type, pointers, ids []string) ([]*entity.Entity, error) {
	wanted := make(map[string]bool)
	for _, id := range ids {
		wanted[id] = true
	}
	for _, p := range pointers {
		id, found, err := o.pointers.ActiveEntity(ctx, typ, p)
		if err != nil {
			return nil, apierr.Wrap(err)
		}
		if found {
			wanted[id] = true
		}
	}

	out := make([]*entity.Entity, 0, len(wanted))
	for id := range wanted {
		e, err := (lookupEntity{o}).Get(ctx, id)
		if err != nil {
			continue // deleted/unknown ids are silently skipped, not an error
		}
		out = append(out, e)
	}
	return out, nil
}

// GetContent returns the raw bytes stored under hash.
func (o *Orchestrator) GetContent(ctx context.Context, hash string) ([]byte, error) {
	data, err := o.store.Get(ctx, storage.CategoryContents, hash)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, apierr.NewNotFound(fmt.Sprintf("no content stored under %s", hash))
		}
		return nil, apierr.Wrap(err)
	}
	return data, nil
}

// GetAudit returns the AuditInfo persisted for id.
func (o *Orchestrator) GetAudit(ctx context.Context, typ entity.Type, id string) (*entity.AuditInfo, error) {
	data, err := o.store.Get(ctx, storage.CategoryProofs, id)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, apierr.NewNotFound(fmt.Sprintf("no audit info for %s", id))
		}
		return nil, apierr.Wrap(err)
	}
	var audit entity.AuditInfo
	if err := json.Unmarshal(data, &audit); err != nil {
		return nil, apierr.Wrap(fmt.Errorf("deploy: decode audit info for %s: %w", id, err))
	}
	return &audit, nil
}

// GetActivePointers returns every pointer of typ with a currently active entity.
func (o *Orchestrator) GetActivePointers(ctx context.Context, typ entity.Type) ([]string, error) {
	pointers, err := o.pointers.ActivePointers(ctx, typ)
	if err != nil {
		return nil, apierr.Wrap(err)
	}
	return pointers, nil
}

// GetHistory returns the ledger, optionally bounded and filtered by server.
func (o *Orchestrator) GetHistory(ctx context.Context, from, to *int64, serverName *string) ([]history.Event, error) {
	name := ""
	if serverName != nil {
		name = *serverName
	}
	evts, err := o.history.GetHistory(ctx, from, to, name)
	if err != nil {
		return nil, apierr.Wrap(err)
	}
	return evts, nil
}

// Status reports this node's identity, version, and the current immutable
// time watermark.
func (o *Orchestrator) Status(ctx context.Context) Status {
	return Status{
		Name:              o.serverName,
		Version:           o.version,
		CurrentTime:       o.now().UnixMilli(),
		LastImmutableTime: o.history.ImmutableTime(),
	}
}

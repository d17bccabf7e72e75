package sync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meshland/catalyst/pkg/cluster"
	"github.com/meshland/catalyst/pkg/deploy"
	"github.com/meshland/catalyst/pkg/entity"
	"github.com/meshland/catalyst/pkg/failure"
	"github.com/meshland/catalyst/pkg/history"
	"github.com/meshland/catalyst/pkg/log"
	"github.com/meshland/catalyst/pkg/metrics"
	"github.com/meshland/catalyst/pkg/storage"
	"github.com/meshland/catalyst/pkg/workerpool"
)

const entityJSONFile = "entity.json"

// DefaultInterval is the tick period spec.md §4.7 defaults to.
const DefaultInterval = 5 * time.Second

// historyFetchParallelism bounds how many Active peers are polled for
// history concurrently in one tick.
const historyFetchParallelism = 8

// Synchronizer runs the periodic catch-up tick against the cluster.
type Synchronizer struct {
	pool     *cluster.Pool
	service  deploy.Service
	failures *failure.Registry
	store    storage.Store
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Synchronizer. interval <= 0 uses DefaultInterval.
func New(pool *cluster.Pool, service deploy.Service, failures *failure.Registry, store storage.Store, interval time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Synchronizer{
		pool:     pool,
		service:  service,
		failures: failures,
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs ticks on a background goroutine until ctx is canceled or Stop
// is called.
func (s *Synchronizer) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if err := s.Tick(ctx); err != nil {
					log.Logger.Warn().Err(err).Msg("sync: tick failed")
				}
			}
		}
	}()
}

// Stop ends the background tick loop and waits for it to exit.
func (s *Synchronizer) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

type pendingEvent struct {
	event history.Event
	peer  cluster.Client
}

// Tick runs one synchronization pass: steps 1-6 of spec.md §4.7. It is
// exported directly (rather than only reachable via Start) so tests and a
// manual "sync now" admin action can drive it synchronously.
func (s *Synchronizer) Tick(ctx context.Context) error {
	timer := metrics.NewTimer()

	// Step 1: refresh the peer set.
	if err := s.pool.Refresh(ctx); err != nil {
		metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
		return err
	}
	active := s.pool.Active()

	// Step 2: pull each Active peer's history since its watermark
	// concurrently, then merge sequentially, deduplicating by entity id
	// and keeping the earliest (timestamp, entityId) occurrence across
	// peers.
	jobs := make([]workerpool.Job[[]history.Event], len(active))
	for i, peer := range active {
		peer := peer
		jobs[i] = func(ctx context.Context) ([]history.Event, error) {
			return peer.GetHistory(ctx, peer.LastKnownTimestamp())
		}
	}
	results := workerpool.Run(ctx, jobs, historyFetchParallelism)

	merged := make(map[string]pendingEvent)
	for i, res := range results {
		peer := active[i]
		if res.Err != nil {
			log.Logger.Warn().Err(res.Err).Str("peer", peer.Name()).Msg("sync: could not fetch history from peer")
			continue
		}
		for _, e := range res.Value {
			existing, ok := merged[e.EntityID]
			if !ok || isEarlier(e, existing.event) {
				merged[e.EntityID] = pendingEvent{event: e, peer: peer}
			}
		}
	}

	ordered := make([]pendingEvent, 0, len(merged))
	for _, pe := range merged {
		ordered = append(ordered, pe)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].event.Timestamp != ordered[j].event.Timestamp {
			return ordered[i].event.Timestamp < ordered[j].event.Timestamp
		}
		return ordered[i].event.EntityID < ordered[j].event.EntityID
	})

	for _, pe := range ordered {
		s.replay(ctx, pe.peer, pe.event)
	}

	timer.ObserveDuration(metrics.SyncCycleDuration)
	metrics.SyncCyclesTotal.WithLabelValues("success").Inc()
	return nil
}

func isEarlier(a, b history.Event) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.EntityID < b.EntityID
}

// replay implements steps 3-6 for one merged event: fetch entity + audit,
// fetch any missing content, deploy with checkFreshness=false, and on
// success advance the peer's watermark.
func (s *Synchronizer) replay(ctx context.Context, peer cluster.Client, evt history.Event) {
	typ := entity.Type(evt.EntityType)

	e, err := peer.GetEntity(ctx, evt.EntityID)
	if err != nil {
		s.recordFailure(ctx, evt, peer, failure.ReasonNoEntityOrAudit, err.Error())
		return
	}
	audit, err := peer.GetAuditInfo(ctx, typ, evt.EntityID)
	if err != nil {
		s.recordFailure(ctx, evt, peer, failure.ReasonNoEntityOrAudit, err.Error())
		return
	}

	entityRaw, err := peer.GetContent(ctx, evt.EntityID)
	if err != nil {
		s.recordFailure(ctx, evt, peer, failure.ReasonFetchProblem, err.Error())
		return
	}

	// Fetch every referenced hash not already stored. A hash this peer
	// cannot serve does not abort the replay (spec.md S6): the pointer
	// still commits below with whatever content was fetched, and the
	// missing hash is retried on a later tick.
	files := map[string][]byte{entityJSONFile: entityRaw}
	var contentMissing bool
	var fetchErr error
	for _, hash := range e.Content {
		exists, err := s.store.Exists(ctx, storage.CategoryContents, hash)
		if err != nil {
			s.recordFailure(ctx, evt, peer, failure.ReasonFetchProblem, err.Error())
			return
		}
		if exists {
			continue
		}
		data, err := peer.GetContent(ctx, hash)
		if err != nil {
			contentMissing = true
			fetchErr = err
			continue
		}
		files[hash] = data
	}

	ts := evt.Timestamp
	_, err = s.service.Deploy(ctx, deploy.DeployRequest{
		Files:               files,
		EntityID:            evt.EntityID,
		AuthChain:           audit.AuthChain,
		ServerName:          evt.ServerName,
		ExplicitTimestamp:   &ts,
		CheckFreshness:      false,
		MigrationData:       audit.MigrationData,
		AllowMissingContent: contentMissing,
	})
	if err != nil {
		s.recordFailure(ctx, evt, peer, failure.ReasonDeploymentError, err.Error())
		return
	}
	metrics.EntitiesDeployedFromSync.Inc()

	if contentMissing {
		// The pointer committed, but a referenced hash is still missing;
		// Deploy's own success path just cleared this entity's failure
		// entry, so re-record it to keep getContent 404ing on that hash
		// until a future tick fetches it successfully.
		s.recordFailure(ctx, evt, peer, failure.ReasonFetchProblem, fetchErr.Error())
	}

	peer.UpdateTimestamp(evt.Timestamp)
}

func (s *Synchronizer) recordFailure(ctx context.Context, evt history.Event, peer cluster.Client, reason failure.Reason, description string) {
	if err := s.failures.Record(ctx, evt.EntityID, evt.EntityType, peer.Name(), evt.Timestamp, reason, description); err != nil {
		log.Logger.Warn().Err(err).Str("entity_id", evt.EntityID).Msg("sync: could not record failed deployment")
	}
}

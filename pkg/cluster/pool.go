package cluster

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/meshland/catalyst/pkg/dao"
	"github.com/meshland/catalyst/pkg/log"
)

// Pool builds and maintains the current set of cluster Clients from a
// dao.Client's peer list, tagging each as Active or Redirect per
// spec.md §4.6.
type Pool struct {
	daoClient    dao.Client
	httpClient   *http.Client
	pingTimeout  time.Duration

	mu      sync.RWMutex
	clients map[string]Client
}

// NewPool builds a Pool over daoClient. httpClient is shared by every
// ActiveClient it creates; pass nil for a 30s-timeout default.
func NewPool(daoClient dao.Client, httpClient *http.Client) *Pool {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Pool{
		daoClient:   daoClient,
		httpClient:  httpClient,
		pingTimeout: 5 * time.Second,
		clients:     make(map[string]Client),
	}
}

// Refresh re-resolves the peer set and reclassifies each as Active or
// Redirect based on a reachability probe, preserving the prior
// lastKnownTimestamp of any peer that was already Active.
func (p *Pool) Refresh(ctx context.Context) error {
	peers, err := p.daoClient.Peers(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[string]Client, len(peers))
	for _, peer := range peers {
		prevTimestamp := int64(0)
		if existing, ok := p.clients[peer.Name]; ok {
			prevTimestamp = existing.LastKnownTimestamp()
		}

		if p.reachable(ctx, peer.BaseURL) {
			next[peer.Name] = NewActiveClient(peer.Name, peer.BaseURL, p.httpClient, prevTimestamp)
		} else {
			log.Logger.Warn().Str("peer", peer.Name).Msg("cluster: peer unreachable, shadowing with a redirect client")
			name := peer.Name
			next[name] = NewRedirectClient(name, p.activeSnapshot)
		}
	}

	p.clients = next
	return nil
}

func (p *Pool) reachable(ctx context.Context, baseURL string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, baseURL+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// activeSnapshot returns every currently Active client, read under lock.
// Passed by reference into Redirect clients so their fan-out always sees
// the latest membership rather than a stale snapshot from construction
// time.
func (p *Pool) activeSnapshot() []Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	active := make([]Client, 0, len(p.clients))
	for _, c := range p.clients {
		if c.IsActive() {
			active = append(active, c)
		}
	}
	return active
}

// Active returns every currently Active client.
func (p *Pool) Active() []Client {
	return p.activeSnapshot()
}

// All returns every known client, Active and Redirect alike.
func (p *Pool) All() []Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	all := make([]Client, 0, len(p.clients))
	for _, c := range p.clients {
		all = append(all, c)
	}
	return all
}

package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/meshland/catalyst/pkg/entity"
	"github.com/meshland/catalyst/pkg/history"
)

// Client is one cluster peer, reachable or not. Every method is safe to
// call regardless of IsActive — a Redirect client simply relays.
type Client interface {
	Name() string
	IsActive() bool
	LastKnownTimestamp() int64
	UpdateTimestamp(ts int64)
	GetHistory(ctx context.Context, from int64) ([]history.Event, error)
	GetEntity(ctx context.Context, entityID string) (*entity.Entity, error)
	GetAuditInfo(ctx context.Context, typ entity.Type, entityID string) (*entity.AuditInfo, error)
	GetContent(ctx context.Context, hash string) ([]byte, error)
}

// ActiveClient calls a reachable peer directly over HTTP and tracks the
// last history timestamp successfully synced from it.
type ActiveClient struct {
	name       string
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	lastKnown int64
}

// NewActiveClient builds an ActiveClient for the named peer at baseURL.
func NewActiveClient(name, baseURL string, httpClient *http.Client, lastKnown int64) *ActiveClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ActiveClient{name: name, baseURL: baseURL, httpClient: httpClient, lastKnown: lastKnown}
}

func (c *ActiveClient) Name() string    { return c.name }
func (c *ActiveClient) IsActive() bool  { return true }
func (c *ActiveClient) LastKnownTimestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastKnown
}

// UpdateTimestamp advances the watermark to ts, never backwards — the
// synchronizer's step 6 only ever calls this with max(prev, event.timestamp).
func (c *ActiveClient) UpdateTimestamp(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.lastKnown {
		c.lastKnown = ts
	}
}

func (c *ActiveClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("cluster: build request for %s: %w", c.name, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cluster: call %s%s: %w", c.name, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cluster: %s%s returned %s", c.name, path, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

var errNotFound = errors.New("cluster: resource not found on peer")

func (c *ActiveClient) GetHistory(ctx context.Context, from int64) ([]history.Event, error) {
	body, err := c.get(ctx, fmt.Sprintf("/history?from=%d", from))
	if err != nil {
		return nil, err
	}
	// pkg/api's /history wraps the events in {events, lastImmutableTime};
	// a bare array is accepted as well.
	var page struct {
		Events []history.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &page); err == nil {
		return page.Events, nil
	}
	var events []history.Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("cluster: decode history from %s: %w", c.name, err)
	}
	return events, nil
}

func (c *ActiveClient) GetEntity(ctx context.Context, entityID string) (*entity.Entity, error) {
	body, err := c.get(ctx, "/contents/"+url.PathEscape(entityID))
	if err != nil {
		return nil, err
	}
	e, err := entity.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("cluster: parse entity from %s: %w", c.name, err)
	}
	e.ID = entityID
	return e, nil
}

func (c *ActiveClient) GetAuditInfo(ctx context.Context, typ entity.Type, entityID string) (*entity.AuditInfo, error) {
	body, err := c.get(ctx, fmt.Sprintf("/audit/%s/%s", url.PathEscape(string(typ)), url.PathEscape(entityID)))
	if err != nil {
		return nil, err
	}
	var audit entity.AuditInfo
	if err := json.Unmarshal(body, &audit); err != nil {
		return nil, fmt.Errorf("cluster: decode audit info from %s: %w", c.name, err)
	}
	return &audit, nil
}

func (c *ActiveClient) GetContent(ctx context.Context, hash string) ([]byte, error) {
	return c.get(ctx, "/contents/"+url.PathEscape(hash))
}

// RedirectClient stands in for an unreachable peer. Every call fans out to
// whichever peers activePeers currently reports as Active and returns the
// first success, so readers keep working even when the naming authority
// disagrees with reachability. Its timestamp watermark never advances.
type RedirectClient struct {
	name        string
	activePeers func() []Client
}

// NewRedirectClient builds a RedirectClient for the named peer, fanning
// out to whatever activePeers returns at call time.
func NewRedirectClient(name string, activePeers func() []Client) *RedirectClient {
	return &RedirectClient{name: name, activePeers: activePeers}
}

func (c *RedirectClient) Name() string               { return c.name }
func (c *RedirectClient) IsActive() bool             { return false }
func (c *RedirectClient) LastKnownTimestamp() int64  { return 0 }
func (c *RedirectClient) UpdateTimestamp(int64)      {}

func (c *RedirectClient) GetHistory(ctx context.Context, from int64) ([]history.Event, error) {
	for _, p := range c.activePeers() {
		if events, err := p.GetHistory(ctx, from); err == nil {
			return events, nil
		}
	}
	return nil, fmt.Errorf("cluster: no active peer could serve history for redirected peer %s", c.name)
}

func (c *RedirectClient) GetEntity(ctx context.Context, entityID string) (*entity.Entity, error) {
	for _, p := range c.activePeers() {
		if e, err := p.GetEntity(ctx, entityID); err == nil {
			return e, nil
		}
	}
	return nil, fmt.Errorf("cluster: no active peer could serve entity %s for redirected peer %s", entityID, c.name)
}

func (c *RedirectClient) GetAuditInfo(ctx context.Context, typ entity.Type, entityID string) (*entity.AuditInfo, error) {
	for _, p := range c.activePeers() {
		if a, err := p.GetAuditInfo(ctx, typ, entityID); err == nil {
			return a, nil
		}
	}
	return nil, fmt.Errorf("cluster: no active peer could serve audit info for %s via redirected peer %s", entityID, c.name)
}

func (c *RedirectClient) GetContent(ctx context.Context, hash string) ([]byte, error) {
	for _, p := range c.activePeers() {
		if data, err := p.GetContent(ctx, hash); err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("cluster: no active peer could serve content %s via redirected peer %s", hash, c.name)
}

package blacklist

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshland/catalyst/pkg/apierr"
	"github.com/meshland/catalyst/pkg/authchain"
	"github.com/meshland/catalyst/pkg/deploy"
	"github.com/meshland/catalyst/pkg/entity"
	"github.com/meshland/catalyst/pkg/history"
)

const entityJSONFile = "entity.json"

// Overlay wraps a deploy.Service, hiding blacklisted entities, content,
// pointers and addresses from reads and rejecting writes that would
// reference any of them. It satisfies deploy.Service itself, so it can be
// substituted wherever the inner service was used.
type Overlay struct {
	inner deploy.Service

	mu        sync.RWMutex
	entities  map[string]bool
	content   map[string]bool
	pointers  map[entity.Type]map[string]bool
	addresses map[string]bool
}

// New builds an Overlay delegating to inner, with every set initially empty.
func New(inner deploy.Service) *Overlay {
	return &Overlay{
		inner:     inner,
		entities:  make(map[string]bool),
		content:   make(map[string]bool),
		pointers:  make(map[entity.Type]map[string]bool),
		addresses: make(map[string]bool),
	}
}

// BlacklistEntity hides entityID from reads and rejects any future write
// that references it.
func (o *Overlay) BlacklistEntity(entityID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entities[entityID] = true
}

// BlacklistContent hides the content blob stored under hash.
func (o *Overlay) BlacklistContent(hash string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.content[hash] = true
}

// BlacklistPointer rejects deployments claiming pointer for typ.
func (o *Overlay) BlacklistPointer(typ entity.Type, pointer string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	set, ok := o.pointers[typ]
	if !ok {
		set = make(map[string]bool)
		o.pointers[typ] = set
	}
	set[pointer] = true
}

// BlacklistAddress rejects deployments whose auth chain roots at address.
func (o *Overlay) BlacklistAddress(address string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.addresses[address] = true
}

// Clear removes every prior blacklist entry of any kind for id (entity id,
// content hash, or address) and is a no-op for names never added.
func (o *Overlay) Clear(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.entities, id)
	delete(o.content, id)
	delete(o.addresses, id)
}

func (o *Overlay) isEntityBlacklisted(id string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.entities[id]
}

func (o *Overlay) isContentBlacklisted(hash string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.content[hash]
}

func (o *Overlay) isPointerBlacklisted(typ entity.Type, p string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pointers[typ] != nil && o.pointers[typ][p]
}

func (o *Overlay) isAddressBlacklisted(address string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.addresses[address]
}

// rootSigner returns the SIGNER link's payload, the Ethereum address an
// auth chain ultimately roots at.
func rootSigner(chain []entity.AuthChainLink) (string, bool) {
	if len(chain) == 0 || chain[0].Type != authchain.LinkTypeSigner {
		return "", false
	}
	return chain[0].Payload, true
}

// parseRequestEntity mirrors deploy.Orchestrator's step 1: locate
// entity.json among the uploaded files, by name or by the claimed id.
func parseRequestEntity(req deploy.DeployRequest) (*entity.Entity, error) {
	raw, ok := req.Files[entityJSONFile]
	if !ok {
		raw, ok = req.Files[req.EntityID]
	}
	if !ok {
		return nil, fmt.Errorf("blacklist: no entity.json found among the uploaded files")
	}
	e, err := entity.Parse(raw)
	if err != nil {
		return nil, err
	}
	e.ID = req.EntityID
	return e, nil
}

// Deploy rejects the request before it reaches the inner service if it
// would reference a blacklisted address, entity id, content hash, or
// pointer; otherwise it delegates unchanged.
func (o *Overlay) Deploy(ctx context.Context, req deploy.DeployRequest) (int64, error) {
	if addr, ok := rootSigner(req.AuthChain); ok && o.isAddressBlacklisted(addr) {
		return 0, apierr.NewBlacklisted(fmt.Sprintf("address %s is blacklisted", addr))
	}
	if o.isEntityBlacklisted(req.EntityID) {
		return 0, apierr.NewBlacklisted(fmt.Sprintf("entity %s is blacklisted", req.EntityID))
	}
	for hash := range req.Files {
		if hash == entityJSONFile {
			continue
		}
		if o.isContentBlacklisted(hash) {
			return 0, apierr.NewBlacklisted(fmt.Sprintf("content %s is blacklisted", hash))
		}
	}
	if e, err := parseRequestEntity(req); err == nil {
		for _, p := range e.Pointers {
			if o.isPointerBlacklisted(e.Type, p) {
				return 0, apierr.NewBlacklisted(fmt.Sprintf("pointer %s is blacklisted for type %s", p, e.Type))
			}
		}
	}
	return o.inner.Deploy(ctx, req)
}

// GetEntities delegates then drops any blacklisted entity from the result.
func (o *Overlay) GetEntities(ctx context.Context, typ entity.Type, pointers, ids []string) ([]*entity.Entity, error) {
	entities, err := o.inner.GetEntities(ctx, typ, pointers, ids)
	if err != nil {
		return nil, err
	}
	visible := make([]*entity.Entity, 0, len(entities))
	for _, e := range entities {
		if o.isEntityBlacklisted(e.ID) {
			continue
		}
		visible = append(visible, e)
	}
	return visible, nil
}

// GetContent reports a blacklisted hash as not found, indistinguishable
// from a hash that was never stored, and otherwise delegates.
func (o *Overlay) GetContent(ctx context.Context, hash string) ([]byte, error) {
	if o.isContentBlacklisted(hash) {
		return nil, apierr.NewNotFound(fmt.Sprintf("no content stored under %s", hash))
	}
	return o.inner.GetContent(ctx, hash)
}

// GetAudit delegates then overlays IsBlacklisted/BlacklistedContent: the
// entity itself may be blacklisted, or any content it references may be,
// without the entity id itself having been blacklisted.
func (o *Overlay) GetAudit(ctx context.Context, typ entity.Type, id string) (*entity.AuditInfo, error) {
	audit, err := o.inner.GetAudit(ctx, typ, id)
	if err != nil {
		return nil, err
	}

	blacklistedContent := o.blacklistedContentOf(ctx, typ, id)
	audit.IsBlacklisted = o.isEntityBlacklisted(id) || len(blacklistedContent) > 0
	audit.BlacklistedContent = blacklistedContent
	return audit, nil
}

func (o *Overlay) blacklistedContentOf(ctx context.Context, typ entity.Type, id string) []string {
	entities, err := o.inner.GetEntities(ctx, typ, nil, []string{id})
	if err != nil || len(entities) == 0 {
		return nil
	}
	var blacklisted []string
	for _, hash := range entities[0].Content {
		if o.isContentBlacklisted(hash) {
			blacklisted = append(blacklisted, hash)
		}
	}
	return blacklisted
}

// GetActivePointers delegates then drops any pointer blacklisted for typ.
func (o *Overlay) GetActivePointers(ctx context.Context, typ entity.Type) ([]string, error) {
	pointers, err := o.inner.GetActivePointers(ctx, typ)
	if err != nil {
		return nil, err
	}
	visible := make([]string, 0, len(pointers))
	for _, p := range pointers {
		if o.isPointerBlacklisted(typ, p) {
			continue
		}
		visible = append(visible, p)
	}
	return visible, nil
}

// GetHistory delegates then drops any event for a blacklisted entity id.
func (o *Overlay) GetHistory(ctx context.Context, from, to *int64, serverName *string) ([]history.Event, error) {
	events, err := o.inner.GetHistory(ctx, from, to, serverName)
	if err != nil {
		return nil, err
	}
	visible := make([]history.Event, 0, len(events))
	for _, e := range events {
		if o.isEntityBlacklisted(e.EntityID) {
			continue
		}
		visible = append(visible, e)
	}
	return visible, nil
}

// Status passes through unchanged: the blacklist overlay has no opinion on
// server identity or timing.
func (o *Overlay) Status(ctx context.Context) deploy.Status {
	return o.inner.Status(ctx)
}

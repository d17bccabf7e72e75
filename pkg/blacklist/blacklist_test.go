package blacklist

import (
	"context"
	"testing"

	"github.com/meshland/catalyst/pkg/apierr"
	"github.com/meshland/catalyst/pkg/deploy"
	"github.com/meshland/catalyst/pkg/entity"
	"github.com/meshland/catalyst/pkg/history"
)

// fakeService is a minimal in-memory deploy.Service double, just enough to
// exercise the overlay's filtering without standing up a real Orchestrator.
type fakeService struct {
	entities map[string]*entity.Entity
	content  map[string][]byte
	audits   map[string]*entity.AuditInfo
	pointers []string
	events   []history.Event
	deployed int
}

func newFakeService() *fakeService {
	return &fakeService{
		entities: make(map[string]*entity.Entity),
		content:  make(map[string][]byte),
		audits:   make(map[string]*entity.AuditInfo),
	}
}

func (f *fakeService) Deploy(ctx context.Context, req deploy.DeployRequest) (int64, error) {
	f.deployed++
	return 1, nil
}

func (f *fakeService) GetEntities(ctx context.Context, typ entity.Type, pointers, ids []string) ([]*entity.Entity, error) {
	var out []*entity.Entity
	for _, id := range ids {
		if e, ok := f.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeService) GetContent(ctx context.Context, hash string) ([]byte, error) {
	return f.content[hash], nil
}

func (f *fakeService) GetAudit(ctx context.Context, typ entity.Type, id string) (*entity.AuditInfo, error) {
	a := f.audits[id]
	if a == nil {
		return &entity.AuditInfo{}, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeService) GetActivePointers(ctx context.Context, typ entity.Type) ([]string, error) {
	return f.pointers, nil
}

func (f *fakeService) GetHistory(ctx context.Context, from, to *int64, serverName *string) ([]history.Event, error) {
	return f.events, nil
}

func (f *fakeService) Status(ctx context.Context) deploy.Status {
	return deploy.Status{Name: "fake"}
}

func TestGetEntitiesHidesBlacklistedEntity(t *testing.T) {
	fake := newFakeService()
	fake.entities["E1"] = &entity.Entity{ID: "E1", Type: entity.TypeScene}
	fake.entities["E2"] = &entity.Entity{ID: "E2", Type: entity.TypeScene}

	o := New(fake)
	o.BlacklistEntity("E1")

	entities, err := o.GetEntities(context.Background(), entity.TypeScene, nil, []string{"E1", "E2"})
	if err != nil {
		t.Fatalf("GetEntities() error = %v", err)
	}
	if len(entities) != 1 || entities[0].ID != "E2" {
		t.Fatalf("GetEntities() = %+v, want only E2", entities)
	}
}

func TestGetContentReportsBlacklistedHashAsNotFound(t *testing.T) {
	fake := newFakeService()
	fake.content["abc"] = []byte("data")

	o := New(fake)
	o.BlacklistContent("abc")

	_, err := o.GetContent(context.Background(), "abc")
	if err == nil {
		t.Fatal("GetContent() expected an error for blacklisted content")
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.NotFound {
		t.Fatalf("GetContent() error = %v, want a NotFound apierr.Error", err)
	}
}

func TestDeployRejectsBlacklistedAddress(t *testing.T) {
	fake := newFakeService()
	o := New(fake)
	o.BlacklistAddress("0xBAD")

	req := deploy.DeployRequest{
		AuthChain: []entity.AuthChainLink{{Type: "SIGNER", Payload: "0xBAD"}},
	}
	if _, err := o.Deploy(context.Background(), req); err == nil {
		t.Fatal("Deploy() expected a blacklisted-address rejection")
	}
	if fake.deployed != 0 {
		t.Error("Deploy() reached the inner service despite a blacklisted address")
	}
}

func TestDeployRejectsBlacklistedContentHash(t *testing.T) {
	fake := newFakeService()
	o := New(fake)
	o.BlacklistContent("badhash")

	req := deploy.DeployRequest{
		Files: map[string][]byte{"badhash": []byte("payload")},
	}
	if _, err := o.Deploy(context.Background(), req); err == nil {
		t.Fatal("Deploy() expected a blacklisted-content rejection")
	}
	if fake.deployed != 0 {
		t.Error("Deploy() reached the inner service despite blacklisted content")
	}
}

func TestDeployPassesThroughWhenNothingBlacklisted(t *testing.T) {
	fake := newFakeService()
	o := New(fake)

	req := deploy.DeployRequest{
		AuthChain: []entity.AuthChainLink{{Type: "SIGNER", Payload: "0xGOOD"}},
		Files:     map[string][]byte{"content-hash": []byte("payload")},
	}
	if _, err := o.Deploy(context.Background(), req); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if fake.deployed != 1 {
		t.Errorf("Deploy() reached the inner service %d times, want 1", fake.deployed)
	}
}

func TestGetAuditOverlaysBlacklistedContent(t *testing.T) {
	fake := newFakeService()
	fake.entities["E1"] = &entity.Entity{
		ID:      "E1",
		Type:    entity.TypeScene,
		Content: map[string]string{"model.glb": "contenthash"},
	}
	fake.audits["E1"] = &entity.AuditInfo{Version: "v3", DeployedTimestamp: 123}

	o := New(fake)
	o.BlacklistContent("contenthash")

	audit, err := o.GetAudit(context.Background(), entity.TypeScene, "E1")
	if err != nil {
		t.Fatalf("GetAudit() error = %v", err)
	}
	if !audit.IsBlacklisted {
		t.Error("GetAudit().IsBlacklisted = false, want true: entity references blacklisted content")
	}
	if len(audit.BlacklistedContent) != 1 || audit.BlacklistedContent[0] != "contenthash" {
		t.Errorf("GetAudit().BlacklistedContent = %v, want [contenthash]", audit.BlacklistedContent)
	}
}

func TestGetActivePointersHidesBlacklistedPointer(t *testing.T) {
	fake := newFakeService()
	fake.pointers = []string{"0,0", "1,1"}

	o := New(fake)
	o.BlacklistPointer(entity.TypeScene, "1,1")

	pointers, err := o.GetActivePointers(context.Background(), entity.TypeScene)
	if err != nil {
		t.Fatalf("GetActivePointers() error = %v", err)
	}
	if len(pointers) != 1 || pointers[0] != "0,0" {
		t.Fatalf("GetActivePointers() = %v, want [0,0]", pointers)
	}
}

func TestGetHistoryHidesBlacklistedEntityEvents(t *testing.T) {
	fake := newFakeService()
	fake.events = []history.Event{{EntityID: "E1"}, {EntityID: "E2"}}

	o := New(fake)
	o.BlacklistEntity("E1")

	events, err := o.GetHistory(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(events) != 1 || events[0].EntityID != "E2" {
		t.Fatalf("GetHistory() = %+v, want only E2's event", events)
	}
}

func TestClearRemovesABlacklistEntry(t *testing.T) {
	fake := newFakeService()
	fake.entities["E1"] = &entity.Entity{ID: "E1", Type: entity.TypeScene}

	o := New(fake)
	o.BlacklistEntity("E1")
	o.Clear("E1")

	entities, err := o.GetEntities(context.Background(), entity.TypeScene, nil, []string{"E1"})
	if err != nil {
		t.Fatalf("GetEntities() error = %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("GetEntities() = %+v, want E1 visible again after Clear", entities)
	}
}

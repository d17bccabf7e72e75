package validation

import (
	"context"
	"testing"
	"time"

	"github.com/meshland/catalyst/pkg/entity"
	"github.com/meshland/catalyst/pkg/hashing"
)

func validHash(t *testing.T, seed string) string {
	t.Helper()
	h, err := hashing.Hash([]byte(seed), hashing.CodecRaw)
	if err != nil {
		t.Fatalf("hashing.Hash() error = %v", err)
	}
	return h
}

func baseArgs(t *testing.T) Args {
	t.Helper()
	contentHash := validHash(t, "a.png")
	return Args{
		Ctx: context.Background(),
		Deployment: Deployment{
			Entity: &entity.Entity{
				ID:        validHash(t, "entity"),
				Type:      entity.TypeScene,
				Pointers:  []string{"0,0"},
				Timestamp: time.Now().UnixMilli(),
				Content:   map[string]string{"a.png": contentHash},
			},
			Files: map[string][]byte{contentHash: []byte("png-bytes")},
		},
		Env: Env{
			TTLBackwards: 10 * time.Minute,
			TTLForwards:  5 * time.Minute,
		},
	}
}

func TestRecentRejectsStaleTimestamp(t *testing.T) {
	a := baseArgs(t)
	a.Deployment.Entity.Timestamp = time.Now().Add(-25 * time.Minute).UnixMilli()

	errs := Recent(a)
	if len(errs) == 0 {
		t.Fatal("Recent() expected a failure for a 25-minute-old timestamp")
	}
}

func TestRecentAcceptsFreshTimestamp(t *testing.T) {
	a := baseArgs(t)
	if errs := Recent(a); len(errs) != 0 {
		t.Errorf("Recent() = %v, want no errors", errs)
	}
}

func TestContentRejectsMissingReference(t *testing.T) {
	a := baseArgs(t)
	missing := validHash(t, "nowhere")
	a.Deployment.Entity.Content["a.png"] = missing
	delete(a.Deployment.Files, a.Deployment.Entity.Content["a.png"])
	a.Deployment.Files = map[string][]byte{} // nothing uploaded, nothing stored

	errs := Content(a)
	if len(errs) == 0 {
		t.Fatal("Content() expected a failure for a missing content reference")
	}
}

func TestContentRejectsOrphanUpload(t *testing.T) {
	a := baseArgs(t)
	orphan := validHash(t, "orphan")
	a.Deployment.Files[orphan] = []byte("unreferenced")

	errs := Content(a)
	if len(errs) == 0 {
		t.Fatal("Content() expected a failure for an orphan upload")
	}
}

func TestContentAcceptsFullyReferencedUpload(t *testing.T) {
	a := baseArgs(t)
	if errs := Content(a); len(errs) != 0 {
		t.Errorf("Content() = %v, want no errors", errs)
	}
}

func TestContentAllowsAlreadyStoredHash(t *testing.T) {
	a := baseArgs(t)
	hash := a.Deployment.Entity.Content["a.png"]
	delete(a.Deployment.Files, hash)
	a.Calls.IsContentStoredAlready = func(_ context.Context, h string) (bool, error) {
		return h == hash, nil
	}

	if errs := Content(a); len(errs) != 0 {
		t.Errorf("Content() = %v, want no errors for already-stored hash", errs)
	}
}

func TestIPFSHashingRejectsInvalidEntityID(t *testing.T) {
	a := baseArgs(t)
	a.Deployment.Entity.ID = "not-a-cid"

	if errs := IPFSHashing(a); len(errs) == 0 {
		t.Fatal("IPFSHashing() expected a failure for an invalid entity id")
	}
}

func TestSignatureRejectsEmptyChain(t *testing.T) {
	a := baseArgs(t)
	if errs := Signature(a); len(errs) == 0 {
		t.Fatal("Signature() expected a failure for an empty auth chain")
	}
}

func TestAccessDelegatesToCheckerPerPointer(t *testing.T) {
	a := baseArgs(t)
	a.Deployment.AuthChain = []entity.AuthChainLink{{Type: "SIGNER", Payload: "0xOwner"}}
	var seenPointers []string
	a.Calls.AccessCheck = func(_ context.Context, _ entity.Type, pointer, ethAddress string) []string {
		seenPointers = append(seenPointers, pointer)
		if ethAddress != "0xOwner" {
			return []string{"wrong address"}
		}
		return nil
	}

	if errs := Access(a); len(errs) != 0 {
		t.Errorf("Access() = %v, want no errors", errs)
	}
	if len(seenPointers) != 1 || seenPointers[0] != "0,0" {
		t.Errorf("Access() checked pointers = %v, want [0,0]", seenPointers)
	}
}

func TestRequestSizeV3RejectsOversizedUpload(t *testing.T) {
	a := baseArgs(t)
	a.Env.MaxUploadSizePerType = map[entity.Type]int64{entity.TypeScene: 1}
	hash := a.Deployment.Entity.Content["a.png"]
	a.Deployment.Files[hash] = make([]byte, 2*1024*1024) // 2 MB, over the 1 MB cap

	if errs := RequestSizeV3(a); len(errs) == 0 {
		t.Fatal("RequestSizeV3() expected a failure for an oversized upload")
	}
}

func TestLegacyEntitySkippedWithoutMigrationData(t *testing.T) {
	a := baseArgs(t)
	if errs := LegacyEntity(a); len(errs) != 0 {
		t.Errorf("LegacyEntity() = %v, want no errors when there is no migration data", errs)
	}
}

func TestLegacyEntityRejectsWhenOverlapIsNewerMigration(t *testing.T) {
	a := baseArgs(t)
	a.Deployment.MigrationData = &entity.MigrationData{OriginalVersion: "1"}
	a.Env.AllowLegacyEntities = true

	overlapID := validHash(t, "overlap")
	a.Calls.FetchOverlapping = func(_ context.Context, _ entity.Type, _ []string) ([]*entity.Entity, error) {
		return []*entity.Entity{{ID: overlapID}}, nil
	}
	a.Calls.FetchOverlappingAudit = func(_ context.Context, id string) (*entity.AuditInfo, error) {
		return &entity.AuditInfo{MigrationData: &entity.MigrationData{OriginalVersion: "2"}}, nil
	}

	if errs := LegacyEntity(a); len(errs) == 0 {
		t.Fatal("LegacyEntity() expected a failure when overlap carries a newer original version")
	}
}

func TestLegacyEntityAllowsEqualOrLowerOverlap(t *testing.T) {
	a := baseArgs(t)
	a.Deployment.MigrationData = &entity.MigrationData{OriginalVersion: "2"}
	a.Env.AllowLegacyEntities = true

	overlapID := validHash(t, "overlap")
	a.Calls.FetchOverlapping = func(_ context.Context, _ entity.Type, _ []string) ([]*entity.Entity, error) {
		return []*entity.Entity{{ID: overlapID}}, nil
	}
	a.Calls.FetchOverlappingAudit = func(_ context.Context, id string) (*entity.AuditInfo, error) {
		return &entity.AuditInfo{MigrationData: &entity.MigrationData{OriginalVersion: "1"}}, nil
	}

	if errs := LegacyEntity(a); len(errs) != 0 {
		t.Errorf("LegacyEntity() = %v, want no errors when overlap's version is not newer", errs)
	}
}

func TestLegacyEntityRejectedWhenDisallowed(t *testing.T) {
	a := baseArgs(t)
	a.Deployment.MigrationData = &entity.MigrationData{OriginalVersion: "1"}
	a.Env.AllowLegacyEntities = false

	if errs := LegacyEntity(a); len(errs) == 0 {
		t.Fatal("LegacyEntity() expected a failure when legacy entities are disallowed")
	}
}

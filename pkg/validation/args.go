package validation

import (
	"context"
	"time"

	"github.com/meshland/catalyst/pkg/entity"
)

// Deployment is the material under validation: the parsed entity, the
// auth chain authorizing it, the uploaded content bytes keyed by hash,
// and (for legacy/migrated entities) the migration data carried in the
// would-be AuditInfo.
type Deployment struct {
	Entity        *entity.Entity
	AuthChain     []entity.AuthChainLink
	Files         map[string][]byte // uploaded hash -> bytes, excludes entity.json
	MigrationData *entity.MigrationData

	// AllowMissingContent lets CONTENT pass even when a referenced hash is
	// neither uploaded nor already stored. Only the sync replay path sets
	// this (spec.md S6); the local deploy path always leaves it false.
	AllowMissingContent bool
}

// Env bundles the server configuration the predicates consult.
type Env struct {
	Now                  func() time.Time
	TTLBackwards         time.Duration
	TTLForwards          time.Duration
	MaxUploadSizePerType map[entity.Type]int64 // megabytes, per pointer
	AllowLegacyEntities  bool
}

// ExternalCalls is the capabilities record spec.md §9 asks validators to
// depend on instead of a dynamic, untyped dependency bag.
type ExternalCalls struct {
	IsContentStoredAlready func(ctx context.Context, hash string) (bool, error)
	FetchOverlapping       func(ctx context.Context, typ entity.Type, pointers []string) ([]*entity.Entity, error)
	FetchOverlappingAudit  func(ctx context.Context, entityID string) (*entity.AuditInfo, error)
	AccessCheck            func(ctx context.Context, typ entity.Type, pointer, ethAddress string) []string
}

// Args is what every Rule receives.
type Args struct {
	Ctx        context.Context
	Deployment Deployment
	Env        Env
	Calls      ExternalCalls
}

// Rule is a single validation predicate: a pure function from Args to a
// (possibly empty) list of human-readable failure reasons.
type Rule func(Args) []string

// NamedRule pairs a Rule with the predicate name (§4.1) it implements, so
// callers can attribute which predicate produced a given failure.
type NamedRule struct {
	Name string
	Rule Rule
}

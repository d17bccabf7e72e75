package validation

import (
	"fmt"
	"strconv"
	"time"

	"github.com/meshland/catalyst/pkg/authchain"
	"github.com/meshland/catalyst/pkg/hashing"
)

// DefaultRules is every predicate from spec.md §4.1, in an order that
// runs cheap local checks before anything dispatching external calls.
var DefaultRules = []NamedRule{
	{Name: "RECENT", Rule: Recent},
	{Name: "IPFS_HASHING", Rule: IPFSHashing},
	{Name: "CONTENT", Rule: Content},
	{Name: "SIGNATURE", Rule: Signature},
	{Name: "ACCESS", Rule: Access},
	{Name: "REQUEST_SIZE_V3", Rule: RequestSizeV3},
	{Name: "LEGACY_ENTITY", Rule: LegacyEntity},
}

// RunAll runs every rule against a and returns the concatenation of all
// failures. Unlike short-circuiting validation, every rule always runs so
// a client sees every problem with a submission in one response. onFailure,
// when non-nil, is called with each rule's name whenever it reports at
// least one failure, so a caller can attribute validation failures by
// predicate (e.g. to a metrics collector) without RunAll depending on one.
func RunAll(a Args, rules []NamedRule, onFailure func(name string)) []string {
	var errs []string
	for _, r := range rules {
		ruleErrs := r.Rule(a)
		if len(ruleErrs) > 0 && onFailure != nil {
			onFailure(r.Name)
		}
		errs = append(errs, ruleErrs...)
	}
	return errs
}

// Recent rejects deployments whose client-supplied timestamp is too far
// in the past or future.
func Recent(a Args) []string {
	now := time.Now()
	if a.Env.Now != nil {
		now = a.Env.Now()
	}
	ts := time.UnixMilli(a.Deployment.Entity.Timestamp)

	if now.Sub(ts) > a.Env.TTLBackwards || ts.Sub(now) > a.Env.TTLForwards {
		return []string{"The request is not recent enough, please submit it again with a new timestamp"}
	}
	return nil
}

// Signature verifies the auth chain is rooted at an Ethereum address and
// ultimately signs the entity id.
func Signature(a Args) []string {
	if _, err := authchain.Verify(a.Deployment.AuthChain, a.Deployment.Entity.ID); err != nil {
		return []string{"The signature is invalid"}
	}
	return nil
}

// Content checks every referenced hash is either uploaded or already
// stored, and every uploaded hash is referenced (no orphan uploads).
//
// AllowMissingContent skips the "must be present" half of this check: the
// Synchronizer sets it when replaying an event whose source peer already
// validated the reference and the content fetch itself failed, per
// spec.md S6 — the pointer still commits, and a FETCH_PROBLEM is recorded
// separately so the missing bytes are retried on a later tick.
func Content(a Args) []string {
	var errs []string

	referenced := make(map[string]bool, len(a.Deployment.Entity.Content))
	for _, hash := range a.Deployment.Entity.Content {
		referenced[hash] = true
		if _, uploaded := a.Deployment.Files[hash]; uploaded {
			continue
		}
		if a.Deployment.AllowMissingContent {
			continue
		}

		stored := false
		if a.Calls.IsContentStoredAlready != nil {
			var err error
			stored, err = a.Calls.IsContentStoredAlready(a.Ctx, hash)
			if err != nil {
				errs = append(errs, fmt.Sprintf("could not check whether hash %s is already stored: %v", hash, err))
				continue
			}
		}
		if !stored {
			errs = append(errs, fmt.Sprintf("This hash is referenced in the entity but was not uploaded or previously available: %s", hash))
		}
	}

	for hash := range a.Deployment.Files {
		if !referenced[hash] {
			errs = append(errs, fmt.Sprintf("This hash was uploaded but is not referenced in the entity: %s", hash))
		}
	}
	return errs
}

// IPFSHashing requires the entity id and every content hash to be a
// valid CIDv1 string.
func IPFSHashing(a Args) []string {
	var errs []string
	if !hashing.Validate(a.Deployment.Entity.ID) {
		errs = append(errs, fmt.Sprintf("Entity id is not a valid hash: %s", a.Deployment.Entity.ID))
	}
	for _, hash := range a.Deployment.Entity.Content {
		if !hashing.Validate(hash) {
			errs = append(errs, fmt.Sprintf("Content hash is not a valid hash: %s", hash))
		}
	}
	return errs
}

// Access delegates to the external access checker for every pointer the
// entity targets, using the auth chain's root address.
func Access(a Args) []string {
	if a.Calls.AccessCheck == nil || len(a.Deployment.AuthChain) == 0 {
		return nil
	}
	ethAddress := a.Deployment.AuthChain[0].Payload

	var errs []string
	for _, p := range a.Deployment.Entity.Pointers {
		errs = append(errs, a.Calls.AccessCheck(a.Ctx, a.Deployment.Entity.Type, p, ethAddress)...)
	}
	return errs
}

// RequestSizeV3 caps the uploaded bytes divided across the entity's
// pointers at the configured per-type megabyte limit.
func RequestSizeV3(a Args) []string {
	e := a.Deployment.Entity
	if len(e.Pointers) == 0 {
		return nil
	}

	maxMB, ok := a.Env.MaxUploadSizePerType[e.Type]
	if !ok {
		return nil
	}

	var totalBytes int64
	for _, data := range a.Deployment.Files {
		totalBytes += int64(len(data))
	}

	maxBytes := maxMB * 1024 * 1024
	perPointer := totalBytes / int64(len(e.Pointers))
	if perPointer > maxBytes {
		return []string{fmt.Sprintf("The deployment is too big, the maximum allowed size per pointer for type %s is %d MB", e.Type, maxMB)}
	}
	return nil
}

// LegacyEntity only runs when the deployment carries migration data. A
// legacy migration is rejected only when an overlapping deployment's own
// migration data names a strictly newer original version — an
// overlapping non-legacy deployment never blocks it by itself. (Decision
// on spec.md's Open Question; see DESIGN.md.)
func LegacyEntity(a Args) []string {
	md := a.Deployment.MigrationData
	if md == nil {
		return nil
	}
	if !a.Env.AllowLegacyEntities {
		return []string{"Legacy entities are not allowed on this server"}
	}
	if a.Calls.FetchOverlapping == nil || a.Calls.FetchOverlappingAudit == nil {
		return nil
	}

	overlapping, err := a.Calls.FetchOverlapping(a.Ctx, a.Deployment.Entity.Type, a.Deployment.Entity.Pointers)
	if err != nil {
		return []string{fmt.Sprintf("could not resolve overlapping deployments: %v", err)}
	}

	for _, overlap := range overlapping {
		if overlap.ID == a.Deployment.Entity.ID {
			continue
		}
		audit, err := a.Calls.FetchOverlappingAudit(a.Ctx, overlap.ID)
		if err != nil || audit == nil || audit.MigrationData == nil {
			continue
		}
		if versionGreater(audit.MigrationData.OriginalVersion, md.OriginalVersion) {
			return []string{fmt.Sprintf("a newer legacy migration (version %s) already exists on an overlapping pointer", audit.MigrationData.OriginalVersion)}
		}
	}
	return nil
}

// versionGreater compares two originalVersion strings numerically when
// possible, falling back to lexicographic comparison.
func versionGreater(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai > bi
	}
	return a > b
}

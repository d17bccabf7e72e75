/*
Package blacklist implements the subtractive overlay spec.md §9 describes
as a decorator chain: Overlay wraps a deploy.Service by delegation and
implements the same interface, holding the inner service by value the way
the design notes prescribe for a middleware-shaped service trait.

The overlay never mutates storage. It only filters reads (hiding
blacklisted entities, content, and pointers from GetEntities/GetContent/
GetActivePointers/GetHistory, and overlaying IsBlacklisted/
BlacklistedContent onto GetAudit) and rejects writes that would reference
a blacklisted address, entity, content hash, or pointer before they ever
reach the inner service.

This is a minimal but real overlay — in-memory sets, no persistence, no
claim to reproduce a production blacklist's business rules, which
spec.md §1 places out of scope.
*/
package blacklist

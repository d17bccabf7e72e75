/*
Package sync implements the Synchronizer (C10): a periodic task that pulls
each Active peer's history since its last known watermark, merges the
results into one (timestamp, entityId)-ordered stream deduplicated by
entity id, and replays each event through the deploy path with
checkFreshness=false — because a replayed event is, by construction, not a
fresh client write but a canonical-order catch-up.

Because every honest node replays the same events in the same order and
Pointer Manager's commit is deterministic in that order, repeated ticks
converge every node's pointer state to the same result, modulo the still-
mutable window above the immutable-time watermark.

Per-peer history fetches run across pkg/workerpool's bounded goroutine
pool, since a cluster can hold more peers than it makes sense to dial
all at once.
*/
package sync

/*
Package cluster turns the peer base URLs dao.Client resolves into callable
clients the Synchronizer can read history, entities, audit info, and
content from.

Per spec.md §4.6, membership and reachability are kept as separate axes:
every peer the DAO names becomes either an Active client (reachable, has
its own lastKnownTimestamp watermark) or a Redirect client (named but
currently unreachable). A Redirect client still answers every call — by
fanning out to whichever peers are presently Active and returning the
first success — so callers never need to branch on reachability
themselves; they only ever see one Client interface. This is a tagged
variant, not a type hierarchy: Pool.Refresh decides once per tick which
tag each peer gets.
*/
package cluster

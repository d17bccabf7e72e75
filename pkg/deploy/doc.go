/*
Package deploy implements the content server's single mutation path: the
13-step deploy algorithm that turns an uploaded entity file plus its
referenced content into a durable, pointer-committed, audited, and
history-logged entity.

Service is the orchestrator's public contract. It is the only component
allowed to write to the Pointer Manager (pkg/pointer) and the History
Manager (pkg/history); every other mutation — content storage, audit
persistence, failure recording — happens as a side effect of a Deploy call.
Within a Deploy the pointer commit comes first, then the entity file,
content files and audit record are stored, then the history event is
appended; a crash between the pointer commit and the storage writes can
leave a pointer naming an entity whose files were not stored.

Deploy calls are serialized per entity.Type with a striped mutex, the same
per-resource locking granularity the rolling-update batches in the
teacher's deploy package used, generalized here from "one service update at
a time" to "one pointer-mutating commit at a time per type".
*/
package deploy

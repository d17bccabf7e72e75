/*
Package pointer implements the Pointer Manager (C5): the mapping from
(entity type, pointer) to the single active entity id, maintained under the
timestamp-ordered, last-writer-wins rule with overlap handling described by
the content server's commit algorithm.

The whole map is replaced as a unit on every commit (copy-on-write) rather
than locked per-pointer, because a multi-pointer deployment must become
visible to readers atomically — the same constraint the teacher's manager
package meets by guarding all cluster state with one sync.RWMutex rather
than fine-grained per-key locks.
*/
package pointer

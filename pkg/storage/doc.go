// Package storage provides the opaque category+key blob store (C2 in the
// content server design): exists/get/put/delete over flat namespaces
// (contents/<hash>, proofs/<entityId>, pointers-<type>/<pointer>), backed by
// BoltDB (bbolt) the same way the teacher orchestrator persists its cluster
// state, generalized here from a fixed bucket list to one bucket per
// category, created on demand since pointer categories are per-entity-type.
package storage

// catalystd wires the content server's components into a runnable process:
// bbolt storage, the Pointer/History/Failure managers, the deploy
// Orchestrator wrapped in a blacklist.Overlay, a DAO-driven cluster.Pool,
// the background Synchronizer, and the HTTP API. Configuration comes
// entirely from the environment via pkg/config, matching spec.md §6.
package main

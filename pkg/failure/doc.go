/*
Package failure implements the Failed-Deployment Registry (C7): the record
of deployments the synchronizer or the local deploy path could not apply,
keyed by entity id so a later successful deployment of the same entity
clears the entry.

There is no timer-driven retry here — the registry only records and
clears. Retry cadence is a property of the synchronizer re-encountering
the same history event on its next tick.
*/
package failure

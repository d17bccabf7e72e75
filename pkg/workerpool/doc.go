/*
Package workerpool runs a batch of jobs (in this repository, the
synchronizer's per-peer history fetches) across a bounded set of
goroutines, the same batch-at-a-time shape the teacher's deploy package
used for rolling-update container batches, generalized from container
batches to arbitrary job functions.
*/
package workerpool

package workerpool

import (
	"context"
	"sync"
)

// Job is one unit of CPU-bound work submitted to a Pool.
type Job[T any] func(ctx context.Context) (T, error)

// Result pairs a job's index (its position in the slice passed to Run)
// with its outcome, so callers can line results back up with inputs.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Run executes jobs across at most parallelism goroutines and returns
// one Result per job, in the same order as jobs. A parallelism of 0 or
// less runs every job on its own goroutine (useful for small batches).
func Run[T any](ctx context.Context, jobs []Job[T], parallelism int) []Result[T] {
	results := make([]Result[T], len(jobs))
	if len(jobs) == 0 {
		return results
	}
	if parallelism <= 0 || parallelism > len(jobs) {
		parallelism = len(jobs)
	}

	indices := make(chan int, len(jobs))
	for i := range jobs {
		indices <- i
	}
	close(indices)

	var wg sync.WaitGroup
	wg.Add(parallelism)
	for w := 0; w < parallelism; w++ {
		go func() {
			defer wg.Done()
			for i := range indices {
				value, err := jobs[i](ctx)
				results[i] = Result[T]{Index: i, Value: value, Err: err}
			}
		}()
	}
	wg.Wait()
	return results
}

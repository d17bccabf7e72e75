package workerpool

import (
	"context"
	"errors"
	"testing"
)

func TestRunPreservesOrder(t *testing.T) {
	jobs := make([]Job[int], 10)
	for i := range jobs {
		i := i
		jobs[i] = func(ctx context.Context) (int, error) {
			return i * i, nil
		}
	}

	results := Run(context.Background(), jobs, 3)
	if len(results) != len(jobs) {
		t.Fatalf("Run() returned %d results, want %d", len(results), len(jobs))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("results[%d].Index = %d, want %d", i, r.Index, i)
		}
		if r.Value != i*i {
			t.Errorf("results[%d].Value = %d, want %d", i, r.Value, i*i)
		}
	}
}

func TestRunCollectsPerJobErrors(t *testing.T) {
	boom := errors.New("boom")
	jobs := []Job[int]{
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context) (int, error) { return 0, boom },
	}

	results := Run(context.Background(), jobs, 2)
	if results[0].Err != nil {
		t.Errorf("results[0].Err = %v, want nil", results[0].Err)
	}
	if results[1].Err != boom {
		t.Errorf("results[1].Err = %v, want %v", results[1].Err, boom)
	}
}

func TestRunEmptyJobs(t *testing.T) {
	results := Run[int](context.Background(), nil, 4)
	if len(results) != 0 {
		t.Errorf("Run() = %v, want empty", results)
	}
}

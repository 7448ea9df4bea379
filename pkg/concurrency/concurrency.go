// Package concurrency provides a simple utility for running tasks on a slice in parallel.
package concurrency

import (
	"context"
	"sync"
)

// minItemsForParallel is the threshold needed to be eligible for running in parallel.
const minItemsForParallel = 4

// ForEach executes a worker function for each item in a slice, distributing the work across workers goroutines.
func ForEach[T any](ctx context.Context, workers int, items []T, workerFunc func(index int, item T) error) error {
	_, err := mapIndexed(ctx, workers, items, func(i int, item T) (struct{}, error) {
		return struct{}{}, workerFunc(i, item)
	})
	return err
}

// Map executes a worker function for each item in a slice and returns a new slice
// containing the transformed results in input order.
func Map[T any, U any](ctx context.Context, workers int, items []T, workerFunc func(item T) (U, error)) ([]U, error) {
	return mapIndexed(ctx, workers, items, func(_ int, item T) (U, error) { return workerFunc(item) })
}

func mapIndexed[T any, U any](ctx context.Context, workers int, items []T, workerFunc func(index int, item T) (U, error)) ([]U, error) {
	numItems := len(items)
	if numItems == 0 {
		return nil, nil
	}
	results := make([]U, numItems)

	// If parallelism is not configured or the slice is too small, run sequentially.
	if workers <= 1 || numItems < minItemsForParallel {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := workerFunc(i, item)
			if err != nil {
				return nil, err // Fail fast on the first error.
			}
			results[i] = res
		}
		return results, nil
	}

	// --- Parallel Execution Path ---
	jobs := make(chan int, numItems)
	errs := make(chan error, numItems)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					errs <- err
					continue
				}
				res, err := workerFunc(i, items[i])
				if err != nil {
					errs <- err
					continue
				}
				results[i] = res
			}
		}()
	}

	for i := 0; i < numItems; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(errs)

	if len(errs) > 0 {
		return nil, <-errs // Return the first error found.
	}

	return results, nil
}

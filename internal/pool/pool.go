// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pool provides the bounded-parallelism primitive shared by the
// fetch and extraction stages. Concurrency limits are enforced here, once,
// rather than re-implemented per call site.
// Implements: prd003-extraction R3.1-R3.4; docs/ARCHITECTURE § Concurrency.
package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Run executes fn(i) for every index in [0, n) with at most limit tasks
// running concurrently. Every launched task settles: one task's outcome
// never cancels the others, and Run returns only after all launched tasks
// have finished. Results belong in index-addressed slots owned by the
// caller, so aggregation is by identity rather than completion order.
//
// A cancelled ctx stops new launches; tasks already running finish. Run
// returns ctx.Err() when cancellation cut the batch short, nil otherwise.
func Run(ctx context.Context, n, limit int, fn func(i int)) error {
	if limit < 1 {
		limit = 1
	}

	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			fn(i)
		}(i)
	}

	wg.Wait()
	return ctx.Err()
}

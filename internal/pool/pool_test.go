package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunExecutesAll(t *testing.T) {
	var count int64
	err := Run(context.Background(), 20, 4, func(i int) {
		atomic.AddInt64(&count, 1)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 20 {
		t.Errorf("ran %d tasks, want 20", count)
	}
}

func TestRunRespectsLimit(t *testing.T) {
	const limit = 3
	var inFlight, peak int64

	err := Run(context.Background(), 30, limit, func(i int) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak > limit {
		t.Errorf("peak concurrency = %d, want <= %d", peak, limit)
	}
}

func TestRunFillsIndexSlots(t *testing.T) {
	results := make([]int, 50)
	err := Run(context.Background(), 50, 8, func(i int) {
		results[i] = i + 1
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, v := range results {
		if v != i+1 {
			t.Fatalf("slot %d = %d, want %d", i, v, i+1)
		}
	}
}

func TestRunZeroLimit(t *testing.T) {
	var count int64
	if err := Run(context.Background(), 5, 0, func(i int) {
		atomic.AddInt64(&count, 1)
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 5 {
		t.Errorf("ran %d tasks, want 5", count)
	}
}

func TestRunCancellationSettlesInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var started, finished int64
	var once sync.Once

	err := Run(ctx, 100, 2, func(i int) {
		atomic.AddInt64(&started, 1)
		// First tasks cancel the rest of the batch mid-run.
		once.Do(cancel)
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&finished, 1)
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if started == 100 {
		t.Error("cancellation should have stopped further launches")
	}
	if started != finished {
		t.Errorf("started=%d finished=%d: in-flight tasks must settle", started, finished)
	}
}

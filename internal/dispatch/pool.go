// Package dispatch provides the streaming worker-pool primitive shared by
// the CPU-bound pipeline phases.
//
// Workers receive chunks of items and push per-item results into a bounded
// channel; the caller's consume function runs in the dispatching goroutine,
// applying one result at a time in arrival order. That single merge point is
// the only shared mutable state, so no locks are needed anywhere else, and
// the bounded channel keeps peak buffered results near one chunk per worker
// regardless of workload size.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Stats reports what one Run observed; tests use MaxInFlight to assert the
// streaming memory bound.
type Stats struct {
	// Items is the number of results consumed.
	Items int

	// MaxInFlight is the high-water mark of results produced but not yet
	// consumed.
	MaxInFlight int
}

// Run dispatches items across the pool and streams results to consume.
// Results arrive in completion order, not submission order. Run returns when
// every item has been consumed or the context is canceled.
func Run[T, R any](ctx context.Context, items []T, work func(context.Context, T) R, consume func(R), opts ...Option) (Stats, error) {
	o := newOptions(len(items), opts...)

	if len(items) == 0 {
		return Stats{}, nil
	}

	var (
		inFlight    atomic.Int64
		maxInFlight atomic.Int64
	)

	chunks := make(chan []T, o.workers)
	results := make(chan R, o.chunkSize)

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range chunks {
				for _, item := range chunk {
					r := work(ctx, item)
					n := inFlight.Add(1)
					for {
						prev := maxInFlight.Load()
						if n <= prev || maxInFlight.CompareAndSwap(prev, n) {
							break
						}
					}
					select {
					case results <- r:
					case <-ctx.Done():
						inFlight.Add(-1)
						return
					}
				}
			}
		}()
	}

	// Feeder: partition items into chunks. Stops on cancellation.
	go func() {
		defer close(chunks)
		for start := 0; start < len(items); start += o.chunkSize {
			end := start + o.chunkSize
			if end > len(items) {
				end = len(items)
			}
			select {
			case chunks <- items[start:end]:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Closer: results ends exactly when the last worker finishes.
	go func() {
		wg.Wait()
		close(results)
	}()

	stats := Stats{}
	for r := range results {
		inFlight.Add(-1)
		consume(r)
		stats.Items++
	}
	stats.MaxInFlight = int(maxInFlight.Load())

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// ChunkSize balances dispatch overhead against load imbalance: chunks shrink
// as workers multiply and grow with the workload, capped so streaming keeps
// peak buffered results bounded.
func ChunkSize(items, workers, ceiling int) int {
	if items <= 0 || workers <= 0 {
		return 1
	}
	size := (items + workers*chunksPerWorker - 1) / (workers * chunksPerWorker)
	if size < 1 {
		size = 1
	}
	if ceiling > 0 && size > ceiling {
		size = ceiling
	}
	return size
}

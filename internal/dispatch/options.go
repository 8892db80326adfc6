package dispatch

import "runtime"

// chunksPerWorker is the target number of chunks each worker sees per run;
// more chunks smooth load imbalance, fewer reduce dispatch overhead.
const chunksPerWorker = 4

// options configure one Run.
type options struct {
	workers   int
	chunkSize int
}

// Option applies a configuration option to a Run.
type Option func(*options)

// WithWorkers sets the worker count; defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithChunkSize pins the chunk size, bypassing the derived default.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

func newOptions(items int, opts ...Option) options {
	o := options{
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.chunkSize <= 0 {
		o.chunkSize = ChunkSize(items, o.workers, 0)
	}
	return o
}

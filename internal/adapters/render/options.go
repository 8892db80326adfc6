package render

import (
	"github.com/relaywatch/relaywatch/pkg/logger"
)

// Default engine configuration constants.
const (
	defaultParallelThreshold = 128
	defaultChunkCap          = 50
	maxAttempts              = 2 // one retry, never more
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWorkers sets the parallel worker count; 0 means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithParallelThreshold sets the per-group job count at or above which the
// pool path is selected.
func WithParallelThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.threshold = n
		}
	}
}

// WithChunkCap caps the derived chunk size.
func WithChunkCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkCap = n
		}
	}
}

// WithDisableParallelism forces the sequential path regardless of workload.
func WithDisableParallelism(disable bool) Option {
	return func(e *Engine) {
		e.disableParallel = disable
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

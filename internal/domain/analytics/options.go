package analytics

import (
	"github.com/relaywatch/relaywatch/pkg/logger"
)

// Default engine configuration constants. The threshold and multipliers are
// tunables, not requirements; config may override all of them.
const (
	defaultParallelThreshold = 64
	defaultOutlierMultiple   = 2.0
	defaultRarityThreshold   = 6.0
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

// WithParallelThreshold sets the operator count at or above which the
// parallel path is selected.
func WithParallelThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.threshold = n
		}
	}
}

// WithDisableParallelism forces the sequential path regardless of workload.
func WithDisableParallelism(disable bool) Option {
	return func(e *Engine) {
		e.disableParallel = disable
	}
}

// WithEvaluator wires the external consensus evaluator; nil disables the
// eligibility feature for the run.
func WithEvaluator(ev Evaluator) Option {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithOutlierMultiple sets the standard-deviation multiple beyond which a
// member node counts as an uptime outlier.
func WithOutlierMultiple(m float64) Option {
	return func(e *Engine) {
		if m > 0 {
			e.outlierMultiple = m
		}
	}
}

// WithRarityThreshold sets the composite score at which a country is rare.
func WithRarityThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 {
			e.rarityThreshold = t
		}
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

// Package fetch coordinates concurrent acquisition of telemetry snapshots.
package fetch

import (
	"net/http"
	"time"

	"github.com/relaywatch/relaywatch/pkg/logger"
)

// Default coordinator configuration constants.
const (
	defaultConcurrency    = 8
	defaultFetchTimeout   = 30 * time.Second
	defaultStalenessBound = 3 * time.Hour
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithConcurrency bounds the number of in-flight source fetches.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Coordinator) {
		if client != nil {
			c.client = client
		}
	}
}

// WithStalenessBound sets the maximum cache entry age usable as a fallback.
func WithStalenessBound(bound time.Duration) Option {
	return func(c *Coordinator) {
		if bound > 0 {
			c.staleness = bound
		}
	}
}

// WithStatusRecorder sets the per-source status persistence hook.
func WithStatusRecorder(rec StatusRecorder) Option {
	return func(c *Coordinator) {
		if rec != nil {
			c.recorder = rec
		}
	}
}

// WithClock sets the time source, used by tests to pin staleness decisions.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the coordinator.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

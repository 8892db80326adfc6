// Package config defines pipeline configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults, Load(ctx) to layer an
//   optional YAML file and environment variables on top.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
)

// Config contains one run's configuration. The pipeline receives these as
// plain values; no configuration logic leaks past this package.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// OutputDir is the root for rendered documents and run artifacts.
	OutputDir string `koanf:"output_dir"`

	// CachePath locates the sqlite snapshot cache.
	CachePath string `koanf:"cache_path"`

	// SourceEndpoints overrides telemetry endpoints per source id.
	SourceEndpoints map[string]string `koanf:"source_endpoints"`

	// FetchConcurrency bounds concurrent source fetches. Sized for network
	// latency, not CPU count.
	FetchConcurrency int `koanf:"fetch_concurrency"`

	// FetchTimeoutMS bounds one source fetch in milliseconds.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`

	// StalenessBoundMinutes is the maximum cache entry age that still counts
	// as fresh for fallback purposes.
	StalenessBoundMinutes int `koanf:"staleness_bound_minutes"`

	// WorkerCount overrides the CPU-bound worker count; 0 means GOMAXPROCS.
	WorkerCount int `koanf:"worker_count"`

	// DisableParallelism forces the sequential path for analytics and render.
	DisableParallelism bool `koanf:"disable_parallelism"`

	// AnalyticsParallelThreshold is the operator count at or above which the
	// analytics phase dispatches to the worker pool.
	AnalyticsParallelThreshold int `koanf:"analytics_parallel_threshold"`

	// RenderParallelThreshold is the per-group job count at or above which
	// the render phase dispatches to the worker pool.
	RenderParallelThreshold int `koanf:"render_parallel_threshold"`

	// RenderChunkCap caps the render job chunk size.
	RenderChunkCap int `koanf:"render_chunk_cap"`

	// OutlierStdDevMultiple flags a member node whose uptime deviates from
	// its operator's mean by more than this many standard deviations.
	OutlierStdDevMultiple float64 `koanf:"outlier_stddev_multiple"`

	// RarityThreshold is the composite score at which a country counts as rare.
	RarityThreshold float64 `koanf:"rarity_threshold"`
}

// New creates a Config with documented defaults. Context is accepted first to
// satisfy the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                   "info",
		OutputDir:                  "out",
		CachePath:                  "cache/snapshots.db",
		SourceEndpoints:            map[string]string{},
		FetchConcurrency:           8,
		FetchTimeoutMS:             30_000,
		StalenessBoundMinutes:      180,
		WorkerCount:                0,
		DisableParallelism:         false,
		AnalyticsParallelThreshold: 64,
		RenderParallelThreshold:    128,
		RenderChunkCap:             50,
		OutlierStdDevMultiple:      2.0,
		RarityThreshold:            6.0,
	}
}

// Package app orchestrates one pipeline run: fetch, aggregate, precompute,
// render, summarize.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/relaywatch/relaywatch/internal/adapters/cachestore"
	"github.com/relaywatch/relaywatch/internal/adapters/fetch"
	"github.com/relaywatch/relaywatch/internal/adapters/render"
	"github.com/relaywatch/relaywatch/internal/config"
	"github.com/relaywatch/relaywatch/internal/domain/aggregate"
	"github.com/relaywatch/relaywatch/internal/domain/analytics"
	"github.com/relaywatch/relaywatch/internal/domain/model"
	"github.com/relaywatch/relaywatch/pkg/logger"
	"github.com/relaywatch/relaywatch/pkg/metrics"
)

// Default telemetry endpoints; config source_endpoints overrides per source.
const defaultEndpointBase = "https://onionoo.torproject.org"

// Service wires the pipeline stages together for one run.
type Service struct {
	cfg       *config.Config
	cache     fetch.Cache
	sources   []fetch.Descriptor
	evaluator analytics.Evaluator
	renderer  render.Renderer
	logger    logger.Logger
}

// New constructs a Service. The renderer is mandatory; the cache defaults to
// the sqlite store at the configured path.
func New(cfg *config.Config, renderer render.Renderer, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrSetup)
	}
	if renderer == nil {
		return nil, fmt.Errorf("%w: nil renderer", ErrSetup)
	}

	s := &Service{
		cfg:      cfg,
		renderer: renderer,
		logger:   logger.Get().Named("app"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cache == nil {
		store, err := cachestore.Open(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("%w: opening cache: %w", ErrSetup, err)
		}
		s.cache = cacheAdapter{store: store}
	}
	if s.sources == nil {
		s.sources = defaultSources(cfg)
	}
	return s, nil
}

// defaultSources builds the source set: details is required, uptime enriches.
func defaultSources(cfg *config.Config) []fetch.Descriptor {
	endpoint := func(id model.SourceID) string {
		if override, ok := cfg.SourceEndpoints[string(id)]; ok && override != "" {
			return override
		}
		return defaultEndpointBase + "/" + string(id)
	}
	return []fetch.Descriptor{
		{ID: model.SourceDetails, Endpoint: endpoint(model.SourceDetails), Required: true},
		{ID: model.SourceUptime, Endpoint: endpoint(model.SourceUptime), Required: false},
	}
}

// Run executes the full pipeline once. Fatal errors (required source,
// corrupted shared state) return non-nil; everything smaller degrades and is
// reported in the summary, which is persisted even on success.
func (s *Service) Run(ctx context.Context) (*RunSummary, error) {
	started := time.Now()
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: started.UTC(),
	}
	s.logger.Info(ctx, "run starting", logger.String("run_id", summary.RunID))

	snap, err := s.fetchStage(ctx)
	if err != nil {
		return nil, err
	}
	summary.Warnings = append(summary.Warnings, snap.Warnings...)

	agg, err := s.aggregateStage(ctx, snap, summary)
	if err != nil {
		return nil, err
	}
	summary.Nodes = len(agg.Nodes)
	summary.Operators = len(agg.Operators)
	summary.ExcludedNodes = agg.Excluded

	if err := s.analyticsStage(ctx, agg); err != nil {
		return nil, err
	}

	report, err := s.renderStage(ctx, agg, summary)
	if err != nil {
		return nil, err
	}
	summary.DocumentsPersisted = report.Persisted
	summary.FailedJobs = report.Failures

	summary.Duration = time.Since(started)
	metrics.UpdateRunDuration(summary.Duration.Seconds())

	if err := writeSummary(s.cfg.OutputDir, summary); err != nil {
		s.logger.Warn(ctx, "writing run summary failed", logger.Error(err))
	}

	s.logger.Info(ctx, "run complete",
		logger.String("run_id", summary.RunID),
		logger.Int("documents", summary.DocumentsPersisted),
		logger.Int("failed_jobs", len(summary.FailedJobs)),
		logger.Int("warnings", len(summary.Warnings)),
		logger.Duration("duration", summary.Duration))
	return summary, nil
}

func (s *Service) fetchStage(ctx context.Context) (*fetch.Snapshot, error) {
	start := time.Now()
	defer func() { metrics.RecordStageDuration("fetch", time.Since(start).Seconds()) }()

	coordinator := fetch.NewCoordinator(s.cache, s.sources,
		fetch.WithConcurrency(s.cfg.FetchConcurrency),
		fetch.WithStalenessBound(time.Duration(s.cfg.StalenessBoundMinutes)*time.Minute),
		fetch.WithHTTPClient(&http.Client{Timeout: time.Duration(s.cfg.FetchTimeoutMS) * time.Millisecond}),
		fetch.WithStatusRecorder(newStatusRecorder(s.cfg.OutputDir)),
		fetch.WithLogger(s.logger.Named("fetch")),
	)
	snap, err := coordinator.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch stage: %w", err)
	}
	return snap, nil
}

func (s *Service) aggregateStage(ctx context.Context, snap *fetch.Snapshot, summary *RunSummary) (*aggregate.Result, error) {
	start := time.Now()
	defer func() { metrics.RecordStageDuration("aggregate", time.Since(start).Seconds()) }()

	details, err := model.DecodeDetails(snap.Payload(model.SourceDetails))
	if err != nil {
		// The graph cannot be built from an unparseable required payload.
		return nil, fmt.Errorf("%w: %s: %w", fetch.ErrRequiredSource, model.SourceDetails, err)
	}

	var uptimes []model.UptimeRecord
	if snap.Available(model.SourceUptime) {
		doc, err := model.DecodeUptime(snap.Payload(model.SourceUptime))
		if err != nil {
			warning := fmt.Sprintf("optional source %s unparseable; dependent features disabled", model.SourceUptime)
			summary.Warnings = append(summary.Warnings, warning)
			s.logger.Warn(ctx, "uptime payload unparseable", logger.Error(err))
		} else {
			uptimes = doc.Relays
		}
	}

	return aggregate.Build(ctx, details.Relays, uptimes, s.logger.Named("aggregate"))
}

func (s *Service) analyticsStage(ctx context.Context, agg *aggregate.Result) error {
	start := time.Now()
	defer func() { metrics.RecordStageDuration("analytics", time.Since(start).Seconds()) }()

	engine := analytics.New(
		analytics.WithWorkers(s.cfg.WorkerCount),
		analytics.WithParallelThreshold(s.cfg.AnalyticsParallelThreshold),
		analytics.WithDisableParallelism(s.cfg.DisableParallelism),
		analytics.WithEvaluator(s.evaluator),
		analytics.WithOutlierMultiple(s.cfg.OutlierStdDevMultiple),
		analytics.WithRarityThreshold(s.cfg.RarityThreshold),
		analytics.WithLogger(s.logger.Named("analytics")),
	)
	if err := engine.Precompute(ctx, agg); err != nil {
		return fmt.Errorf("analytics stage: %w", err)
	}
	return nil
}

func (s *Service) renderStage(ctx context.Context, agg *aggregate.Result, summary *RunSummary) (*render.Report, error) {
	start := time.Now()
	defer func() { metrics.RecordStageDuration("render", time.Since(start).Seconds()) }()

	jobs := buildJobs(agg, summary.Warnings)
	engine := render.NewEngine(s.renderer, s.cfg.OutputDir,
		render.WithWorkers(s.cfg.WorkerCount),
		render.WithParallelThreshold(s.cfg.RenderParallelThreshold),
		render.WithChunkCap(s.cfg.RenderChunkCap),
		render.WithDisableParallelism(s.cfg.DisableParallelism),
		render.WithLogger(s.logger.Named("render")),
	)
	report, err := engine.RenderAll(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("render stage: %w", err)
	}
	return report, nil
}

// cacheAdapter narrows *cachestore.Store to the coordinator's Cache interface.
type cacheAdapter struct {
	store *cachestore.Store
}

func (a cacheAdapter) Get(ctx context.Context, id model.SourceID) (fetch.CacheEntry, bool, error) {
	entry, ok, err := a.store.Get(ctx, id)
	if err != nil || !ok {
		return fetch.CacheEntry{}, ok, err
	}
	return fetch.CacheEntry{Payload: entry.Payload, FetchedAt: entry.FetchedAt}, true, nil
}

func (a cacheAdapter) Put(ctx context.Context, id model.SourceID, payload []byte, fetchedAt time.Time) error {
	return a.store.Put(ctx, id, payload, fetchedAt)
}

func (a cacheAdapter) Touch(ctx context.Context, id model.SourceID, fetchedAt time.Time) error {
	return a.store.Touch(ctx, id, fetchedAt)
}

// Close releases the cache handle when the service owns one.
func (s *Service) Close() error {
	if a, ok := s.cache.(cacheAdapter); ok {
		return a.store.Close()
	}
	return nil
}

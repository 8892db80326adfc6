// Package render produces one output document per render job.
//
// Jobs are grouped by output kind. Small groups render sequentially in the
// calling goroutine; large groups fan out over the streaming worker pool,
// each worker holding the same read-only renderer and data. A failed job is
// retried once in-worker and then recorded as a permanent per-job failure;
// sibling jobs are never blocked or cancelled by one failure.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/relaywatch/relaywatch/internal/dispatch"
	"github.com/relaywatch/relaywatch/pkg/logger"
	"github.com/relaywatch/relaywatch/pkg/metrics"
)

// Renderer is the external templating collaborator: named template plus
// enriched entity data in, one rendered document out. The engine is agnostic
// to the templating language behind it.
type Renderer interface {
	Render(ctx context.Context, template string, data any) ([]byte, error)
}

// Failure identifies one permanently failed job.
type Failure struct {
	Kind Kind   `yaml:"kind"`
	Key  string `yaml:"key"`
	Err  string `yaml:"error"`
}

// Report summarizes one RenderAll pass.
type Report struct {
	Persisted int
	Failures  []Failure
}

// Engine is the parallel rendering engine.
type Engine struct {
	renderer        Renderer
	outputDir       string
	workers         int
	threshold       int
	chunkCap        int
	disableParallel bool
	logger          logger.Logger
}

// NewEngine creates a rendering engine writing under outputDir.
func NewEngine(renderer Renderer, outputDir string, opts ...Option) *Engine {
	e := &Engine{
		renderer:  renderer,
		outputDir: outputDir,
		workers:   0, // resolved by dispatch to GOMAXPROCS
		threshold: defaultParallelThreshold,
		chunkCap:  defaultChunkCap,
		logger:    logger.Get().Named("render"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RenderAll renders and persists every job, grouped by kind. It returns an
// error only for non-job failures (context cancellation); per-job failures
// land in the report.
func (e *Engine) RenderAll(ctx context.Context, jobs []Job) (*Report, error) {
	groups := make(map[Kind][]Job)
	for _, job := range jobs {
		groups[job.Kind] = append(groups[job.Kind], job)
	}

	kinds := make([]Kind, 0, len(groups))
	for kind := range groups {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	report := &Report{}
	for _, kind := range kinds {
		if err := e.renderGroup(ctx, kind, groups[kind], report); err != nil {
			return report, err
		}
	}

	sort.Slice(report.Failures, func(i, j int) bool {
		if report.Failures[i].Kind != report.Failures[j].Kind {
			return report.Failures[i].Kind < report.Failures[j].Kind
		}
		return report.Failures[i].Key < report.Failures[j].Key
	})
	return report, nil
}

// renderGroup dispatches one kind's jobs, sequentially below the threshold
// and over the pool above it. Results stream back and are folded into the
// report one at a time; no ordering is guaranteed within the group.
func (e *Engine) renderGroup(ctx context.Context, kind Kind, jobs []Job, report *Report) error {
	merge := func(res Result) {
		switch res.State {
		case StatePersisted:
			report.Persisted++
			metrics.RecordRenderJob(string(res.Kind), "persisted")
		case StateFailed:
			report.Failures = append(report.Failures, Failure{
				Kind: res.Kind, Key: res.Key, Err: res.Err.Error(),
			})
			metrics.RecordRenderJob(string(res.Kind), "failed")
			e.logger.Error(ctx, "render job failed permanently",
				logger.String("kind", string(res.Kind)),
				logger.String("key", res.Key),
				logger.Int("attempts", res.Attempts),
				logger.Error(res.Err))
		}
	}

	if e.disableParallel || len(jobs) < e.threshold {
		for _, job := range jobs {
			if err := ctx.Err(); err != nil {
				return err
			}
			merge(e.renderOne(ctx, job))
		}
		return nil
	}

	chunk := dispatch.ChunkSize(len(jobs), e.resolveWorkers(), e.chunkCap)
	stats, err := dispatch.Run(ctx, jobs, e.renderOne, merge,
		dispatch.WithWorkers(e.workers),
		dispatch.WithChunkSize(chunk))
	metrics.UpdateRenderInFlight(stats.MaxInFlight)
	if err != nil {
		return fmt.Errorf("render dispatch for %s: %w", kind, err)
	}

	e.logger.Debug(ctx, "render group complete",
		logger.String("kind", string(kind)),
		logger.Int("jobs", len(jobs)),
		logger.Int("chunk_size", chunk),
		logger.Int("max_in_flight", stats.MaxInFlight))
	return nil
}

// renderOne walks one job through its state machine: Pending -> Dispatched
// -> Rendered -> Persisted, or Failed after at most one retry. A panic in
// the collaborator counts as a failed attempt.
func (e *Engine) renderOne(ctx context.Context, job Job) Result {
	res := Result{Kind: job.Kind, Key: job.Key, State: StateDispatched}

	start := time.Now()
	defer func() {
		metrics.RecordRenderLatency(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		if attempt > 1 {
			metrics.RecordRenderRetry()
		}

		payload, err := e.renderAttempt(ctx, job)
		if err != nil {
			lastErr = err
			continue
		}
		res.State = StateRendered

		path := outputPath(e.outputDir, job)
		if err := persist(path, payload); err != nil {
			lastErr = err
			continue
		}
		res.State = StatePersisted
		res.Path = path
		return res
	}

	res.State = StateFailed
	res.Err = fmt.Errorf("%w: %w", ErrJobFailed, lastErr)
	return res
}

// renderAttempt calls the collaborator with panic containment.
func (e *Engine) renderAttempt(ctx context.Context, job Job) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("renderer panic: %v", r)
		}
	}()
	return e.renderer.Render(ctx, job.Template, job.Data)
}

// persist writes the document via a temp file so readers never observe a
// partial document.
func persist(path string, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publishing document: %w", err)
	}
	return nil
}

func (e *Engine) resolveWorkers() int {
	if e.workers > 0 {
		return e.workers
	}
	return runtime.GOMAXPROCS(0)
}

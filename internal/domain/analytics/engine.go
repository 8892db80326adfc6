// Package analytics precomputes per-operator statistics exactly once per run.
//
// Every operator's result depends only on its own member nodes and the
// immutable shared context, never on another operator's result. That
// referential transparency licenses parallel dispatch with zero cross-worker
// coordination: workers only read the shared snapshot and return a value,
// and the orchestrating goroutine merges results one at a time on arrival.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/relaywatch/relaywatch/internal/dispatch"
	"github.com/relaywatch/relaywatch/internal/domain/aggregate"
	"github.com/relaywatch/relaywatch/internal/domain/model"
	"github.com/relaywatch/relaywatch/pkg/logger"
	"github.com/relaywatch/relaywatch/pkg/metrics"
)

// Engine owns the analytics precomputation phase.
type Engine struct {
	workers         int
	threshold       int
	disableParallel bool
	evaluator       Evaluator
	outlierMultiple float64
	rarityThreshold float64
	logger          logger.Logger
}

// New creates an engine with default configuration.
func New(opts ...Option) *Engine {
	e := &Engine{
		workers:         0, // resolved by dispatch to GOMAXPROCS
		threshold:       defaultParallelThreshold,
		outlierMultiple: defaultOutlierMultiple,
		rarityThreshold: defaultRarityThreshold,
		logger:          logger.Get().Named("analytics"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// result is one operator's computed analytics streaming back to the merge
// loop.
type result struct {
	op        *model.Operator
	analytics *model.Analytics
	err       error
}

// strategy is the dispatch selection made at phase start: both paths call
// the identical per-operator function, so their merged output is
// bit-identical.
type strategy interface {
	run(ctx context.Context, ops []*model.Operator, work func(context.Context, *model.Operator) result, merge func(result)) error
}

type sequentialStrategy struct{}

func (sequentialStrategy) run(ctx context.Context, ops []*model.Operator, work func(context.Context, *model.Operator) result, merge func(result)) error {
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		merge(work(ctx, op))
	}
	return nil
}

type parallelStrategy struct {
	workers int
}

func (s parallelStrategy) run(ctx context.Context, ops []*model.Operator, work func(context.Context, *model.Operator) result, merge func(result)) error {
	stats, err := dispatch.Run(ctx, ops, work, merge, dispatch.WithWorkers(s.workers))
	metrics.UpdateAnalyticsInFlight(stats.MaxInFlight)
	return err
}

// Precompute fills every operator's analytics fields and freezes them. Only
// corrupted shared state aborts; per-operator failures degrade to default
// fields.
func (e *Engine) Precompute(ctx context.Context, agg *aggregate.Result) error {
	shared, err := BuildShared(ctx, agg, e.evaluator, e.outlierMultiple, e.rarityThreshold, e.logger)
	if err != nil {
		return fmt.Errorf("building shared context: %w", err)
	}

	ops := agg.SortedOperators()

	var strat strategy = sequentialStrategy{}
	if !e.disableParallel && len(ops) >= e.threshold {
		strat = parallelStrategy{workers: e.workers}
	}

	work := func(ctx context.Context, op *model.Operator) result {
		return e.computeOne(ctx, shared, op)
	}

	merge := func(res result) {
		if res.err != nil {
			metrics.RecordAnalyticsError()
			e.logger.Error(ctx, "operator analytics failed; recording defaults",
				logger.String("contact", res.op.ContactID), logger.Error(res.err))
			res.op.Analytics = defaultAnalytics()
			return
		}
		metrics.RecordOperatorComputed()
		res.op.Analytics = res.analytics
	}

	if err := strat.run(ctx, ops, work, merge); err != nil {
		return fmt.Errorf("analytics dispatch: %w", err)
	}

	// Global ordering passes run in the orchestrator after the merge:
	// diversity ranks need every operator's diversity score in place.
	assignRanks(ops)
	fillRankLabels(ops)

	e.logger.Info(ctx, "analytics precomputation complete",
		logger.Int("operators", len(ops)))
	return nil
}

// computeOne derives the full analytics record for one operator. A panic in
// the computation is contained here and surfaces as the result error.
func (e *Engine) computeOne(_ context.Context, shared *Shared, op *model.Operator) (res result) {
	res.op = op
	defer func() {
		if r := recover(); r != nil {
			res.analytics = nil
			res.err = fmt.Errorf("%w: %v", ErrComputeFailed, r)
		}
	}()

	start := time.Now()
	defer func() {
		metrics.RecordAnalyticsLatency(time.Since(start).Seconds())
	}()

	reliability := computeReliability(shared, op)
	rareCountries, diversity := computeRarity(shared, op)

	a := &model.Analytics{
		Ranks:          make(map[string]int, len(model.Metrics())),
		Reliability:    reliability,
		RareCountries:  rareCountries,
		DiversityScore: diversity,
	}

	for _, id := range op.NodeIDs {
		verdict, ok := shared.Eligibility[id]
		if !ok {
			continue
		}
		if verdict.Eligible {
			a.EligibleMembers++
		} else {
			a.IneligibleMembers++
		}
	}

	a.Display = buildProjection(op, reliability)
	res.analytics = a
	return res
}

// defaultAnalytics is the null record stored for operators whose computation
// failed: fields present, values empty.
func defaultAnalytics() *model.Analytics {
	return &model.Analytics{
		Ranks:       make(map[string]int),
		Reliability: make(map[model.UptimeWindow]model.ReliabilityStat),
		Display: model.Projection{
			Uptime:     make(map[model.UptimeWindow]string),
			RankLabels: make(map[string]string),
		},
	}
}

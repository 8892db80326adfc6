package analytics

import (
	"context"
	"sort"

	"github.com/relaywatch/relaywatch/internal/domain/aggregate"
	"github.com/relaywatch/relaywatch/internal/domain/model"
	"github.com/relaywatch/relaywatch/pkg/logger"
)

// Evaluator is the external consensus evaluator: per node, a structured
// comparison against externally defined eligibility thresholds. Analytics
// consumes its verdicts as an input feature and never computes them.
type Evaluator interface {
	Evaluate(ctx context.Context, node *model.Node) (model.Eligibility, error)
}

// Shared is the immutable context built once by the orchestrator and handed
// to every worker at spawn. Workers treat it as read-only for their entire
// lifetime; every per-operator computation depends only on the operator's
// own members plus this snapshot, never on another operator's result.
type Shared struct {
	// Nodes is the global node store, keyed by fingerprint.
	Nodes map[string]*model.Node

	// ByCountry backs per-country membership lookups.
	ByCountry *aggregate.Index

	// CountryRelays counts network-wide relays per country code.
	CountryRelays map[string]int

	// TotalRelays is the network-wide relay count.
	TotalRelays int

	// OperatorMeans holds each operator's per-window uptime mean, built once
	// in the orchestrator so both dispatch paths read identical inputs.
	OperatorMeans map[string]map[model.UptimeWindow]float64

	// SortedMeans holds, per window, every operator mean in ascending order.
	// Percentile ranks are binary-search lookups against these arrays.
	SortedMeans map[model.UptimeWindow][]float64

	// Eligibility maps fingerprints to consensus-evaluator verdicts; empty
	// when no evaluator is wired for the run.
	Eligibility map[string]model.Eligibility

	// Tunables, frozen at build time.
	OutlierMultiple float64
	RarityThreshold float64
}

// BuildShared assembles the immutable worker context from the entity graph.
// Per-node evaluator errors are contained: the node simply carries no
// eligibility verdict.
func BuildShared(ctx context.Context, agg *aggregate.Result, evaluator Evaluator, outlierMultiple, rarityThreshold float64, log logger.Logger) (*Shared, error) {
	if agg == nil || agg.Nodes == nil {
		return nil, ErrCorruptState
	}

	s := &Shared{
		Nodes:           agg.Nodes,
		ByCountry:       agg.ByCountry,
		CountryRelays:   make(map[string]int),
		TotalRelays:     len(agg.Nodes),
		OperatorMeans:   make(map[string]map[model.UptimeWindow]float64, len(agg.Operators)),
		SortedMeans:     make(map[model.UptimeWindow][]float64),
		Eligibility:     make(map[string]model.Eligibility),
		OutlierMultiple: outlierMultiple,
		RarityThreshold: rarityThreshold,
	}

	for _, country := range agg.ByCountry.Keys() {
		s.CountryRelays[country] = agg.ByCountry.Count(country)
	}

	for contact, op := range agg.Operators {
		means := operatorWindowMeans(agg.Nodes, op)
		s.OperatorMeans[contact] = means
		for window, mean := range means {
			s.SortedMeans[window] = append(s.SortedMeans[window], mean)
		}
	}
	for window := range s.SortedMeans {
		sort.Float64s(s.SortedMeans[window])
	}

	if evaluator != nil {
		for fp, node := range agg.Nodes {
			verdict, err := evaluator.Evaluate(ctx, node)
			if err != nil {
				log.Warn(ctx, "eligibility evaluation failed",
					logger.String("fingerprint", fp), logger.Error(err))
				continue
			}
			s.Eligibility[fp] = verdict
		}
	}

	return s, nil
}

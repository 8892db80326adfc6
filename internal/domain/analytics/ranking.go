package analytics

import (
	"sort"

	"github.com/relaywatch/relaywatch/internal/domain/model"
)

// metricValue extracts one leaderboard metric from an operator. Diversity
// reads the precomputed analytics field, so ranking runs after the
// per-operator phase has merged.
func metricValue(op *model.Operator, metric string) float64 {
	switch metric {
	case model.MetricBandwidth:
		return float64(op.TotalObservedBytes)
	case model.MetricWeight:
		return op.TotalConsensusWeight
	case model.MetricMembers:
		return float64(op.MemberCount())
	case model.MetricDiversity:
		if op.Analytics == nil {
			return 0
		}
		return float64(op.Analytics.DiversityScore)
	default:
		return 0
	}
}

// assignRanks fills every operator's 1-based position per leaderboard
// metric: descending by value, ties broken by contact id ascending so
// ordering is reproducible run to run.
func assignRanks(ops []*model.Operator) {
	ranked := make([]*model.Operator, len(ops))
	copy(ranked, ops)

	for _, metric := range model.Metrics() {
		sort.SliceStable(ranked, func(i, j int) bool {
			vi, vj := metricValue(ranked[i], metric), metricValue(ranked[j], metric)
			if vi != vj {
				return vi > vj
			}
			return ranked[i].ContactID < ranked[j].ContactID
		})
		for pos, op := range ranked {
			if op.Analytics == nil {
				continue
			}
			if op.Analytics.Ranks == nil {
				op.Analytics.Ranks = make(map[string]int, len(model.Metrics()))
			}
			op.Analytics.Ranks[metric] = pos + 1
		}
	}
}

// Leaderboard returns operators ordered for one metric: descending value,
// contact-id tie-break, truncated to limit (0 means all).
func Leaderboard(ops []*model.Operator, metric string, limit int) []*model.Operator {
	ranked := make([]*model.Operator, len(ops))
	copy(ranked, ops)
	sort.SliceStable(ranked, func(i, j int) bool {
		vi, vj := metricValue(ranked[i], metric), metricValue(ranked[j], metric)
		if vi != vj {
			return vi > vj
		}
		return ranked[i].ContactID < ranked[j].ContactID
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

package analytics

import (
	"math"
	"sort"

	"github.com/relaywatch/relaywatch/internal/domain/model"
)

// nodeWindowMean averages one node's normalized uptime samples for a window.
// The second return is false when the node has no samples there.
func nodeWindowMean(node *model.Node, window model.UptimeWindow) (float64, bool) {
	samples := node.Uptime[window]
	if len(samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples)), true
}

// operatorWindowMeans computes an operator's per-window uptime mean over its
// members. Windows with no member data are absent from the result.
func operatorWindowMeans(nodes map[string]*model.Node, op *model.Operator) map[model.UptimeWindow]float64 {
	means := make(map[model.UptimeWindow]float64)
	for _, window := range model.Windows() {
		var (
			sum   float64
			count int
		)
		for _, id := range op.NodeIDs {
			node, ok := nodes[id]
			if !ok {
				continue
			}
			if m, ok := nodeWindowMean(node, window); ok {
				sum += m
				count++
			}
		}
		if count > 0 {
			means[window] = sum / float64(count)
		}
	}
	return means
}

// percentileRank returns the network-wide percentile (0..100) of mean within
// the pre-sorted array of all operators' means for the same window: the
// share of operators whose mean does not exceed it. O(log n) per lookup.
func percentileRank(sortedMeans []float64, mean float64) float64 {
	if len(sortedMeans) == 0 {
		return 0
	}
	// First index strictly greater than mean == count of means <= mean.
	atOrBelow := sort.Search(len(sortedMeans), func(i int) bool {
		return sortedMeans[i] > mean
	})
	return float64(atOrBelow) / float64(len(sortedMeans)) * 100
}

// computeReliability derives every per-window reliability statistic for one
// operator from the shared immutable context.
func computeReliability(shared *Shared, op *model.Operator) map[model.UptimeWindow]model.ReliabilityStat {
	stats := make(map[model.UptimeWindow]model.ReliabilityStat)
	means := shared.OperatorMeans[op.ContactID]

	for window, opMean := range means {
		stat := model.ReliabilityStat{
			Mean:       opMean,
			Percentile: percentileRank(shared.SortedMeans[window], opMean),
		}
		stat.Outliers = windowOutliers(shared, op, window, opMean)
		stats[window] = stat
	}
	return stats
}

// windowOutliers flags member nodes whose window mean deviates from the
// operator's mean by more than the configured standard-deviation multiple.
// Needs at least two members with data; a zero deviation flags nothing.
func windowOutliers(shared *Shared, op *model.Operator, window model.UptimeWindow, opMean float64) []string {
	type memberMean struct {
		id   string
		mean float64
	}

	members := make([]memberMean, 0, len(op.NodeIDs))
	for _, id := range op.NodeIDs {
		node, ok := shared.Nodes[id]
		if !ok {
			continue
		}
		if m, ok := nodeWindowMean(node, window); ok {
			members = append(members, memberMean{id: id, mean: m})
		}
	}
	if len(members) < 2 {
		return nil
	}

	var variance float64
	for _, m := range members {
		d := m.mean - opMean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(members)))
	if stddev == 0 {
		return nil
	}

	var outliers []string
	limit := shared.OutlierMultiple * stddev
	for _, m := range members {
		if math.Abs(m.mean-opMean) > limit {
			outliers = append(outliers, m.id)
		}
	}
	return outliers
}

package analytics

import (
	"fmt"

	"github.com/relaywatch/relaywatch/internal/domain/model"
)

// Display formatting lives here so templates never carry numeric rules.

const dateLayout = "2006-01-02"

var byteUnits = []string{"B/s", "KiB/s", "MiB/s", "GiB/s", "TiB/s"}

// formatBandwidth renders bytes per second with a binary unit.
func formatBandwidth(bytesPerSec int64) string {
	v := float64(bytesPerSec)
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", v, byteUnits[unit])
}

// formatWeight renders a consensus weight fraction as a percentage.
func formatWeight(fraction float64) string {
	return fmt.Sprintf("%.2f%%", fraction*100)
}

// buildProjection fills the display-ready fields derived from the operator's
// aggregate data and freshly computed reliability. Rank labels are filled
// later, after the global ranking pass.
func buildProjection(op *model.Operator, reliability map[model.UptimeWindow]model.ReliabilityStat) model.Projection {
	p := model.Projection{
		Bandwidth: formatBandwidth(op.TotalObservedBytes),
		Weight:    formatWeight(op.TotalConsensusWeight),
		Uptime:    make(map[model.UptimeWindow]string, len(reliability)),
	}
	if !op.FirstSeen.IsZero() {
		p.FirstSeen = op.FirstSeen.Format(dateLayout)
	}
	for window, stat := range reliability {
		p.Uptime[window] = fmt.Sprintf("%.2f%% (p%.0f)", stat.Mean, stat.Percentile)
	}
	return p
}

// fillRankLabels writes "#N" labels once ranks exist.
func fillRankLabels(ops []*model.Operator) {
	for _, op := range ops {
		if op.Analytics == nil {
			continue
		}
		labels := make(map[string]string, len(op.Analytics.Ranks))
		for metric, rank := range op.Analytics.Ranks {
			labels[metric] = fmt.Sprintf("#%d", rank)
		}
		op.Analytics.Display.RankLabels = labels
	}
}

package model

import "time"

// UnknownContact is the grouping bucket for nodes that publish no contact
// identity. Every node belongs to exactly one operator grouping per run.
const UnknownContact = "unknown"

// Operator aggregates the nodes sharing one contact identity. The grouping
// relation is owned here; the nodes themselves live in the global node store.
type Operator struct {
	ContactID string

	// NodeIDs lists member fingerprints in aggregation-pass order.
	NodeIDs []string

	TotalObservedBytes   int64
	TotalConsensusWeight float64
	FlagCounts           map[Flag]int
	Countries            []string // distinct, sorted
	Providers            []string // distinct, sorted
	FirstSeen            time.Time

	// Analytics is nil until the precomputation phase fills it; it is frozen
	// afterward and never recomputed within a run.
	Analytics *Analytics
}

// MemberCount returns the number of nodes in the grouping.
func (o *Operator) MemberCount() int { return len(o.NodeIDs) }

// Analytics holds everything the precomputation engine derives for one
// operator. Fields are purely additive: nothing here feeds back into the
// entity graph.
type Analytics struct {
	// Ranks maps a leaderboard metric name to the operator's 1-based position.
	Ranks map[string]int

	// Reliability holds per-window statistics over member uptime histories.
	Reliability map[UptimeWindow]ReliabilityStat

	// RareCountries lists the operator's countries whose composite rarity
	// score crossed the rarity threshold, sorted.
	RareCountries []string

	// DiversityScore is the count of distinct rare countries.
	DiversityScore int

	// EligibleMembers / IneligibleMembers count consensus-evaluator verdicts;
	// both zero when the evaluator is not wired for the run.
	EligibleMembers   int
	IneligibleMembers int

	// Display carries display-ready projections of the above.
	Display Projection
}

// ReliabilityStat summarizes one uptime window for an operator.
type ReliabilityStat struct {
	// Mean is the average of member per-window uptime means, in percent.
	Mean float64

	// Percentile is the operator's network-wide percentile rank (0..100)
	// of Mean within the same window.
	Percentile float64

	// Outliers lists member fingerprints whose window mean deviates from the
	// operator mean by more than the configured standard-deviation multiple.
	Outliers []string
}

// Projection carries pre-formatted strings so templates stay free of
// numeric formatting rules.
type Projection struct {
	Bandwidth  string // e.g. "84.21 MiB/s"
	Weight     string // e.g. "1.73%"
	FirstSeen  string // e.g. "2019-03-04"
	Uptime     map[UptimeWindow]string
	RankLabels map[string]string // metric -> "#12"
}

// Leaderboard metric names. Ordering within a metric is descending with a
// stable contact-id tie-break, so ranks are reproducible run to run.
const (
	MetricBandwidth = "bandwidth"
	MetricWeight    = "consensus_weight"
	MetricMembers   = "member_count"
	MetricDiversity = "diversity"
)

// Metrics lists every leaderboard metric in canonical order.
func Metrics() []string {
	return []string{MetricBandwidth, MetricWeight, MetricMembers, MetricDiversity}
}

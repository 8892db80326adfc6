// Package model contains domain entities passed between pipeline stages.
package model

import "time"

// SourceID identifies one telemetry feed.
type SourceID string

// Well-known telemetry feeds. Details is the only feed the entity graph
// cannot be built without; the rest enrich it.
const (
	SourceDetails   SourceID = "details"
	SourceUptime    SourceID = "uptime"
	SourceBandwidth SourceID = "bandwidth"
)

// Flag is a role flag assigned to a node by the network's directory.
type Flag string

// Role flags observed in the wild.
const (
	FlagGuard   Flag = "Guard"
	FlagExit    Flag = "Exit"
	FlagFast    Flag = "Fast"
	FlagStable  Flag = "Stable"
	FlagRunning Flag = "Running"
)

// UptimeWindow names one sampled uptime period.
type UptimeWindow string

// Uptime windows published by the telemetry feeds, shortest first.
const (
	WindowMonth     UptimeWindow = "1_month"
	WindowHalfYear  UptimeWindow = "6_months"
	WindowYear      UptimeWindow = "1_year"
	WindowFiveYears UptimeWindow = "5_years"
)

// Windows lists every uptime window in canonical order.
func Windows() []UptimeWindow {
	return []UptimeWindow{WindowMonth, WindowHalfYear, WindowYear, WindowFiveYears}
}

// uptimeSampleScale is the integer encoding ceiling used by the uptime feed;
// a raw sample of 999 means 100% uptime for that interval.
const uptimeSampleScale = 999

// NodeRecord is one raw, already-deserialized record from the details feed.
// Field presence follows the feed: anything the relay did not publish is the
// zero value and validated during aggregation.
type NodeRecord struct {
	Fingerprint     string   `json:"fingerprint"`
	Nickname        string   `json:"nickname"`
	ObservedBytes   int64    `json:"observed_bandwidth"`
	ConsensusWeight float64  `json:"consensus_weight_fraction"`
	Flags           []string `json:"flags"`
	CountryCode     string   `json:"country"`
	ProviderID      string   `json:"as"`
	ContactID       string   `json:"contact"`
	Platform        string   `json:"platform"`
	FirstSeen       string   `json:"first_seen"`
	LastSeen        string   `json:"last_seen"`
	Addresses       []string `json:"or_addresses"`
	Running         bool     `json:"running"`
}

// UptimeRecord is one raw record from the uptime feed: integer-coded samples
// (0..999) per window for one node.
type UptimeRecord struct {
	Fingerprint string                 `json:"fingerprint"`
	Windows     map[UptimeWindow][]int `json:"uptime"`
}

// Node is the canonical entity built once per run by the aggregation engine.
// All numeric encodings are normalized; uptime samples are percentages.
type Node struct {
	Fingerprint     string
	Nickname        string
	ObservedBytes   int64
	ConsensusWeight float64
	Flags           []Flag
	CountryCode     string
	ProviderID      string
	ContactID       string
	Platform        string
	FirstSeen       time.Time
	LastSeen        time.Time
	Addresses       []string
	Running         bool

	// Uptime holds normalized per-window sample histories in percent (0..100).
	// Missing when the uptime feed was unavailable for the run.
	Uptime map[UptimeWindow][]float64
}

// HasFlag reports whether the node carries the given role flag.
func (n *Node) HasFlag(f Flag) bool {
	for _, have := range n.Flags {
		if have == f {
			return true
		}
	}
	return false
}

// NormalizeUptimeSample scales one integer-coded sample to a percentage.
// Out-of-range samples are clamped rather than rejected; the feed has been
// observed to emit 1000 for freshly bootstrapped relays.
func NormalizeUptimeSample(raw int) float64 {
	if raw <= 0 {
		return 0
	}
	if raw >= uptimeSampleScale {
		return 100
	}
	return float64(raw) / uptimeSampleScale * 100
}

// Eligibility is the consensus evaluator's verdict for one node, consumed by
// analytics as an input feature only.
type Eligibility struct {
	Fingerprint string
	Eligible    bool
	Shortfalls  []string
}

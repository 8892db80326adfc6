package markdown

// View models consumed by the embedded templates. Slices, not maps, so
// iteration order is deterministic and output stays byte-identical across
// runs. No view field carries a generation timestamp.

// RankView is one leaderboard position label.
type RankView struct {
	Metric string
	Label  string
}

// ReliabilityView is one uptime window line.
type ReliabilityView struct {
	Window   string
	Uptime   string
	Outliers []string
}

// MemberView is one node row on an operator page.
type MemberView struct {
	Fingerprint string
	Nickname    string
	Country     string
	Bandwidth   string
	Running     bool
}

// OperatorView backs the operator page template.
type OperatorView struct {
	ContactID         string
	MemberCount       int
	Bandwidth         string
	Weight            string
	FirstSeen         string
	DiversityScore    int
	RareCountries     []string
	EligibleMembers   int
	IneligibleMembers int
	Ranks             []RankView
	Reliability       []ReliabilityView
	Members           []MemberView
}

// GroupView backs the country and provider page templates.
type GroupView struct {
	Key         string
	MemberCount int
	Members     []MemberView
}

// LeaderboardRowView is one row of a leaderboard page.
type LeaderboardRowView struct {
	Rank      int
	ContactID string
	Value     string
}

// LeaderboardView backs a leaderboard page for one metric.
type LeaderboardView struct {
	Metric string
	Rows   []LeaderboardRowView
}

// SummaryView backs the network summary page.
type SummaryView struct {
	Nodes     int
	Operators int
	Countries int
	Providers int
	Excluded  int
	Warnings  []string
}

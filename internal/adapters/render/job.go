package render

import (
	"path/filepath"
	"strings"
)

// Kind is an output document kind. Kinds write disjoint output paths, so
// cross-kind ordering never matters.
type Kind string

// Output kinds produced by one run.
const (
	KindOperator    Kind = "operator"
	KindCountry     Kind = "country"
	KindProvider    Kind = "provider"
	KindLeaderboard Kind = "leaderboard"
	KindSummary     Kind = "summary"
)

// Job is one unit of output-document generation: stateless and idempotent,
// identical inputs produce identical output.
type Job struct {
	Kind     Kind
	Key      string
	Template string
	Data     any
}

// State tracks a job through its lifecycle.
type State string

// Job states. Persisted and Failed are terminal.
const (
	StatePending    State = "pending"
	StateDispatched State = "dispatched"
	StateRendered   State = "rendered"
	StatePersisted  State = "persisted"
	StateFailed     State = "failed"
)

// Result is one job's terminal record.
type Result struct {
	Kind     Kind
	Key      string
	State    State
	Path     string
	Attempts int
	Err      error
}

// outputPath derives the deterministic document path for a job.
func outputPath(root string, job Job) string {
	return filepath.Join(root, string(job.Kind), sanitizeKey(job.Key)+".html")
}

// sanitizeKey keeps keys filesystem-safe without losing determinism.
func sanitizeKey(key string) string {
	if key == "" {
		return "index"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_", "..", "_")
	return replacer.Replace(key)
}

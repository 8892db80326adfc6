package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relaywatch/relaywatch/internal/adapters/render"
)

// RunSummary reports what one run produced and what degraded, written even
// on overall success.
type RunSummary struct {
	RunID              string           `yaml:"run_id"`
	StartedAt          time.Time        `yaml:"started_at"`
	Duration           time.Duration    `yaml:"duration"`
	Nodes              int              `yaml:"nodes"`
	Operators          int              `yaml:"operators"`
	ExcludedNodes      int              `yaml:"excluded_nodes"`
	DocumentsPersisted int              `yaml:"documents_persisted"`
	Warnings           []string         `yaml:"warnings,omitempty"`
	FailedJobs         []render.Failure `yaml:"failed_jobs,omitempty"`
}

// writeSummary persists the run summary under the output root.
func writeSummary(outputDir string, summary *RunSummary) error {
	payload, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}
	dir := filepath.Join(outputDir, "status")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating status dir: %w", err)
	}
	path := filepath.Join(dir, "run-summary.yaml")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("writing run summary: %w", err)
	}
	return nil
}

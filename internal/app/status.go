package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relaywatch/relaywatch/internal/adapters/fetch"
	"github.com/relaywatch/relaywatch/internal/domain/model"
)

// statusRecorder persists the per-source worker status record after every
// fetch, for operators watching the pipeline from outside.
type statusRecorder struct {
	outputDir string
	clock     func() time.Time
}

func newStatusRecorder(outputDir string) *statusRecorder {
	return &statusRecorder{outputDir: outputDir, clock: time.Now}
}

// sourceStatus is one row of the persisted status record.
type sourceStatus struct {
	Source    string    `yaml:"source"`
	Status    string    `yaml:"status"`
	CheckedAt time.Time `yaml:"checked_at"`
}

// RecordSourceStatuses implements fetch.StatusRecorder.
func (r *statusRecorder) RecordSourceStatuses(_ context.Context, statuses map[model.SourceID]fetch.Status) error {
	rows := make([]sourceStatus, 0, len(statuses))
	now := r.clock().UTC()
	for id, status := range statuses {
		rows = append(rows, sourceStatus{Source: string(id), Status: string(status), CheckedAt: now})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Source < rows[j].Source })

	payload, err := yaml.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshaling source statuses: %w", err)
	}
	dir := filepath.Join(r.outputDir, "status")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating status dir: %w", err)
	}
	path := filepath.Join(dir, "sources.yaml")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("writing source statuses: %w", err)
	}
	return nil
}

package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fiscalflow/fiscalflow/internal/domain"
)

// BatchSummary is the outcome of one ingestion run, mirrored into a JSON
// artifact in the export folder.
type BatchSummary struct {
	BatchID         string             `json:"batch_id"`
	Name            string             `json:"name"`
	Fingerprint     string             `json:"fingerprint"`
	Status          domain.BatchStatus `json:"status"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     time.Time          `json:"completed_at"`
	DurationSeconds float64            `json:"duration_seconds"`

	FilesDiscovered int `json:"files_discovered"`
	FilesParsed     int `json:"files_parsed"`
	FilesPartial    int `json:"files_partial"`
	FilesFailed     int `json:"files_failed"`
	FilesSkipped    int `json:"files_skipped"`
	RecordsStaged   int `json:"records_staged"`

	AssetDays         int `json:"asset_days"`
	ReconcileVerdicts int `json:"reconcile_verdicts"`
	CrossVerdicts     int `json:"cross_verdicts"`
	StreaksResolved   int `json:"streaks_resolved"`
	Escalations       int `json:"escalations"`

	SkippedInputs []string           `json:"skipped_inputs,omitempty"`
	Failures      []FileFailure      `json:"failures,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`

	ArtifactPath string `json:"-"`
}

// FileFailure names one file the batch could not ingest.
type FileFailure struct {
	Filename string   `json:"filename"`
	Errors   []string `json:"errors,omitempty"`
}

// writeSummary writes the batch artifact and returns its path.
func writeSummary(dir string, s *BatchSummary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export folder %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode batch summary: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("batch_%s.json", s.BatchID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write batch summary %s: %w", path, err)
	}
	return path, nil
}

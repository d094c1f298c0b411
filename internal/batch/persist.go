package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// resultsFile is the on-disk shape of a saved outcome.
type resultsFile struct {
	Outcome
	Timestamp string `json:"timestamp"`
}

// SaveResults writes the outcome to dir as batch_results_<unix-ts>.json,
// creating dir as needed.
func SaveResults(dir string, outcome Outcome, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results directory: %w", err)
	}

	payload := resultsFile{Outcome: outcome, Timestamp: now.Format(time.RFC3339)}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("batch_results_%d.json", now.Unix()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write results file: %w", err)
	}
	return path, nil
}

// LoadResults reads a previously saved results file.
func LoadResults(path string) (Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("read results file: %w", err)
	}
	var payload resultsFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return Outcome{}, fmt.Errorf("decode results file: %w", err)
	}
	return payload.Outcome, nil
}

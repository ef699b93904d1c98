package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	historyFile  = "run_history.json"
	historyLimit = 100

	StatusSuccess = "success"
	StatusError   = "error"
)

// RunRecord summarizes one fetch or pipeline run.
type RunRecord struct {
	ID              string         `json:"id"`
	Command         string         `json:"command"`
	Status          string         `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	Metrics         map[string]int `json:"metrics,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// NewRunRecord fills in the id, status and duration of a finished run.
func NewRunRecord(command string, started, finished time.Time, metrics map[string]int, runErr error) RunRecord {
	rec := RunRecord{
		ID:              started.UTC().Format("20060102_150405") + "_" + command,
		Command:         command,
		Status:          StatusSuccess,
		StartedAt:       started,
		FinishedAt:      finished,
		DurationSeconds: float64(finished.Sub(started).Milliseconds()) / 1000,
		Metrics:         metrics,
	}
	if runErr != nil {
		rec.Status = StatusError
		rec.Error = runErr.Error()
	}
	return rec
}

// History is the bounded run log kept in <dir>/logs/run_history.json.
type History struct {
	mu   sync.Mutex
	path string
}

func NewHistory(dir string) *History {
	return &History{path: filepath.Join(dir, "logs", historyFile)}
}

// Append adds rec and drops the oldest records beyond the limit.
func (h *History) Append(rec RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	records, err := h.load()
	if err != nil {
		// a corrupt history is replaced rather than blocking new runs
		records = nil
	}
	records = append(records, rec)
	if len(records) > historyLimit {
		records = records[len(records)-historyLimit:]
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	return writeAtomic(h.path, data)
}

// Load returns the records oldest first.
func (h *History) Load() ([]RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load()
}

func (h *History) load() ([]RunRecord, error) {
	data, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var records []RunRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.path, err)
	}
	return records, nil
}

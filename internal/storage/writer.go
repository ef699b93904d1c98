// Package storage persists pipeline reports and run history under the
// working directory, and optionally mirrors snapshots to object storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/qepting91/reddit-top/internal/domain"
)

const (
	RawFile    = "raw_posts.json"
	TopFile    = "top_posts.json"
	RecentFile = "recent_posts.json"
	ReportFile = "report.json"
)

// ErrNoReport is returned by LoadReport before the first run.
var ErrNoReport = errors.New("no report written yet")

// Sink receives a copy of every snapshot file.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
}

// WriterService implements the Monitor Pattern: one goroutine owns the
// snapshot files and writes the reports it receives in order.
type WriterService struct {
	Dir    string
	Sink   Sink
	Logger *slog.Logger

	mu sync.Mutex
}

func (w *WriterService) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

// Start writes every report from input until the channel is closed.
func (w *WriterService) Start(wg *sync.WaitGroup, input <-chan domain.Report) {
	defer wg.Done()

	for report := range input {
		if err := w.Write(context.Background(), report); err != nil {
			w.logger().Error("Snapshot write failed", "dir", w.Dir, "err", err)
		}
	}
}

// Write stores report as the four snapshot files. Each file is replaced
// atomically, so readers never observe a half-written snapshot.
func (w *WriterService) Write(ctx context.Context, report domain.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}

	raw := make(map[string][]domain.Post, len(report.Results))
	top := make(map[string][]domain.ScoredPost, len(report.Results))
	recent := make(map[string][]domain.ScoredPost, len(report.Results))
	for _, res := range report.Results {
		raw[res.Community] = res.Raw
		top[res.Community] = res.Ranked
		recent[res.Community] = res.Recent
	}

	files := []struct {
		name string
		v    any
	}{
		{RawFile, raw},
		{TopFile, top},
		{RecentFile, recent},
		{ReportFile, report},
	}
	for _, f := range files {
		data, err := json.MarshalIndent(f.v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.name, err)
		}
		if err := writeAtomic(filepath.Join(w.Dir, f.name), data); err != nil {
			return err
		}
		if w.Sink != nil {
			if err := w.Sink.Put(ctx, f.name, data); err != nil {
				// local snapshot is authoritative
				w.logger().Warn("Snapshot upload failed", "file", f.name, "err", err)
			}
		}
	}

	raws, windowed, ranked := report.Totals()
	w.logger().Info("Snapshot written", "dir", w.Dir, "raw", raws, "windowed", windowed, "ranked", ranked)
	return nil
}

// Queue hands reports to a WriterService goroutine instead of writing them
// on the caller's goroutine.
type Queue chan<- domain.Report

func (q Queue) Write(ctx context.Context, report domain.Report) error {
	select {
	case q <- report:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadReport reads the last report written to dir.
func LoadReport(dir string) (domain.Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if errors.Is(err, os.ErrNotExist) {
		return domain.Report{}, ErrNoReport
	}
	if err != nil {
		return domain.Report{}, err
	}
	var report domain.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.Report{}, fmt.Errorf("decode %s: %w", ReportFile, err)
	}
	return report, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

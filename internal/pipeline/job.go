package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/qepting91/reddit-top/internal/domain"
	"github.com/qepting91/reddit-top/internal/storage"
)

// ReportWriter persists a finished report.
type ReportWriter interface {
	Write(ctx context.Context, report domain.Report) error
}

// Job runs the pipeline and records the outcome: snapshots for a finished
// run, a history entry for every attempt except a rejected overlap.
type Job struct {
	Runner  *Runner
	Writer  ReportWriter
	History *storage.History
	Logger  *slog.Logger

	// OnFinish, when set, receives "success" or "error" after each run.
	OnFinish func(status string)
}

// Execute runs once on behalf of command ("fetch", "schedule", "http").
func (j *Job) Execute(ctx context.Context, command string) (domain.Report, error) {
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	started := time.Now()
	report, err := j.Runner.Run(ctx)
	if errors.Is(err, ErrRunInProgress) {
		return report, err
	}
	if err == nil && j.Writer != nil {
		err = j.Writer.Write(ctx, report)
	}

	status := storage.StatusSuccess
	if err != nil {
		status = storage.StatusError
	}
	if j.OnFinish != nil {
		j.OnFinish(status)
	}

	if j.History != nil {
		raw, windowed, ranked := report.Totals()
		failed := 0
		for _, res := range report.Results {
			if res.ErrorKind != "" {
				failed++
			}
		}
		rec := storage.NewRunRecord(command, started, time.Now(), map[string]int{
			"communities": len(report.Results),
			"failed":      failed,
			"raw":         raw,
			"windowed":    windowed,
			"ranked":      ranked,
		}, err)
		if herr := j.History.Append(rec); herr != nil {
			logger.Warn("Run history not saved", "err", herr)
		}
	}
	return report, err
}

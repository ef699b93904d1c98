// Package pipeline fetches, filters and ranks every configured community
// and assembles the results into one Report.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/qepting91/reddit-top/internal/collector"
	"github.com/qepting91/reddit-top/internal/domain"
	"github.com/qepting91/reddit-top/internal/ranking"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress rejects a run started while another one is active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

type Options struct {
	Limit       int
	TopN        int
	WindowDays  int
	Weights     domain.Weights
	Concurrency int
}

// Lister supplies the communities to process at the start of a run.
type Lister interface {
	List() []string
}

type Runner struct {
	fetcher     *collector.Fetcher
	communities Lister
	opts        Options
	now         func() time.Time
	running     atomic.Bool
	logger      *slog.Logger

	// OnResult, when set, is called once per community as results land.
	OnResult func(domain.CommunityResult)
}

func NewRunner(fetcher *collector.Fetcher, communities Lister, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Runner{fetcher: fetcher, communities: communities, opts: opts, now: time.Now, logger: logger}
}

// WithClock replaces the clock used to anchor the window.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run processes every community once. A failing community contributes an
// empty result and never aborts the run. Only cancellation of ctx fails the
// run, in which case nothing is returned.
func (r *Runner) Run(ctx context.Context) (domain.Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return domain.Report{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	names := r.communities.List()
	now := r.now()
	report := domain.Report{
		StartedAt:  now,
		WindowDays: r.opts.WindowDays,
		TopN:       r.opts.TopN,
		Weights:    r.opts.Weights,
		Results:    make([]domain.CommunityResult, len(names)),
	}
	r.logger.Info("Starting pipeline run", "communities", len(names), "limit", r.opts.Limit, "window_days", r.opts.WindowDays)

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			res := r.process(ctx, name, now)
			report.Results[i] = res
			if r.OnResult != nil {
				r.OnResult(res)
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		r.logger.Warn("Pipeline run cancelled", "err", err)
		return domain.Report{}, err
	}

	report.FinishedAt = r.now()
	raw, windowed, ranked := report.Totals()
	r.logger.Info("Pipeline run complete",
		"raw", raw, "windowed", windowed, "ranked", ranked,
		"duration", report.FinishedAt.Sub(report.StartedAt).String())
	return report, nil
}

// process runs fetch, filter and select for one community.
func (r *Runner) process(ctx context.Context, name string, now time.Time) domain.CommunityResult {
	res := domain.CommunityResult{Community: name}

	posts, err := r.fetcher.FetchRecent(ctx, name, r.opts.Limit)
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		res.ErrorKind = domain.Kind(err)
		r.logger.Warn("Community fetch failed", "community", name, "kind", res.ErrorKind, "kept", len(posts), "err", err)
	}
	if posts == nil {
		posts = []domain.Post{}
	}

	views := ranking.Select(ranking.Apply(posts, r.opts.WindowDays, r.opts.Weights, now), r.opts.TopN)
	res.Raw = posts
	res.Ranked = views.Ranked
	res.Recent = views.Recent
	return res
}

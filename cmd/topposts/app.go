package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qepting91/reddit-top/internal/budget"
	"github.com/qepting91/reddit-top/internal/collector"
	"github.com/qepting91/reddit-top/internal/communities"
	"github.com/qepting91/reddit-top/internal/config"
	"github.com/qepting91/reddit-top/internal/domain"
	"github.com/qepting91/reddit-top/internal/ingest"
	"github.com/qepting91/reddit-top/internal/lookup"
	"github.com/qepting91/reddit-top/internal/metrics"
	"github.com/qepting91/reddit-top/internal/pipeline"
	"github.com/qepting91/reddit-top/internal/resolver"
	"github.com/qepting91/reddit-top/internal/storage"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	budget   *budget.Budget
	source   domain.Collector
	registry *communities.Registry
	runner   *pipeline.Runner
	writer   *storage.WriterService
	history  *storage.History
	lookup   *lookup.Service
	metrics  *metrics.Metrics

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.budget = budget.New(budget.Options{
		MinDelay: cfg.MinDelay,
		MaxWait:  cfg.MaxWait,
		LowWater: cfg.LowWater,
	})
	a.metrics = metrics.New(a.budget)

	source, err := collector.NewCollector(cfg, a.budget)
	if err != nil {
		return nil, fmt.Errorf("init collector: %w", err)
	}
	a.source = source
	logger.Info("Collector initialized", "mode", cfg.CollectorMode)

	registry, err := a.openRegistry(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry = registry

	fetcher := collector.NewFetcher(source, logger)
	a.runner = pipeline.NewRunner(fetcher, registry, pipeline.Options{
		Limit:       cfg.FetchLimit,
		TopN:        cfg.TopN,
		WindowDays:  cfg.WindowDays,
		Weights:     cfg.Weights,
		Concurrency: cfg.FetchConcurrency,
	}, logger)
	a.runner.OnResult = a.metrics.ObserveResult

	a.writer = &storage.WriterService{Dir: cfg.DataDir, Logger: logger}
	if cfg.SnapshotBucket != "" {
		sink, err := storage.NewS3Sink(ctx, cfg.AWSRegion, cfg.SnapshotBucket, cfg.SnapshotPrefix)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.writer.Sink = sink
		logger.Info("Snapshot upload enabled", "bucket", cfg.SnapshotBucket, "prefix", cfg.SnapshotPrefix)
	}
	a.history = storage.NewHistory(cfg.DataDir)

	res := resolver.New(cfg.UserAgent, a.budget,
		resolver.WithMaxHops(cfg.MaxRedirectHops),
		resolver.WithLogger(logger))
	a.lookup = lookup.NewService(res, source, registry, logger).WithObserver(a.metrics.ObserveLookup)
	return a, nil
}

// openRegistry picks the Redis store when REDIS_URL is set and the .env
// file otherwise, then seeds it from the configured lists.
func (a *app) openRegistry(ctx context.Context) (*communities.Registry, error) {
	var store communities.Store
	if a.cfg.RedisURL != "" {
		client, err := communities.DialRedis(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		store = communities.NewRedisStore(client, "reddit-top")
	} else {
		store = communities.NewEnvFileStore(a.cfg.EnvFile)
	}

	seed := a.cfg.Communities
	if a.cfg.CommunitiesFile != "" {
		extra, err := ingest.LoadCommunities(a.cfg.CommunitiesFile)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", a.cfg.CommunitiesFile, err)
		}
		seed = ingest.Merge(seed, extra...)
	}

	registry := communities.NewRegistry(store, a.logger)
	if err := registry.Seed(ctx, seed); err != nil {
		return nil, err
	}
	return registry, nil
}

// job runs the pipeline with w as the snapshot destination.
func (a *app) job(w pipeline.ReportWriter) *pipeline.Job {
	return &pipeline.Job{
		Runner:  a.runner,
		Writer:  w,
		History: a.history,
		Logger:  a.logger,
		OnFinish: func(status string) {
			a.metrics.PipelineRuns.WithLabelValues(status).Inc()
		},
	}
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("Close failed", "err", err)
		}
	}
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/qepting91/reddit-top/internal/config"
	"github.com/qepting91/reddit-top/internal/domain"
	"github.com/qepting91/reddit-top/internal/pipeline"
	"github.com/qepting91/reddit-top/internal/server"
	"github.com/qepting91/reddit-top/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var logLevel = new(slog.LevelVar)

type rootOptions struct {
	envFile string
	debug   bool
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "topposts",
		Short: "Ranked digest of the newest posts in a set of Reddit communities",
		Long: `topposts collects the newest posts of each configured community, keeps the
ones inside the time window, and produces a ranked view and a recency view.
It can also resolve any post link and manage the community list over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.debug {
				logLevel.Set(slog.LevelDebug)
			}
			cfg, err := config.Load(opts.envFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(newFetchCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newPostCmd(opts))
	root.AddCommand(newCommunitiesCmd(opts))
	root.AddCommand(newLogsCmd(opts))
	return root
}

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var limit, topN, days int
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run the pipeline once and write the snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("limit") {
				cfg.FetchLimit = limit
			}
			if cmd.Flags().Changed("top") {
				cfg.TopN = topN
			}
			if cmd.Flags().Changed("days") {
				cfg.WindowDays = days
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.job(a.writer).Execute(cmd.Context(), "fetch")
			if err != nil {
				return err
			}
			fmt.Println(renderReport(report))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "posts to collect per community (FETCH_LIMIT)")
	cmd.Flags().IntVar(&topN, "top", 0, "length of the ranked view (TOP_N)")
	cmd.Flags().IntVar(&days, "days", 0, "window in days (PERIOD_DAYS)")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lookup API and dashboard, optionally running the pipeline on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg
			if port != "" {
				cfg.Port = port
			}

			a, err := newApp(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			// Monitor pattern: one goroutine owns the snapshot files
			reports := make(chan domain.Report, 4)
			var writerWg sync.WaitGroup
			writerWg.Add(1)
			go a.writer.Start(&writerWg, reports)
			defer func() {
				close(reports)
				writerWg.Wait()
			}()

			job := a.job(storage.Queue(reports))

			if cfg.Schedule != "" {
				c := cron.New()
				_, err := c.AddFunc(cfg.Schedule, func() {
					if _, err := job.Execute(ctx, "schedule"); err != nil {
						if errors.Is(err, pipeline.ErrRunInProgress) {
							slog.Info("Skipping scheduled run, previous run still active")
							return
						}
						slog.Warn("Scheduled run failed", "err", err)
					}
				})
				if err != nil {
					return fmt.Errorf("PIPELINE_SCHEDULE %q: %w", cfg.Schedule, err)
				}
				c.Start()
				defer func() { <-c.Stop().Done() }()
				slog.Info("Pipeline scheduled", "spec", cfg.Schedule)
			}

			srv := server.New(server.Deps{
				Lookup:   a.lookup,
				Registry: a.registry,
				Pipeline: job,
				Budget:   a.budget,
				Metrics:  a.metrics,
				DataDir:  cfg.DataDir,
				Logger:   slog.Default(),
			})
			return srv.Serve(ctx, ":"+cfg.Port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (SERVER_PORT)")
	return cmd
}

func newPostCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "post URL",
		Short: "Resolve a post link and print the post as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.lookup.FetchPost(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func newCommunitiesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "communities",
		Short: "Manage the tracked community list",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the tracked communities",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Println(renderCommunities(a.registry.List()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Track a community",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()
			name, err := a.registry.Add(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render("added r/" + name))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove NAME",
		Short: "Stop tracking a community",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.registry.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(okStyle.Render("removed r/" + args[0]))
			return nil
		},
	})
	return cmd
}

func newLogsCmd(opts *rootOptions) *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := storage.NewHistory(opts.cfg.DataDir).Load()
			if err != nil {
				return err
			}
			if last > 0 && len(records) > last {
				records = records[len(records)-last:]
			}
			fmt.Println(renderHistory(records))
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "number of runs to show, 0 for all")
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"reportfetcher/workers/downloader/internal/application/handler"
	"reportfetcher/workers/downloader/internal/domain/model"
	"reportfetcher/workers/downloader/internal/infrastructure/adapters/proxy"
	"reportfetcher/workers/downloader/internal/usecase"
)

// timeout bounds a single stage; zero runs until the batch is done
var timeout time.Duration

func main() {
	var cmdRoot = &cobra.Command{
		Use:   "reportfetcher",
		Short: "Research report downloader",
		Long:  `Resolve, download and extract research report archives from the catalogue`,
	}
	cmdRoot.PersistentFlags().DurationVar(&timeout, "timeout", 0, "stop the stage after this long (0 disables)")
	cmdRoot.AddCommand(cmdResolve())
	cmdRoot.AddCommand(cmdDownload())
	cmdRoot.AddCommand(cmdRetry())
	cmdRoot.AddCommand(cmdExtract())
	cmdRoot.AddCommand(cmdStats())
	cmdRoot.AddCommand(cmdProxies())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmdRoot.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// run loads configuration, wires the application and runs the stage
// through the middleware chain.
func run(ctx context.Context, stage string, withProxy, noProxy bool, fn func(ctx context.Context, app *Application) (model.BatchStats, error)) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	if noProxy {
		cfg.Proxy.Enabled = false
	}

	deps, err := initializeDependencies(ctx, cfg, withProxy)
	if err != nil {
		return err
	}
	defer deps.Close()

	app, err := buildApplication(deps)
	if err != nil {
		return err
	}

	logger, metrics, err := deps.obs.ComponentsScoped("stage")
	if err != nil {
		return err
	}
	logger = logger.WithFields(map[string]interface{}{"run_id": deps.runID})

	chain := handler.Chain(func(ctx context.Context) (model.BatchStats, error) {
		return fn(ctx, app)
	},
		handler.RecoveryMiddleware(stage, logger),
		handler.LoggingMiddleware(stage, logger),
		handler.MetricsMiddleware(stage, metrics),
		handler.TimeoutMiddleware(timeout),
	)

	_, err = chain(ctx)
	if errors.Is(err, context.Canceled) {
		deps.logger.Warn("Interrupted, progress so far is saved")
		err = nil
	}
	return err
}

func cmdResolve() *cobra.Command {
	var limit int
	var noProxy bool
	var cmd = &cobra.Command{
		Use:          "resolve",
		Short:        "resolve download links of pending reports",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), "resolve", true, noProxy, func(ctx context.Context, app *Application) (model.BatchStats, error) {
				return app.links.ResolvePending(ctx, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of reports (0 uses the configured batch limit)")
	cmd.Flags().BoolVar(&noProxy, "no-proxy", false, "connect directly without the proxy pool")
	return cmd
}

func cmdDownload() *cobra.Command {
	var opts usecase.DownloadOptions
	var noProxy bool
	var cmd = &cobra.Command{
		Use:          "download",
		Short:        "download archives of ready reports",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("workers") {
				opts.Concurrent = true
			}
			return run(cmd.Context(), "download", true, noProxy, func(ctx context.Context, app *Application) (model.BatchStats, error) {
				return app.downloader.DownloadReady(ctx, opts)
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of reports (0 uses the configured batch limit)")
	cmd.Flags().StringVar(&opts.CategoryID, "category", "", "only download reports of this category id")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "download again even if the archive exists")
	cmd.Flags().BoolVar(&opts.Concurrent, "concurrent", false, "download with several sessions in parallel")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "number of concurrent sessions (implies --concurrent)")
	cmd.Flags().BoolVar(&noProxy, "no-proxy", false, "connect directly without the proxy pool")
	return cmd
}

func cmdRetry() *cobra.Command {
	var opts usecase.DownloadOptions
	var noProxy bool
	var cmd = &cobra.Command{
		Use:          "retry",
		Short:        "reset failed reports and download them again",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("workers") {
				opts.Concurrent = true
			}
			return run(cmd.Context(), "retry", true, noProxy, func(ctx context.Context, app *Application) (model.BatchStats, error) {
				return app.downloader.RetryFailed(ctx, opts)
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of reports (0 uses the configured batch limit)")
	cmd.Flags().BoolVar(&opts.Concurrent, "concurrent", false, "download with several sessions in parallel")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "number of concurrent sessions (implies --concurrent)")
	cmd.Flags().BoolVar(&noProxy, "no-proxy", false, "connect directly without the proxy pool")
	return cmd
}

func cmdExtract() *cobra.Command {
	var limit int
	var categoryName string
	var cmd = &cobra.Command{
		Use:          "extract",
		Short:        "extract archives of downloaded reports",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), "extract", false, true, func(ctx context.Context, app *Application) (model.BatchStats, error) {
				return app.primary.ExtractDownloaded(ctx, categoryName, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of reports (0 uses the configured batch limit)")
	cmd.Flags().StringVar(&categoryName, "category", "", "only extract reports of this category name")
	return cmd
}

func cmdStats() *cobra.Command {
	var cmd = &cobra.Command{
		Use:          "stats",
		Short:        "show catalogue and download statistics",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), "stats", false, true, func(ctx context.Context, app *Application) (model.BatchStats, error) {
				summary, err := app.statistics.Collect(ctx)
				if err != nil {
					return model.BatchStats{}, err
				}
				for _, line := range summary.Lines() {
					fmt.Println(line)
				}
				return model.BatchStats{}, nil
			})
		},
	}
	return cmd
}

func cmdProxies() *cobra.Command {
	var region string
	var cmd = &cobra.Command{
		Use:          "proxies",
		Short:        "probe the proxy nodes and list them by latency",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration()
			if err != nil {
				return err
			}
			deps, err := initializeDependencies(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer deps.Close()

			logger, metrics, err := deps.obs.ComponentsScoped("proxy")
			if err != nil {
				return err
			}
			pool := proxy.NewPool(cfg.Proxy, logger, metrics)
			if err := pool.Load(); err != nil {
				return err
			}
			pool.TestAll(cmd.Context(), cfg.Proxy.ProbeWorkers, cfg.Proxy.ProbeTimeout)

			printNodes(pool.Nodes())

			node, err := pool.SelectFastest(cmd.Context(), region)
			if err != nil {
				return err
			}
			fmt.Printf("\nfastest: %s (%s) via %s\n", node.Name, node.Latency, pool.Endpoint())
			return nil
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "prefer nodes whose name contains this region")
	return cmd
}

func printNodes(nodes []model.ProxyNode) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "NAME\tTYPE\tADDRESS\tLATENCY\tTESTED")
	for _, n := range nodes {
		latency := "unreachable"
		if n.Reachable() {
			latency = n.Latency.Round(time.Millisecond).String()
		}
		tested := "never"
		if !n.TestedAt.IsZero() {
			tested = humanize.Time(n.TestedAt)
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", n.Name, n.Kind, n.Address(), latency, tested); err != nil {
			log.Printf("proxies: %v\n", err)
			return
		}
	}
}

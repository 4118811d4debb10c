package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"reportfetcher/shared/domain/entity"
	"reportfetcher/shared/domain/entity/report"
	"reportfetcher/shared/infrastructure/config"
	"reportfetcher/workers/downloader/internal/application/ports"
	"reportfetcher/workers/downloader/internal/domain/model"
)

// WorkerFactory builds an orchestrator with its own session.
type WorkerFactory func() (*Orchestrator, error)

// DownloadOptions selects the reports of one download run.
type DownloadOptions struct {
	Limit      int
	CategoryID string
	Force      bool
	Concurrent bool
	Workers    int
}

// Downloader runs the download stage over batches of ready reports, either
// sequentially through one session or concurrently with a session per worker.
type Downloader struct {
	repositories ports.Repositories
	primary      *Orchestrator
	newWorker    WorkerFactory
	cfg          config.DownloadConfig
	logger       ports.Logger
	metrics      ports.Metrics
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewDownloader(
	repositories ports.Repositories,
	primary *Orchestrator,
	newWorker WorkerFactory,
	cfg config.DownloadConfig,
	logger ports.Logger,
	metrics ports.Metrics,
) *Downloader {
	return &Downloader{
		repositories: repositories,
		primary:      primary,
		newWorker:    newWorker,
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		sleep:        sleepContext,
	}
}

// DownloadReady processes ready reports, optionally restricted to one category.
func (d *Downloader) DownloadReady(ctx context.Context, opts DownloadOptions) (model.BatchStats, error) {
	limit := d.limit(opts.Limit)

	var (
		reports []*entity.Report
		err     error
	)
	if opts.CategoryID != "" {
		reports, err = d.repositories.Report().ListByCategory(ctx, opts.CategoryID, report.StatusReady, limit)
	} else {
		reports, err = d.repositories.Report().ListByStatus(ctx, report.StatusReady, limit)
	}
	if err != nil {
		return model.BatchStats{}, fmt.Errorf("failed to list ready reports: %w", err)
	}

	return d.run(ctx, reports, opts)
}

// DownloadCategory processes the ready reports of one category.
func (d *Downloader) DownloadCategory(ctx context.Context, categoryID string, opts DownloadOptions) (model.BatchStats, error) {
	if categoryID == "" {
		return model.BatchStats{}, errors.New("category id is required")
	}
	opts.CategoryID = categoryID
	return d.DownloadReady(ctx, opts)
}

// RetryFailed resets failed reports that have a link back to ready and
// downloads them again, replacing any file left on disk.
func (d *Downloader) RetryFailed(ctx context.Context, opts DownloadOptions) (model.BatchStats, error) {
	reports, err := d.repositories.Report().ResetFailed(ctx, d.limit(opts.Limit))
	if err != nil {
		return model.BatchStats{}, fmt.Errorf("failed to reset failed reports: %w", err)
	}

	d.logger.Info("reset failed reports", "count", len(reports))
	d.metrics.RecordGauge("download.retry.reset", float64(len(reports)), nil)

	opts.Force = true
	return d.run(ctx, reports, opts)
}

func (d *Downloader) run(ctx context.Context, reports []*entity.Report, opts DownloadOptions) (model.BatchStats, error) {
	if len(reports) == 0 {
		d.logger.Info("no reports to download")
		return model.BatchStats{}, nil
	}

	start := time.Now()
	var (
		stats model.BatchStats
		err   error
	)
	if opts.Concurrent {
		stats, err = d.concurrent(ctx, reports, opts.Force, opts.Workers)
	} else {
		stats = d.sequential(ctx, reports, opts.Force)
	}

	d.logger.Info("download batch finished",
		"success", stats.Success,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"success_rate", fmt.Sprintf("%.1f%%", stats.SuccessRate()),
		"duration", time.Since(start).Round(time.Millisecond).String())
	d.metrics.RecordGauge("download.batch.success", float64(stats.Success), nil)
	d.metrics.RecordGauge("download.batch.failed", float64(stats.Failed), nil)
	d.metrics.RecordGauge("download.batch.skipped", float64(stats.Skipped), nil)

	if err == nil {
		err = ctx.Err()
	}
	return stats, err
}

// sequential processes reports in order through the primary session with a
// fixed pause between reports.
func (d *Downloader) sequential(ctx context.Context, reports []*entity.Report, force bool) model.BatchStats {
	var stats model.BatchStats

	for i, r := range reports {
		if ctx.Err() != nil {
			d.logger.Warn("download batch interrupted", "remaining", len(reports)-i)
			break
		}

		d.logger.Info("processing report", "index", i+1, "total", len(reports), "post_id", r.PostID)
		stats.Add(d.primary.DownloadReport(ctx, r, force))

		if i < len(reports)-1 {
			if err := d.sleep(ctx, d.cfg.ReportDelay); err != nil {
				break
			}
		}
	}
	return stats
}

// concurrent fans reports out to a fixed worker set. Every worker owns a
// session and its escalation state; a shared limiter bounds the aggregate
// request rate.
func (d *Downloader) concurrent(ctx context.Context, reports []*entity.Report, force bool, workers int) (model.BatchStats, error) {
	if workers <= 0 {
		workers = d.cfg.Workers
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(reports) {
		workers = len(reports)
	}

	d.logger.Warn("concurrent mode multiplies the request rate against the site",
		"workers", workers,
		"requests_per_second", d.cfg.RequestsPerSecond)

	orchestrators := make([]*Orchestrator, 0, workers)
	for i := 0; i < workers; i++ {
		o, err := d.newWorker()
		if err != nil {
			return model.BatchStats{}, fmt.Errorf("failed to create worker %d: %w", i, err)
		}
		orchestrators = append(orchestrators, o)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if d.cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(d.cfg.RequestsPerSecond), 1)
	}

	var (
		mu    sync.Mutex
		stats model.BatchStats
	)
	jobs := make(chan *entity.Report)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, r := range reports {
			select {
			case jobs <- r:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i, o := range orchestrators {
		i, o := i, o // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			for r := range jobs {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				res := o.DownloadReport(gctx, r, force)
				d.logger.Debug("worker finished report", "worker", i, "post_id", r.PostID, "outcome", res.Outcome)

				mu.Lock()
				stats.Add(res)
				mu.Unlock()
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		err = nil
	}
	return stats, err
}

func (d *Downloader) limit(limit int) int {
	if limit > 0 {
		return limit
	}
	return d.cfg.BatchLimit
}

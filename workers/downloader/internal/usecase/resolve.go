package usecase

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"reportfetcher/shared/domain/entity"
	"reportfetcher/shared/domain/entity/report"
	"reportfetcher/shared/infrastructure/config"
	"reportfetcher/workers/downloader/internal/application/ports"
	"reportfetcher/workers/downloader/internal/domain/model"
)

// LinkStage resolves the archive link of pending reports from their
// download pages.
type LinkStage struct {
	session      ports.SessionClient
	links        ports.LinkResolver
	repositories ports.Repositories
	site         config.SiteConfig
	http         config.HTTPConfig
	download     config.DownloadConfig
	logger       ports.Logger
	metrics      ports.Metrics
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewLinkStage(
	session ports.SessionClient,
	links ports.LinkResolver,
	repositories ports.Repositories,
	cfg *config.Config,
	logger ports.Logger,
	metrics ports.Metrics,
) *LinkStage {
	return &LinkStage{
		session:      session,
		links:        links,
		repositories: repositories,
		site:         cfg.Site,
		http:         cfg.HTTP,
		download:     cfg.Download,
		logger:       logger,
		metrics:      metrics,
		sleep:        sleepContext,
	}
}

// ResolvePending moves pending reports to ready with their link, or to
// failed when the page cannot be fetched or holds no archive link.
func (s *LinkStage) ResolvePending(ctx context.Context, limit int) (model.BatchStats, error) {
	if limit <= 0 {
		limit = s.download.BatchLimit
	}

	reports, err := s.repositories.Report().ListByStatus(ctx, report.StatusPending, limit)
	if err != nil {
		return model.BatchStats{}, fmt.Errorf("failed to list pending reports: %w", err)
	}
	s.logger.Info("resolving download links", "count", len(reports))

	var stats model.BatchStats
	for i, r := range reports {
		if ctx.Err() != nil {
			break
		}

		stats.Add(s.resolve(ctx, r))

		if i < len(reports)-1 {
			if err := s.sleep(ctx, s.download.ReportDelay); err != nil {
				break
			}
		}
	}

	s.logger.Info("link resolution finished",
		"success", stats.Success,
		"failed", stats.Failed)
	return stats, ctx.Err()
}

func (s *LinkStage) resolve(ctx context.Context, r *entity.Report) model.ReportResult {
	result := model.ReportResult{PostID: r.PostID}
	logger := s.logger.WithFields(map[string]interface{}{"post_id": r.PostID})
	pageURL := fmt.Sprintf(s.site.DownloadPageURL, r.PostID)

	zipURL, err := s.lookup(ctx, pageURL)
	if err != nil {
		logger.Warn("failed to resolve download link", "page", pageURL, "error", err)
		s.metrics.IncrementCounter("resolve.failed", nil)

		if err := r.MarkFailed(); err != nil {
			logger.Error("failed to mark report failed", "error", err)
		} else if err := s.repositories.Report().Update(ctx, r); err != nil {
			logger.Error("failed to persist report status", "error", err)
		}
		result.Outcome = model.OutcomeTransient
		result.Reason = err.Error()
		return result
	}

	if err := r.MarkReady(zipURL); err != nil {
		logger.Error("failed to mark report ready", "error", err)
		result.Outcome = model.OutcomeTransient
		result.Reason = err.Error()
		return result
	}
	if err := s.repositories.Report().Update(ctx, r); err != nil {
		logger.Error("failed to persist report status", "error", err)
		result.Outcome = model.OutcomeTransient
		result.Reason = err.Error()
		return result
	}

	logger.Info("resolved download link", "url", zipURL)
	s.metrics.IncrementCounter("resolve.completed", nil)
	result.Outcome = model.OutcomeSuccess
	return result
}

func (s *LinkStage) lookup(ctx context.Context, pageURL string) (string, error) {
	page, err := s.session.Request(ctx, http.MethodGet, pageURL, nil, s.http.PageTimeout)
	if err != nil {
		return "", err
	}
	if err := s.sleep(ctx, s.download.PageVisitDelay); err != nil {
		return "", err
	}
	return s.links.ResolveZipURL(page.Body, page.URL)
}

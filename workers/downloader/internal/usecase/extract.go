package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"

	shared "reportfetcher/shared/application/ports"
	"reportfetcher/shared/domain/entity"
	"reportfetcher/shared/domain/entity/download"
	"reportfetcher/shared/domain/entity/report"
	"reportfetcher/workers/downloader/internal/domain/model"
)

// ExtractDownloaded extracts the archives of downloaded reports, optionally
// restricted to one category name. Reports whose archive is gone are skipped.
func (o *Orchestrator) ExtractDownloaded(ctx context.Context, categoryName string, limit int) (model.BatchStats, error) {
	if limit <= 0 {
		limit = o.download.BatchLimit
	}

	var (
		reports []*entity.Report
		err     error
	)
	if categoryName != "" {
		reports, err = o.repositories.Report().ListByCategoryName(ctx, categoryName, report.StatusDownloaded, limit)
	} else {
		reports, err = o.repositories.Report().ListByStatus(ctx, report.StatusDownloaded, limit)
	}
	if err != nil {
		return model.BatchStats{}, fmt.Errorf("failed to list downloaded reports: %w", err)
	}

	var stats model.BatchStats
	for _, r := range reports {
		if ctx.Err() != nil {
			break
		}
		stats.Add(o.extractReport(ctx, r))
	}

	o.logger.Info("extraction finished",
		"success", stats.Success,
		"failed", stats.Failed,
		"skipped", stats.Skipped)
	return stats, ctx.Err()
}

func (o *Orchestrator) extractReport(ctx context.Context, r *entity.Report) model.ReportResult {
	result := model.ReportResult{PostID: r.PostID, Path: r.Path()}
	logger := o.logger.WithFields(map[string]interface{}{"post_id": r.PostID})

	if r.Path() == "" {
		logger.Warn("downloaded report has no local path, skipping")
		result.Skipped = true
		return result
	}
	info, err := os.Stat(r.Path())
	if err != nil || info.IsDir() {
		logger.Warn("archive missing on disk, skipping", "path", r.Path())
		result.Skipped = true
		return result
	}

	dl, err := o.repositories.Download().GetLatestByPostID(ctx, r.PostID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		dl, err = o.recordPresent(ctx, r, info.Name(), r.Path(), info.Size())
	case err == nil && (dl.Status != download.StatusCompleted || dl.Path() != r.Path()):
		dl, err = o.recordPresent(ctx, r, info.Name(), r.Path(), info.Size())
	}
	if err != nil {
		logger.Error("failed to load download record", "error", err)
		result.Outcome = model.OutcomeTransient
		result.Reason = err.Error()
		return result
	}

	if o.Extract(ctx, r, dl) {
		result.Outcome = model.OutcomeSuccess
		return result
	}
	result.Outcome = model.OutcomeCorrupt
	result.Reason = "archive could not be extracted"
	return result
}

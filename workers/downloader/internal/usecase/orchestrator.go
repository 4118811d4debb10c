package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	shared "reportfetcher/shared/application/ports"
	"reportfetcher/shared/domain/entity"
	"reportfetcher/shared/domain/entity/download"
	"reportfetcher/shared/domain/entity/extraction"
	"reportfetcher/shared/domain/entity/report"
	"reportfetcher/shared/infrastructure/config"
	"reportfetcher/workers/downloader/internal/application/ports"
	"reportfetcher/workers/downloader/internal/domain/model"
	"reportfetcher/workers/downloader/internal/domain/service"
)

// Dependencies are the collaborators shared by every orchestrator of a run.
// Only the session differs between workers.
type Dependencies struct {
	Repositories ports.Repositories
	Archive      ports.ArchiveProcessor
	Paths        *service.StoragePathService
	Rotate       ports.RotateFunc
	Publisher    *Publisher
	Logger       ports.Logger
	Metrics      ports.Metrics
}

// Orchestrator downloads one report at a time through a single session.
// It owns the escalation state of that session and must not be shared
// between goroutines.
type Orchestrator struct {
	session      ports.SessionClient
	repositories ports.Repositories
	archive      ports.ArchiveProcessor
	paths        *service.StoragePathService
	rotate       ports.RotateFunc
	publisher    *Publisher
	logger       ports.Logger
	metrics      ports.Metrics

	site     config.SiteConfig
	http     config.HTTPConfig
	download config.DownloadConfig
	extract  config.ArchiveConfig

	consecutiveFailures int
	sleep               func(ctx context.Context, d time.Duration) error
	now                 func() time.Time
}

func NewOrchestrator(session ports.SessionClient, deps Dependencies, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		session:      session,
		repositories: deps.Repositories,
		archive:      deps.Archive,
		paths:        deps.Paths,
		rotate:       deps.Rotate,
		publisher:    deps.Publisher,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		site:         cfg.Site,
		http:         cfg.HTTP,
		download:     cfg.Download,
		extract:      cfg.Archive,
		sleep:        sleepContext,
		now:          time.Now,
	}
}

// Session returns the session this orchestrator drives.
func (o *Orchestrator) Session() ports.SessionClient {
	return o.session
}

// ConsecutiveFailures is the escalation counter of the session.
func (o *Orchestrator) ConsecutiveFailures() int {
	return o.consecutiveFailures
}

// DownloadReport runs the two-step protocol for one ready report: visit the
// download page, then fetch the archive with the page as referer. Each call
// appends exactly one row to the download log unless the archive is already
// on disk.
func (o *Orchestrator) DownloadReport(ctx context.Context, r *entity.Report, force bool) model.ReportResult {
	started := o.now()
	logger := o.logger.WithFields(map[string]interface{}{
		"post_id": r.PostID,
		"title":   r.Title,
	})

	result := model.ReportResult{PostID: r.PostID}
	defer func() {
		result.Duration = o.now().Sub(started)
		o.metrics.RecordHistogram("report.download.duration_ms",
			float64(result.Duration.Milliseconds()),
			map[string]string{"outcome": resultLabel(result)})
	}()

	// 1. Reports without a resolved link cannot be downloaded
	if !r.HasDownloadURL() {
		logger.Warn("report has no download url, skipping")
		if err := r.MarkNoDownloadURL(); err != nil {
			logger.Error("failed to flag report without url", "error", err)
		} else if err := o.repositories.Report().Update(ctx, r); err != nil {
			logger.Error("failed to persist report status", "error", err)
		}
		o.metrics.IncrementCounter("report.skipped", map[string]string{"reason": "no_download_url"})
		result.Skipped = true
		result.Reason = "no download url"
		return result
	}

	// 2. Derive the on-disk location
	fileName := o.paths.FileNameFromURL(r.URL(), o.now())
	savePath := o.paths.GeneratePath(r.Category(), fileName)
	result.Path = savePath

	// 3. An archive left by an earlier run is reused unless forced. A file
	// that does not validate is an interrupted transfer and is fetched again.
	if !force {
		if size, ok := o.present(savePath); ok {
			err := o.archive.Validate(savePath)
			if err == nil {
				logger.Info("archive already downloaded, skipping transfer",
					"path", savePath, "size", humanize.Bytes(uint64(size)))
				o.metrics.IncrementCounter("report.skipped", map[string]string{"reason": "already_downloaded"})
				o.consecutiveFailures = 0
				return o.adopt(ctx, logger, r, fileName, savePath, size, result)
			}
			o.discardPartial(logger, savePath, size, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		logger.Error("failed to create category directory", "error", err)
		result.Outcome = model.OutcomeTransient
		result.Reason = err.Error()
		return result
	}

	// 4. Open the attempt log row for this invocation
	dl := download.NewDownload(r.PostID, r.URL(), fileName, savePath, o.download.MaxAttempts)
	if err := o.repositories.Download().Create(ctx, dl); err != nil {
		logger.Error("failed to record download attempt", "error", err)
		result.Outcome = model.OutcomeTransient
		result.Reason = err.Error()
		return result
	}

	pageURL := fmt.Sprintf(o.site.DownloadPageURL, r.PostID)
	var last model.DownloadResult

	// 5. Attempt with escalation
	for attempt := 1; ; attempt++ {
		if err := dl.Start(); err != nil {
			break
		}
		result.Attempts = attempt

		logger.Info("downloading report", "attempt", attempt, "max_attempts", dl.MaxAttempts(), "url", r.URL())
		last = o.attempt(ctx, pageURL, r.URL(), savePath)

		if last.Succeeded() {
			o.consecutiveFailures = 0
			return o.complete(ctx, logger, r, dl, last, result)
		}

		dl.RecordError(last.Reason)
		if err := o.repositories.Download().Update(ctx, dl); err != nil {
			logger.Error("failed to record attempt error", "error", err)
		}
		logger.Warn("download attempt failed",
			"attempt", attempt,
			"outcome", last.Outcome,
			"status", last.StatusCode,
			"reason", last.Reason)
		o.metrics.IncrementCounter("report.attempt.failed", map[string]string{"outcome": string(last.Outcome)})

		if ctx.Err() != nil {
			last.Reason = ctx.Err().Error()
			break
		}

		remaining := attempt < dl.MaxAttempts()
		if o.escalate(ctx, logger, last, remaining) {
			result.Rotations++
		}
		if !remaining {
			break
		}
	}

	// 6. Attempts exhausted
	return o.fail(ctx, logger, r, dl, last, result)
}

// attempt performs one page visit plus file transfer.
func (o *Orchestrator) attempt(ctx context.Context, pageURL, fileURL, savePath string) model.DownloadResult {
	if _, err := o.session.Request(ctx, http.MethodGet, pageURL, nil, o.http.PageTimeout); err != nil {
		var derr *model.DownloadError
		if errors.As(err, &derr) && derr.Type == model.AccessDenied {
			return model.DownloadResult{
				Outcome:    model.OutcomeAccessDenied,
				StatusCode: http.StatusForbidden,
				Reason:     "download page: " + derr.Message,
			}
		}
		return model.DownloadResult{Outcome: model.OutcomeTransient, Reason: "download page: " + err.Error()}
	}

	if err := o.sleep(ctx, o.download.PageVisitDelay); err != nil {
		return model.DownloadResult{Outcome: model.OutcomeTransient, Reason: err.Error()}
	}

	res := o.session.DownloadFile(ctx, fileURL, savePath, pageURL)
	if !res.Succeeded() {
		if o.session.LastStatus() == http.StatusForbidden {
			res.Outcome = model.OutcomeAccessDenied
		}
		return res
	}

	info, err := os.Stat(savePath)
	if err != nil {
		return model.DownloadResult{Outcome: model.OutcomeTransient, Reason: "stat archive: " + err.Error()}
	}
	if info.Size() <= o.download.MinFileSize {
		os.Remove(savePath)
		return model.DownloadResult{
			Outcome:    model.OutcomeCorrupt,
			StatusCode: res.StatusCode,
			Bytes:      info.Size(),
			Reason:     fmt.Sprintf("archive too small: %d bytes", info.Size()),
		}
	}
	res.Bytes = info.Size()
	return res
}

// escalate updates the failure counter and rotates the network identity on
// access denial or after RotationThreshold consecutive failures. Rotation is
// only worth it when another attempt follows.
func (o *Orchestrator) escalate(ctx context.Context, logger ports.Logger, last model.DownloadResult, remaining bool) bool {
	o.consecutiveFailures++

	denied := last.Outcome == model.OutcomeAccessDenied
	if !denied && o.consecutiveFailures < o.download.RotationThreshold {
		return false
	}
	if !remaining || o.rotate == nil {
		return false
	}

	reason := "consecutive_failures"
	if denied {
		reason = "access_denied"
	}
	logger.Warn("rotating network identity",
		"reason", reason,
		"consecutive_failures", o.consecutiveFailures)

	if err := o.rotate(ctx, o.session); err != nil {
		logger.Error("proxy rotation failed", "error", err)
		o.metrics.IncrementCounter("report.rotation.failed", map[string]string{"reason": reason})
		return false
	}

	o.session.ClearCookies()
	o.consecutiveFailures = 0
	o.metrics.IncrementCounter("report.rotation", map[string]string{"reason": reason})

	if err := o.sleep(ctx, o.download.RotationDelay); err != nil {
		logger.Debug("rotation pause interrupted", "error", err)
	}
	return true
}

func (o *Orchestrator) complete(ctx context.Context, logger ports.Logger, r *entity.Report, dl *entity.Download, res model.DownloadResult, result model.ReportResult) model.ReportResult {
	if err := dl.Complete(res.Bytes); err != nil {
		logger.Error("failed to complete download record", "error", err)
	}
	if err := o.repositories.Download().Update(ctx, dl); err != nil {
		logger.Error("failed to persist download record", "error", err)
	}

	if err := r.MarkDownloaded(dl.Path()); err != nil {
		logger.Error("failed to mark report downloaded", "error", err)
	} else if err := o.repositories.Report().Update(ctx, r); err != nil {
		logger.Error("failed to persist report status", "error", err)
	}

	logger.Info("report downloaded",
		"path", dl.Path(),
		"size", humanize.Bytes(uint64(res.Bytes)),
		"attempts", result.Attempts,
		"resumed", res.Resumed)
	o.metrics.IncrementCounter("report.download.completed", nil)
	o.metrics.RecordHistogram("report.download.size_bytes", float64(res.Bytes), nil)

	o.publisher.Downloaded(ctx, r, dl)

	result.Outcome = model.OutcomeSuccess
	result.Bytes = res.Bytes
	result.Reason = ""

	if o.extract.AutoExtract {
		o.Extract(ctx, r, dl)
	}
	return result
}

func (o *Orchestrator) fail(ctx context.Context, logger ports.Logger, r *entity.Report, dl *entity.Download, last model.DownloadResult, result model.ReportResult) model.ReportResult {
	reason := last.Reason
	if reason == "" {
		reason = "download failed"
	}

	if err := dl.Fail(reason); err != nil {
		logger.Error("failed to close download record", "error", err)
	}
	if err := o.repositories.Download().Update(ctx, dl); err != nil {
		logger.Error("failed to persist download record", "error", err)
	}

	if err := r.MarkFailed(); err != nil {
		logger.Error("failed to mark report failed", "error", err)
	} else if err := o.repositories.Report().Update(ctx, r); err != nil {
		logger.Error("failed to persist report status", "error", err)
	}

	logger.Error("report download failed",
		"attempts", result.Attempts,
		"rotations", result.Rotations,
		"outcome", last.Outcome,
		"error", reason)
	o.metrics.IncrementCounter("report.download.failed", map[string]string{"outcome": string(last.Outcome)})

	result.Outcome = last.Outcome
	if result.Outcome == "" || result.Outcome == model.OutcomeSuccess {
		result.Outcome = model.OutcomeTransient
	}
	result.Reason = reason
	return result
}

// adopt records an archive found on disk as downloaded without a transfer.
// A completed log row is only written when none exists yet, and extraction
// runs only if it was never recorded.
func (o *Orchestrator) adopt(ctx context.Context, logger ports.Logger, r *entity.Report, fileName, savePath string, size int64, result model.ReportResult) model.ReportResult {
	result.Outcome = model.OutcomeSuccess
	result.AlreadyPresent = true
	result.Bytes = size

	dl, err := o.repositories.Download().GetLatestByPostID(ctx, r.PostID)
	if err != nil || !dl.IsCompleted() || dl.Path() != savePath {
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			logger.Error("failed to load download record", "error", err)
		}
		dl, err = o.recordPresent(ctx, r, fileName, savePath, size)
		if err != nil {
			logger.Error("failed to record existing archive", "error", err)
			return result
		}
	}

	if r.Status != report.StatusDownloaded || r.Path() != savePath {
		if err := r.MarkDownloaded(savePath); err != nil {
			logger.Warn("report not in a downloadable state", "status", r.Status, "error", err)
		} else if err := o.repositories.Report().Update(ctx, r); err != nil {
			logger.Error("failed to persist report status", "error", err)
		}
	}

	if !o.extract.AutoExtract {
		return result
	}
	if _, err := o.repositories.Extraction().GetByDownloadID(ctx, dl.ID); err == nil {
		return result
	} else if !errors.Is(err, shared.ErrNotFound) {
		logger.Error("failed to load extraction record", "error", err)
		return result
	}
	o.Extract(ctx, r, dl)
	return result
}

func (o *Orchestrator) recordPresent(ctx context.Context, r *entity.Report, fileName, savePath string, size int64) (*entity.Download, error) {
	dl := download.NewDownload(r.PostID, r.URL(), fileName, savePath, o.download.MaxAttempts)
	if err := dl.Start(); err != nil {
		return nil, err
	}
	if err := dl.Complete(size); err != nil {
		return nil, err
	}
	if err := o.repositories.Download().Create(ctx, dl); err != nil {
		return nil, err
	}
	return dl, nil
}

// Extract validates and unpacks the archive of a completed download and
// records the outcome. It returns whether files were extracted.
func (o *Orchestrator) Extract(ctx context.Context, r *entity.Report, dl *entity.Download) bool {
	archivePath := dl.Path()
	logger := o.logger.WithFields(map[string]interface{}{
		"post_id": r.PostID,
		"archive": archivePath,
	})

	ex, err := extraction.NewExtraction(dl.ID, filepath.Dir(archivePath))
	if err != nil {
		logger.Error("cannot record extraction", "error", err)
		return false
	}

	if err := o.archive.Validate(archivePath); err != nil {
		logger.Warn("archive failed validation, skipping extraction", "error", err)
		ex.Fail()
		o.saveExtraction(ctx, logger, ex)
		return false
	}

	extracted, err := o.archive.Extract(archivePath, r.Title, o.extract.AutoRename)
	if err != nil {
		logger.Error("archive extraction failed", "error", err)
		ex.Fail()
		o.saveExtraction(ctx, logger, ex)
		return false
	}

	ex.Complete(len(extracted.Files))
	o.saveExtraction(ctx, logger, ex)

	logger.Info("report extracted",
		"files", len(extracted.Files),
		"renamed", extracted.Renamed,
		"failed_entries", extracted.Failed)

	o.publisher.Extracted(ctx, r, extracted)

	if !o.extract.KeepZip && extracted.Failed == 0 {
		if err := o.archive.Cleanup(archivePath); err != nil {
			logger.Warn("failed to remove archive", "error", err)
		}
	}
	return true
}

func (o *Orchestrator) saveExtraction(ctx context.Context, logger ports.Logger, ex *entity.Extraction) {
	if err := o.repositories.Extraction().Save(ctx, ex); err != nil {
		logger.Error("failed to persist extraction record", "error", err)
	}
}

// discardPartial handles an archive on disk that failed validation. With
// resume enabled it stays so the transfer continues with a Range request.
func (o *Orchestrator) discardPartial(logger ports.Logger, savePath string, size int64, cause error) {
	o.metrics.IncrementCounter("report.partial_found", nil)
	if o.http.ResumeDownloads {
		logger.Warn("incomplete archive on disk, resuming transfer",
			"path", savePath, "size", humanize.Bytes(uint64(size)), "error", cause)
		return
	}
	logger.Warn("incomplete archive on disk, downloading again",
		"path", savePath, "size", humanize.Bytes(uint64(size)), "error", cause)
	if err := os.Remove(savePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("failed to remove incomplete archive", "path", savePath, "error", err)
	}
}

// present reports whether savePath already holds an archive large enough
// to count as downloaded.
func (o *Orchestrator) present(savePath string) (int64, bool) {
	info, err := os.Stat(savePath)
	if err != nil || info.IsDir() {
		return 0, false
	}
	return info.Size(), info.Size() > o.download.MinFileSize
}

func resultLabel(r model.ReportResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.AlreadyPresent:
		return "already_present"
	case r.Outcome == "":
		return string(model.OutcomeTransient)
	default:
		return string(r.Outcome)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

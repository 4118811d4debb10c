package usecase

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"reportfetcher/shared/domain/entity/download"
	"reportfetcher/shared/domain/entity/extraction"
	"reportfetcher/shared/domain/entity/report"
	"reportfetcher/workers/downloader/internal/application/ports"
)

// Summary is a snapshot of the catalogue and the download directory.
type Summary struct {
	Categories           int64
	Reports              int64
	ByStatus             map[report.Status]int64
	DownloadsCompleted   int64
	DownloadsFailed      int64
	ExtractionsCompleted int64
	ExtractionsFailed    int64
	Files                int64
	DiskBytes            int64
}

// Lines renders the summary for the terminal.
func (s *Summary) Lines() []string {
	lines := []string{
		fmt.Sprintf("categories:   %s", humanize.Comma(s.Categories)),
		fmt.Sprintf("reports:      %s", humanize.Comma(s.Reports)),
	}
	for _, status := range report.AllStatuses() {
		lines = append(lines, fmt.Sprintf("  %-16s %s", status, humanize.Comma(s.ByStatus[status])))
	}
	lines = append(lines,
		fmt.Sprintf("downloads:    %s completed, %s failed",
			humanize.Comma(s.DownloadsCompleted), humanize.Comma(s.DownloadsFailed)),
		fmt.Sprintf("extractions:  %s completed, %s failed",
			humanize.Comma(s.ExtractionsCompleted), humanize.Comma(s.ExtractionsFailed)),
		fmt.Sprintf("disk:         %s files, %s",
			humanize.Comma(s.Files), humanize.Bytes(uint64(s.DiskBytes))),
	)
	return lines
}

// Statistics reports catalogue counts and download directory usage.
type Statistics struct {
	repositories ports.Repositories
	dir          string
	metrics      ports.Metrics
}

func NewStatistics(repositories ports.Repositories, dir string, metrics ports.Metrics) *Statistics {
	return &Statistics{repositories: repositories, dir: dir, metrics: metrics}
}

func (s *Statistics) Collect(ctx context.Context) (*Summary, error) {
	var (
		summary Summary
		err     error
	)

	if summary.Categories, err = s.repositories.Category().CountAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	if summary.Reports, err = s.repositories.Report().CountAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	if summary.ByStatus, err = s.repositories.Report().CountByStatus(ctx); err != nil {
		return nil, fmt.Errorf("failed to count reports by status: %w", err)
	}
	if summary.DownloadsCompleted, err = s.repositories.Download().CountByStatus(ctx, download.StatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to count downloads: %w", err)
	}
	if summary.DownloadsFailed, err = s.repositories.Download().CountByStatus(ctx, download.StatusFailed); err != nil {
		return nil, fmt.Errorf("failed to count downloads: %w", err)
	}
	if summary.ExtractionsCompleted, err = s.repositories.Extraction().CountByStatus(ctx, extraction.StatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to count extractions: %w", err)
	}
	if summary.ExtractionsFailed, err = s.repositories.Extraction().CountByStatus(ctx, extraction.StatusFailed); err != nil {
		return nil, fmt.Errorf("failed to count extractions: %w", err)
	}

	err = filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		summary.Files++
		summary.DiskBytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan download directory: %w", err)
	}

	for status, n := range summary.ByStatus {
		s.metrics.RecordGauge("catalogue.reports", float64(n), map[string]string{"status": string(status)})
	}
	s.metrics.RecordGauge("catalogue.disk_bytes", float64(summary.DiskBytes), nil)

	return &summary, nil
}

package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reportfetcher/shared/domain/entity/download"
	"reportfetcher/shared/domain/entity/extraction"
	"reportfetcher/shared/domain/entity/report"
	"reportfetcher/workers/downloader/internal/domain/model"
	"reportfetcher/workers/downloader/mocks"
)

const zipURL = "https://cdn.ipoipo.cn/files/20241201_packaging.zip"

func TestOrchestrator_DownloadReport_Success(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.seedReport("1001", zipURL)

	session := new(mocks.MockSessionClient)
	expectPage(session, "1001")
	serveArchive(session, zipURL, zipBytes(t, map[string]string{"报告.pdf": "%PDF-1.4 document body"}))

	res := h.orchestrator(session).DownloadReport(ctx, r, false)

	require.True(t, res.Succeeded(), res.Reason)
	assert.Equal(t, 1, res.Attempts)
	assert.Zero(t, res.Rotations)
	assert.False(t, res.AlreadyPresent)

	archivePath := filepath.Join(h.cfg.Download.Dir, "category_7", "20241201_packaging.zip")
	assert.Equal(t, archivePath, res.Path)
	assert.FileExists(t, archivePath)
	assert.FileExists(t, filepath.Join(h.cfg.Download.Dir, "category_7", "20241201包装出海研究报告.pdf"))

	stored := h.reload("1001")
	assert.Equal(t, report.StatusDownloaded, stored.Status)
	assert.Equal(t, archivePath, stored.Path())

	dl, err := h.repos.Download().GetLatestByPostID(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, dl.Status)
	assert.Equal(t, 1, dl.DownloadAttempts)
	assert.Equal(t, res.Bytes, dl.FileSize)

	ex, err := h.repos.Extraction().GetByDownloadID(ctx, dl.ID)
	require.NoError(t, err)
	assert.Equal(t, extraction.StatusCompleted, ex.Status)
	assert.Equal(t, 1, ex.FilesCount)

	// the page is visited first and then sent as referer
	session.AssertCalled(t, "DownloadFile", mock.Anything, zipURL, archivePath, "https://ipoipo.cn/download/1001.html")
	assert.Equal(t, []time.Duration{time.Second}, h.sleeps)
	session.AssertExpectations(t)
}

func TestOrchestrator_DownloadReport_Escalation(t *testing.T) {
	tests := []struct {
		name          string
		failures      []model.Outcome
		succeed       bool
		wantAttempts  int
		wantRotations int
		wantCounter   int
		wantStatus    report.Status
	}{
		{
			name:          "access denial rotates immediately",
			failures:      []model.Outcome{model.OutcomeAccessDenied},
			succeed:       true,
			wantAttempts:  2,
			wantRotations: 1,
			wantStatus:    report.StatusDownloaded,
		},
		{
			name:          "single transient failure does not rotate",
			failures:      []model.Outcome{model.OutcomeTransient},
			succeed:       true,
			wantAttempts:  2,
			wantRotations: 0,
			wantStatus:    report.StatusDownloaded,
		},
		{
			name:          "two transient failures rotate before the third attempt",
			failures:      []model.Outcome{model.OutcomeTransient, model.OutcomeTransient},
			succeed:       true,
			wantAttempts:  3,
			wantRotations: 1,
			wantStatus:    report.StatusDownloaded,
		},
		{
			name:          "exhausted attempts fail the report",
			failures:      []model.Outcome{model.OutcomeTransient, model.OutcomeTransient, model.OutcomeTransient},
			wantAttempts:  3,
			wantRotations: 1,
			wantCounter:   1,
			wantStatus:    report.StatusFailed,
		},
		{
			name:          "denied on every attempt",
			failures:      []model.Outcome{model.OutcomeAccessDenied, model.OutcomeAccessDenied, model.OutcomeAccessDenied},
			wantAttempts:  3,
			wantRotations: 2,
			wantCounter:   1,
			wantStatus:    report.StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			r := h.seedReport("2002", zipURL)

			session := new(mocks.MockSessionClient)
			expectPage(session, "2002")
			session.On("LastStatus").Return(0).Maybe()
			session.On("ClearCookies").Return().Maybe()
			for _, outcome := range tt.failures {
				failDownload(session, zipURL, outcome, 0)
			}
			if tt.succeed {
				serveArchive(session, zipURL, zipBytes(t, map[string]string{"a.pdf": "%PDF-1.4 body"}))
			}

			o := h.orchestrator(session)
			res := o.DownloadReport(ctx, r, false)

			assert.Equal(t, tt.succeed, res.Succeeded())
			assert.Equal(t, tt.wantAttempts, res.Attempts)
			assert.Equal(t, tt.wantRotations, res.Rotations)
			assert.Equal(t, tt.wantRotations, h.rotations())
			assert.Equal(t, tt.wantCounter, o.ConsecutiveFailures())
			session.AssertNumberOfCalls(t, "ClearCookies", tt.wantRotations)

			var pauses int
			for _, d := range h.sleeps {
				if d == h.cfg.Download.RotationDelay {
					pauses++
				}
			}
			assert.Equal(t, tt.wantRotations, pauses)

			assert.Equal(t, tt.wantStatus, h.reload("2002").Status)

			dl, err := h.repos.Download().GetLatestByPostID(ctx, "2002")
			require.NoError(t, err)
			assert.Equal(t, tt.wantAttempts, dl.DownloadAttempts)
			if !tt.succeed {
				assert.Equal(t, download.StatusFailed, dl.Status)
				require.NotNil(t, dl.ErrorMessage)
				assert.Equal(t, tt.failures[len(tt.failures)-1], res.Outcome)
			}
		})
	}
}

func TestOrchestrator_DownloadReport_PageDenied(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.seedReport("3003", zipURL)

	session := new(mocks.MockSessionClient)
	session.On("Request", mock.Anything, "GET", "https://ipoipo.cn/download/3003.html", mock.Anything, mock.Anything).
		Return(nil, model.NewStatusError(403, "https://ipoipo.cn/download/3003.html")).Once()
	expectPage(session, "3003")
	session.On("ClearCookies").Return().Once()
	serveArchive(session, zipURL, zipBytes(t, map[string]string{"a.pdf": "%PDF-1.4 body"}))

	res := h.orchestrator(session).DownloadReport(ctx, r, false)

	assert.True(t, res.Succeeded())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, res.Rotations)
	session.AssertExpectations(t)
}

func TestOrchestrator_DownloadReport_LastStatusForbidden(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.seedReport("3004", zipURL)

	session := new(mocks.MockSessionClient)
	expectPage(session, "3004")
	failDownload(session, zipURL, model.OutcomeTransient, 0)
	session.On("LastStatus").Return(403).Once()
	session.On("ClearCookies").Return().Once()
	serveArchive(session, zipURL, zipBytes(t, map[string]string{"a.pdf": "%PDF-1.4 body"}))

	res := h.orchestrator(session).DownloadReport(ctx, r, false)

	assert.True(t, res.Succeeded())
	assert.Equal(t, 1, res.Rotations)
	assert.Equal(t, int64(1), h.metrics.GetCounter("report.rotation", map[string]string{"reason": "access_denied"}))
}

func TestOrchestrator_DownloadReport_NoDownloadURL(t *testing.T) {
	h := newHarness(t)
	r := h.seedReport("4004", "")

	session := new(mocks.MockSessionClient)
	res := h.orchestrator(session).DownloadReport(context.Background(), r, false)

	assert.True(t, res.Skipped)
	assert.Zero(t, res.Attempts)
	assert.Equal(t, report.StatusNoDownloadURL, h.reload("4004").Status)
	session.AssertNotCalled(t, "Request", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	session.AssertNotCalled(t, "DownloadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	_, err := h.repos.Download().GetLatestByPostID(context.Background(), "4004")
	assert.Error(t, err)
}

func TestOrchestrator_DownloadReport_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.seedReport("5005", zipURL)
	data := zipBytes(t, map[string]string{"a.pdf": "%PDF-1.4 body"})

	session := new(mocks.MockSessionClient)
	expectPage(session, "5005")
	serveArchive(session, zipURL, data)
	o := h.orchestrator(session)

	first := o.DownloadReport(ctx, r, false)
	require.True(t, first.Succeeded())

	second := o.DownloadReport(ctx, h.reload("5005"), false)
	assert.True(t, second.Succeeded())
	assert.True(t, second.AlreadyPresent)
	assert.Zero(t, second.Attempts)
	session.AssertNumberOfCalls(t, "DownloadFile", 1)

	completed, err := h.repos.Download().CountByStatus(ctx, download.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(1), completed)
	extracted, err := h.repos.Extraction().CountByStatus(ctx, extraction.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(1), extracted)

	serveArchive(session, zipURL, data)
	forced := o.DownloadReport(ctx, h.reload("5005"), true)
	assert.True(t, forced.Succeeded())
	assert.False(t, forced.AlreadyPresent)
	session.AssertNumberOfCalls(t, "DownloadFile", 2)

	completed, err = h.repos.Download().CountByStatus(ctx, download.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(2), completed)
}

func TestOrchestrator_DownloadReport_AdoptsExistingFile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.seedReport("5006", zipURL)

	archivePath := filepath.Join(h.cfg.Download.Dir, "category_7", "20241201_packaging.zip")
	require.NoError(t, os.MkdirAll(filepath.Dir(archivePath), 0o755))
	require.NoError(t, os.WriteFile(archivePath, zipBytes(t, map[string]string{"a.pdf": "%PDF-1.4 body"}), 0o644))

	session := new(mocks.MockSessionClient)
	res := h.orchestrator(session).DownloadReport(ctx, r, false)

	assert.True(t, res.AlreadyPresent)
	assert.Equal(t, report.StatusDownloaded, h.reload("5006").Status)

	dl, err := h.repos.Download().GetLatestByPostID(ctx, "5006")
	require.NoError(t, err)
	assert.True(t, dl.IsCompleted())

	ex, err := h.repos.Extraction().GetByDownloadID(ctx, dl.ID)
	require.NoError(t, err)
	assert.True(t, ex.IsCompleted())
	session.AssertNotCalled(t, "DownloadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_DownloadReport_TruncatedArchiveIsFetchedAgain(t *testing.T) {
	tests := []struct {
		name        string
		resume      bool
		wantPartial bool
	}{
		{name: "partial file removed without resume", resume: false, wantPartial: false},
		{name: "partial file kept for range resume", resume: true, wantPartial: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			h.cfg.HTTP.ResumeDownloads = tt.resume
			r := h.seedReport("5016", zipURL)

			data := zipBytes(t, map[string]string{"a.pdf": "%PDF-1.4 body of the report"})
			archivePath := filepath.Join(h.cfg.Download.Dir, "category_7", "20241201_packaging.zip")
			require.NoError(t, os.MkdirAll(filepath.Dir(archivePath), 0o755))
			require.NoError(t, os.WriteFile(archivePath, data[:len(data)-30], 0o644))

			var partialSeen bool
			session := new(mocks.MockSessionClient)
			expectPage(session, "5016")
			session.On("DownloadFile", mock.Anything, zipURL, archivePath, mock.Anything).
				Run(func(args mock.Arguments) {
					_, err := os.Stat(archivePath)
					partialSeen = err == nil
					if err := os.WriteFile(archivePath, data, 0o644); err != nil {
						panic(err)
					}
				}).
				Return(model.DownloadResult{Outcome: model.OutcomeSuccess, StatusCode: 200}).
				Once()

			res := h.orchestrator(session).DownloadReport(ctx, r, false)

			assert.True(t, res.Succeeded())
			assert.False(t, res.AlreadyPresent)
			assert.Equal(t, 1, res.Attempts)
			assert.Equal(t, tt.wantPartial, partialSeen)
			assert.Equal(t, int64(1), h.metrics.GetCounter("report.partial_found", nil))
			assert.Equal(t, report.StatusDownloaded, h.reload("5016").Status)

			dl, err := h.repos.Download().GetLatestByPostID(ctx, "5016")
			require.NoError(t, err)
			ex, err := h.repos.Extraction().GetByDownloadID(ctx, dl.ID)
			require.NoError(t, err)
			assert.Equal(t, extraction.StatusCompleted, ex.Status)
			session.AssertExpectations(t)
		})
	}
}

func TestOrchestrator_DownloadReport_TooSmallIsRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.seedReport("6006", zipURL)

	session := new(mocks.MockSessionClient)
	expectPage(session, "6006")
	session.On("LastStatus").Return(200).Maybe()
	serveArchive(session, zipURL, []byte("PK"))
	serveArchive(session, zipURL, zipBytes(t, map[string]string{"a.pdf": "%PDF-1.4 body"}))

	res := h.orchestrator(session).DownloadReport(ctx, r, false)

	assert.True(t, res.Succeeded())
	assert.Equal(t, 2, res.Attempts)
	assert.Zero(t, res.Rotations)
	assert.Equal(t, int64(1), h.metrics.GetCounter("report.attempt.failed", map[string]string{"outcome": "corrupt"}))
}

func TestOrchestrator_DownloadReport_InvalidArchive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.seedReport("7007", zipURL)

	session := new(mocks.MockSessionClient)
	expectPage(session, "7007")
	serveArchive(session, zipURL, []byte("<!DOCTYPE html><html><body>blocked by the cdn</body></html>"))

	res := h.orchestrator(session).DownloadReport(ctx, r, false)

	// the transfer succeeded; only extraction is recorded as failed
	assert.True(t, res.Succeeded())
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, report.StatusDownloaded, h.reload("7007").Status)

	dl, err := h.repos.Download().GetLatestByPostID(ctx, "7007")
	require.NoError(t, err)
	ex, err := h.repos.Extraction().GetByDownloadID(ctx, dl.ID)
	require.NoError(t, err)
	assert.Equal(t, extraction.StatusFailed, ex.Status)
	assert.Zero(t, ex.FilesCount)
	assert.FileExists(t, res.Path)
}

func TestOrchestrator_DownloadReport_CleanupWithoutKeepZip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.cfg.Archive.KeepZip = false
	r := h.seedReport("8008", zipURL)

	archive := new(mocks.MockArchiveProcessor)
	session := new(mocks.MockSessionClient)
	expectPage(session, "8008")
	serveArchive(session, zipURL, zipBytes(t, map[string]string{"a.pdf": "%PDF-1.4 body"}))

	o := h.orchestrator(session)
	o.archive = archive

	archive.On("Validate", mock.Anything).Return(nil).Once()
	archive.On("Extract", mock.Anything, "包装出海研究报告", true).
		Return(&model.ExtractResult{Files: []string{"x.pdf"}}, nil).Once()
	archive.On("Cleanup", mock.Anything).Return(nil).Once()

	res := o.DownloadReport(ctx, r, false)

	assert.True(t, res.Succeeded())
	archive.AssertExpectations(t)
}

func TestOrchestrator_DownloadReport_PartialExtractionKeepsArchive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.cfg.Archive.KeepZip = false
	r := h.seedReport("8009", zipURL)

	archive := new(mocks.MockArchiveProcessor)
	session := new(mocks.MockSessionClient)
	expectPage(session, "8009")
	serveArchive(session, zipURL, zipBytes(t, map[string]string{"a.pdf": "%PDF-1.4 body"}))

	o := h.orchestrator(session)
	o.archive = archive

	archive.On("Validate", mock.Anything).Return(nil).Once()
	archive.On("Extract", mock.Anything, mock.Anything, true).
		Return(&model.ExtractResult{Files: []string{"x.pdf"}, Failed: 1}, nil).Once()

	o.DownloadReport(ctx, r, false)

	archive.AssertNotCalled(t, "Cleanup", mock.Anything)
}

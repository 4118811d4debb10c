package usecase

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reportfetcher/shared/domain/entity"
	"reportfetcher/shared/domain/entity/download"
	"reportfetcher/shared/domain/entity/report"
	"reportfetcher/shared/infrastructure/config"
	"reportfetcher/shared/infrastructure/database"
	"reportfetcher/shared/infrastructure/observability"
	"reportfetcher/shared/infrastructure/observability/adapters/stdout"
	"reportfetcher/shared/infrastructure/repository"
	"reportfetcher/workers/downloader/internal/application/ports"
	"reportfetcher/workers/downloader/internal/domain/model"
	"reportfetcher/workers/downloader/internal/domain/service"
	"reportfetcher/workers/downloader/mocks"
)

const pagePattern = "https://ipoipo.cn/download/%s.html"

type harness struct {
	t       *testing.T
	cfg     *config.Config
	repos   *repository.Repositories
	paths   *service.StoragePathService
	archive ports.ArchiveProcessor
	logger  ports.Logger
	metrics *stdout.Metrics

	mu      sync.Mutex
	sleeps  []time.Duration
	rotated int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Download.Dir = t.TempDir()
	cfg.Download.MinFileSize = 16
	cfg.Download.MaxAttempts = 3
	cfg.Download.RotationThreshold = 2
	cfg.Download.PageVisitDelay = time.Second
	cfg.Download.ReportDelay = 2 * time.Second
	cfg.Download.RotationDelay = 2 * time.Second
	cfg.Site.DownloadPageURL = pagePattern
	cfg.Archive.AutoExtract = true
	cfg.Archive.AutoRename = true
	cfg.Archive.KeepZip = true

	obs := observability.NewDiscard()
	db, err := database.NewDatabaseFromDSN(database.DialectSQLite, ":memory:", obs)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repos, err := repository.NewRepositories(db, obs)
	require.NoError(t, err)

	logger := stdout.NewLogger(stdout.LoggerOptions{Output: io.Discard})
	metrics := stdout.NewMetrics(stdout.MetricsOptions{Quiet: true})
	sanitizer := service.NewFilenameSanitizer(cfg.Archive.MaxFilenameLength)

	return &harness{
		t:       t,
		cfg:     cfg,
		repos:   repos,
		paths:   service.NewStoragePathService(cfg.Download.Dir, sanitizer),
		archive: service.NewArchiveProcessor(sanitizer, logger, metrics),
		logger:  logger,
		metrics: metrics,
	}
}

// orchestrator builds an orchestrator whose pauses are recorded instead of
// slept and whose rotation callback only counts invocations.
func (h *harness) orchestrator(session ports.SessionClient) *Orchestrator {
	rotate := func(ctx context.Context, s ports.SessionClient) error {
		h.mu.Lock()
		h.rotated++
		h.mu.Unlock()
		return nil
	}
	return h.orchestratorWith(session, rotate, nil)
}

func (h *harness) orchestratorWith(session ports.SessionClient, rotate ports.RotateFunc, publisher *Publisher) *Orchestrator {
	o := NewOrchestrator(session, Dependencies{
		Repositories: h.repos,
		Archive:      h.archive,
		Paths:        h.paths,
		Rotate:       rotate,
		Publisher:    publisher,
		Logger:       h.logger,
		Metrics:      h.metrics,
	}, h.cfg)
	o.sleep = h.recordSleep
	return o
}

func (h *harness) recordSleep(ctx context.Context, d time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sleeps = append(h.sleeps, d)
	return ctx.Err()
}

func (h *harness) rotations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rotated
}

func (h *harness) seedReport(postID, zipURL string) *entity.Report {
	h.t.Helper()

	r, err := report.NewReport("7", postID, "包装出海研究报告", "https://ipoipo.cn/post/"+postID+".html")
	require.NoError(h.t, err)
	if zipURL != "" {
		require.NoError(h.t, r.MarkReady(zipURL))
	}
	created, err := h.repos.Report().Create(context.Background(), r)
	require.NoError(h.t, err)
	require.True(h.t, created)
	return r
}

func (h *harness) reload(postID string) *entity.Report {
	h.t.Helper()
	r, err := h.repos.Report().GetByPostID(context.Background(), postID)
	require.NoError(h.t, err)
	return r
}

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func page(postID string) *model.Page {
	return &model.Page{URL: "https://ipoipo.cn/download/" + postID + ".html", StatusCode: 200}
}

func expectPage(session *mocks.MockSessionClient, postID string) *mock.Call {
	return session.On("Request", mock.Anything, "GET", "https://ipoipo.cn/download/"+postID+".html", mock.Anything, mock.Anything).
		Return(page(postID), nil)
}

// serveArchive makes one DownloadFile call write data to the save path.
func serveArchive(session *mocks.MockSessionClient, zipURL string, data []byte) *mock.Call {
	return session.On("DownloadFile", mock.Anything, zipURL, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			if err := os.WriteFile(args.String(2), data, 0o644); err != nil {
				panic(err)
			}
		}).
		Return(model.DownloadResult{Outcome: model.OutcomeSuccess, StatusCode: 200, Bytes: int64(len(data))}).
		Once()
}

func failDownload(session *mocks.MockSessionClient, zipURL string, outcome model.Outcome, status int) *mock.Call {
	return session.On("DownloadFile", mock.Anything, zipURL, mock.Anything, mock.Anything).
		Return(model.DownloadResult{Outcome: outcome, StatusCode: status, Reason: string(outcome)}).
		Once()
}

func mustDownload(t *testing.T, postID string) *entity.Download {
	t.Helper()
	dl := download.NewDownload(postID, zipURL, "20241201_packaging.zip", "/data/20241201_packaging.zip", 3)
	require.NoError(t, dl.Start())
	require.NoError(t, dl.Complete(2048))
	return dl
}

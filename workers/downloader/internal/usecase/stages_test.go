package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reportfetcher/shared/domain/entity/category"
	"reportfetcher/shared/domain/entity/extraction"
	"reportfetcher/shared/domain/entity/report"
	"reportfetcher/shared/infrastructure/config"
	"reportfetcher/workers/downloader/internal/application/ports"
	"reportfetcher/workers/downloader/internal/domain/model"
	"reportfetcher/workers/downloader/mocks"
)

func TestLinkStage_ResolvePending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedReport("101", "")
	h.seedReport("102", "")

	body := []byte(`<a href="/files/20240101_a.zip">a.zip</a>`)
	session := new(mocks.MockSessionClient)
	session.On("Request", mock.Anything, "GET", "https://ipoipo.cn/download/101.html", mock.Anything, mock.Anything).
		Return(&model.Page{URL: "https://ipoipo.cn/download/101.html", Body: body}, nil)
	session.On("Request", mock.Anything, "GET", "https://ipoipo.cn/download/102.html", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))

	links := new(mocks.MockLinkResolver)
	links.On("ResolveZipURL", body, "https://ipoipo.cn/download/101.html").
		Return("https://ipoipo.cn/files/20240101_a.zip", nil)

	stage := NewLinkStage(session, links, h.repos, h.cfg, h.logger, h.metrics)
	stage.sleep = h.recordSleep

	stats, err := stage.ResolvePending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStats{Success: 1, Failed: 1}, stats)

	resolved := h.reload("101")
	assert.Equal(t, report.StatusReady, resolved.Status)
	assert.Equal(t, "https://ipoipo.cn/files/20240101_a.zip", resolved.URL())
	assert.Equal(t, report.StatusFailed, h.reload("102").Status)

	assert.Contains(t, h.sleeps, h.cfg.Download.ReportDelay)
	links.AssertExpectations(t)
}

func TestLinkStage_NoLinkFailsReport(t *testing.T) {
	h := newHarness(t)
	h.seedReport("103", "")

	session := new(mocks.MockSessionClient)
	session.On("Request", mock.Anything, "GET", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.Page{URL: "https://ipoipo.cn/download/103.html", Body: []byte("<p>nothing</p>")}, nil)
	links := new(mocks.MockLinkResolver)
	links.On("ResolveZipURL", mock.Anything, mock.Anything).Return("", errors.New("no zip link"))

	stage := NewLinkStage(session, links, h.repos, h.cfg, h.logger, h.metrics)
	stage.sleep = h.recordSleep

	stats, err := stage.ResolvePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, report.StatusFailed, h.reload("103").Status)
	assert.False(t, h.reload("103").HasDownloadURL())
}

func TestOrchestrator_ExtractDownloaded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	c, err := category.NewCategory("7", "包装", "https://ipoipo.cn/tags-7.html")
	require.NoError(t, err)
	_, err = h.repos.Category().Upsert(ctx, c)
	require.NoError(t, err)

	present := h.seedReport("201", zipURL)
	archivePath := filepath.Join(h.cfg.Download.Dir, "包装", "20241201_packaging.zip")
	require.NoError(t, os.MkdirAll(filepath.Dir(archivePath), 0o755))
	require.NoError(t, os.WriteFile(archivePath, zipBytes(t, map[string]string{"doc.docx": "PK docx"}), 0o644))
	require.NoError(t, present.MarkDownloaded(archivePath))
	require.NoError(t, h.repos.Report().Update(ctx, present))

	missing := h.seedReport("202", "https://cdn.ipoipo.cn/files/gone.zip")
	require.NoError(t, missing.MarkDownloaded(filepath.Join(h.cfg.Download.Dir, "包装", "gone.zip")))
	require.NoError(t, h.repos.Report().Update(ctx, missing))

	o := h.orchestrator(new(mocks.MockSessionClient))

	stats, err := o.ExtractDownloaded(ctx, "其他", 0)
	require.NoError(t, err)
	assert.Zero(t, stats.Total())

	stats, err = o.ExtractDownloaded(ctx, "包装", 0)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStats{Success: 1, Skipped: 1}, stats)
	assert.FileExists(t, filepath.Join(h.cfg.Download.Dir, "包装", "20241201包装出海研究报告.docx"))

	dl, err := h.repos.Download().GetLatestByPostID(ctx, "201")
	require.NoError(t, err)
	ex, err := h.repos.Extraction().GetByDownloadID(ctx, dl.ID)
	require.NoError(t, err)
	assert.Equal(t, extraction.StatusCompleted, ex.Status)
	assert.Equal(t, 1, ex.FilesCount)
}

func TestOrchestrator_ExtractDownloaded_LimitCountsOnlyTheCategory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	for _, c := range []struct{ id, name string }{{"7", "包装"}, {"8", "其他"}} {
		cat, err := category.NewCategory(c.id, c.name, "")
		require.NoError(t, err)
		_, err = h.repos.Category().Upsert(ctx, cat)
		require.NoError(t, err)
	}

	// Older downloads of another category sort ahead of the wanted one
	for _, postID := range []string{"211", "212"} {
		other, err := report.NewReport("8", postID, "其他报告", "https://ipoipo.cn/post/"+postID+".html")
		require.NoError(t, err)
		require.NoError(t, other.MarkReady("https://cdn.ipoipo.cn/files/"+postID+".zip"))
		_, err = h.repos.Report().Create(ctx, other)
		require.NoError(t, err)
		require.NoError(t, other.MarkDownloaded(filepath.Join(h.cfg.Download.Dir, "其他", postID+".zip")))
		require.NoError(t, h.repos.Report().Update(ctx, other))
	}

	wanted := h.seedReport("213", zipURL)
	archivePath := filepath.Join(h.cfg.Download.Dir, "包装", "20241201_packaging.zip")
	require.NoError(t, os.MkdirAll(filepath.Dir(archivePath), 0o755))
	require.NoError(t, os.WriteFile(archivePath, zipBytes(t, map[string]string{"doc.docx": "PK docx"}), 0o644))
	require.NoError(t, wanted.MarkDownloaded(archivePath))
	require.NoError(t, h.repos.Report().Update(ctx, wanted))

	stats, err := h.orchestrator(new(mocks.MockSessionClient)).ExtractDownloaded(ctx, "包装", 1)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStats{Success: 1}, stats)
}

func TestStatistics_Collect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	r := h.seedReport("301", zipURL)
	h.seedReport("302", "")

	session := new(mocks.MockSessionClient)
	expectPage(session, "301")
	serveArchive(session, zipURL, zipBytes(t, map[string]string{"a.pdf": "%PDF-1.4 body"}))
	require.True(t, h.orchestrator(session).DownloadReport(ctx, r, false).Succeeded())

	summary, err := NewStatistics(h.repos, h.cfg.Download.Dir, h.metrics).Collect(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.Reports)
	assert.Equal(t, int64(1), summary.ByStatus[report.StatusDownloaded])
	assert.Equal(t, int64(1), summary.ByStatus[report.StatusPending])
	assert.Equal(t, int64(1), summary.DownloadsCompleted)
	assert.Equal(t, int64(1), summary.ExtractionsCompleted)
	assert.Equal(t, int64(2), summary.Files)
	assert.Positive(t, summary.DiskBytes)

	lines := summary.Lines()
	assert.Contains(t, lines, "reports:      2")
	assert.Equal(t, float64(1), h.metrics.GetGauge("catalogue.reports", map[string]string{"status": "downloaded"}))
}

func TestNewProxyRotation(t *testing.T) {
	current := &model.ProxyNode{Name: "hk-01"}
	next := &model.ProxyNode{Name: "jp-02", Latency: 80 * time.Millisecond}

	tests := []struct {
		name       string
		selected   *model.ProxyNode
		selectErr  error
		wantErr    bool
		wantDirect bool
	}{
		{name: "switches to another node", selected: next},
		{name: "falls back to direct when exhausted", selectErr: model.ErrNoHealthyNode, wantDirect: true},
		{name: "propagates other errors", selectErr: errors.New("agent unreachable"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			pool := new(mocks.MockProxyPool)
			pool.On("Current").Return(current)
			pool.On("MarkFailed", current).Return().Once()
			pool.On("SelectRandom", mock.Anything, 500*time.Millisecond).Return(tt.selected, tt.selectErr)
			pool.On("Endpoint").Return("http://127.0.0.1:7890").Maybe()

			session := new(mocks.MockSessionClient)
			session.On("UseDirect").Return().Maybe()

			rotate := NewProxyRotation(pool, 500*time.Millisecond, h.logger, h.metrics)
			err := rotate(context.Background(), session)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			if tt.wantDirect {
				session.AssertCalled(t, "UseDirect")
				assert.Equal(t, int64(1), h.metrics.GetCounter("proxy.exhausted", nil))
			} else {
				session.AssertNotCalled(t, "UseDirect")
			}
			pool.AssertExpectations(t)
		})
	}
}

func TestPublisher(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.seedReport("401", zipURL)

	doc := filepath.Join(t.TempDir(), "20241201包装出海研究报告.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("%PDF-1.4 body"), 0o644))
	kept := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(kept, []byte("notes"), 0o644))

	storage := new(mocks.MockStorage)
	storage.On("Exists", mock.Anything, "category_7/20241201包装出海研究报告.pdf").Return(false, nil)
	storage.On("Exists", mock.Anything, "category_7/notes.txt").Return(true, nil)
	storage.On("Put", mock.Anything, "category_7/20241201包装出海研究报告.pdf",
		mock.MatchedBy(func(m ports.ObjectMetadata) bool {
			return m.ContentType == "application/pdf" && m.UserMetadata["post-id"] == "401"
		})).Return(nil).Once()

	queue := new(mocks.MockQueue)
	queue.On("Publish", mock.Anything, mock.MatchedBy(func(m *ports.QueueMessage) bool {
		ev, ok := m.Body.(ExtractedEvent)
		return ok && m.Target == "report.extracted" && m.Key == "401" && len(ev.Mirrored) == 2 && ev.RunID == "run-1"
	})).Return(nil).Once()
	queue.On("Publish", mock.Anything, mock.MatchedBy(func(m *ports.QueueMessage) bool {
		ev, ok := m.Body.(DownloadedEvent)
		return ok && m.Target == "report.downloaded" && ev.PostID == "401"
	})).Return(errors.New("broker down")).Once()

	topics := config.QueueTopics{Downloaded: "report.downloaded", Extracted: "report.extracted"}
	p := NewPublisher(storage, queue, topics, h.paths, "run-1", h.logger, h.metrics)

	p.Extracted(ctx, r, &model.ExtractResult{Files: []string{doc, kept}})
	p.Downloaded(ctx, r, mustDownload(t, r.PostID))

	storage.AssertExpectations(t)
	queue.AssertExpectations(t)
	assert.Equal(t, int64(1), h.metrics.GetCounter("publisher.event.failed", map[string]string{"target": "report.downloaded"}))

	var nilPublisher *Publisher
	assert.NotPanics(t, func() {
		nilPublisher.Extracted(ctx, r, &model.ExtractResult{})
		nilPublisher.Downloaded(ctx, r, mustDownload(t, r.PostID))
	})
}

func TestNewSessionReset(t *testing.T) {
	h := newHarness(t)
	session := new(mocks.MockSessionClient)

	err := NewSessionReset(h.logger, h.metrics)(context.Background(), session)

	require.NoError(t, err)
	assert.Equal(t, int64(1), h.metrics.GetCounter("proxy.session_reset", nil))
	assert.Empty(t, session.Calls)
}

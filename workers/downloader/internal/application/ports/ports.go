package ports

import (
	"context"
	"time"

	"reportfetcher/workers/downloader/internal/domain/model"
)

// SessionClient is a cookie-bearing HTTP client. One instance must never be
// shared between concurrent workers: its cookie jar and last status are
// per-session state.
type SessionClient interface {
	// Request issues a page request with retry on transient failures.
	// A 403 is returned at once as a *model.DownloadError.
	Request(ctx context.Context, method, url string, headers map[string]string, timeout time.Duration) (*model.Page, error)

	// DownloadFile streams url to savePath with referer set. Access denial
	// and disguised error pages are reported in the result, not as errors.
	DownloadFile(ctx context.Context, url, savePath, referer string) model.DownloadResult

	// LastStatus is the status code observed by the most recent DownloadFile.
	LastStatus() int

	// ClearCookies drops all session cookies.
	ClearCookies()

	// UseDirect stops routing through the forwarding proxy.
	UseDirect()
}

// SessionFactory builds an isolated session for one worker.
type SessionFactory func() (SessionClient, error)

// ProxyPool is the health registry of proxy nodes. Selection is advisory:
// traffic always flows through the forwarding endpoint. Returned nodes are
// snapshots; MarkFailed matches by name.
type ProxyPool interface {
	Load() error
	TestAll(ctx context.Context, maxWorkers int, timeout time.Duration)
	SelectFastest(ctx context.Context, region string) (*model.ProxyNode, error)
	SelectRandom(ctx context.Context, maxLatency time.Duration) (*model.ProxyNode, error)
	MarkFailed(node *model.ProxyNode)
	Current() *model.ProxyNode
	Nodes() []model.ProxyNode
	Endpoint() string
}

// RotateFunc switches the network identity of a session. The orchestrator
// clears the session cookies after it returns.
type RotateFunc func(ctx context.Context, session SessionClient) error

// ArchiveProcessor validates and unpacks downloaded archives.
type ArchiveProcessor interface {
	Validate(archivePath string) error
	Extract(archivePath, reportTitle string, autoRename bool) (*model.ExtractResult, error)
	Cleanup(archivePath string) error
}

// LinkResolver finds the archive link on a download page.
type LinkResolver interface {
	ResolveZipURL(body []byte, pageURL string) (string, error)
}

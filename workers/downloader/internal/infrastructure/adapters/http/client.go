package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/publicsuffix"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
	"reportfetcher/workers/downloader/internal/domain/model"
)

const (
	maxPageSize = 10 << 20
	sniffLength = 512
)

// Client is the session client. It carries one cookie jar across every
// request it issues and mimics a desktop browser.
type Client struct {
	mu         sync.Mutex
	client     *http.Client
	config     config.HTTPConfig
	retry      config.RetryConfig
	proxyURL   *url.URL
	lastStatus int
	headers    map[string]string
	logger     ports.Logger
	metrics    ports.Metrics
}

// NewClient creates a session client. An empty proxyURL connects directly.
func NewClient(cfg config.HTTPConfig, retry config.RetryConfig, proxyURL string, logger ports.Logger, metrics ports.Metrics) (*Client, error) {
	var proxy *url.URL
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", proxyURL, err)
		}
		proxy = u
	}

	jar, err := newJar()
	if err != nil {
		return nil, err
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8192
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}

	return &Client{
		client: &http.Client{
			Jar:       jar,
			Transport: newTransport(proxy),
		},
		config:   cfg,
		retry:    retry,
		proxyURL: proxy,
		headers:  defaultHeaders(cfg),
		logger:   logger,
		metrics:  metrics,
	}, nil
}

func newJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

func newTransport(proxy *url.URL) *http.Transport {
	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	return t
}

func defaultHeaders(cfg config.HTTPConfig) map[string]string {
	return map[string]string{
		"User-Agent":                cfg.UserAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language":           cfg.AcceptLanguage,
		"Upgrade-Insecure-Requests": "1",
		"sec-ch-ua":                 `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
		"sec-ch-ua-mobile":          "?0",
		"sec-ch-ua-platform":        `"macOS"`,
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Cache-Control":             "max-age=0",
	}
}

// Request issues a request with retry. Server errors, timeouts and
// connection errors are retried with exponential backoff; any other status
// of 400 or above, 403 included, is returned immediately.
func (c *Client) Request(ctx context.Context, method, rawURL string, headers map[string]string, timeout time.Duration) (*model.Page, error) {
	if timeout <= 0 {
		timeout = c.config.PageTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		page, err := c.do(ctx, method, rawURL, headers, timeout)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var derr *model.DownloadError
		if errors.As(err, &derr) && !derr.IsRetryable() {
			c.metrics.IncrementCounter("session.request.failed", map[string]string{"type": string(derr.Type)})
			return nil, err
		}

		lastErr = err
		c.logger.Warn("request failed",
			"url", rawURL,
			"attempt", attempt,
			"max_attempts", c.retry.MaxAttempts,
			"error", err)

		if attempt < c.retry.MaxAttempts {
			c.metrics.IncrementCounter("session.request.retry", nil)
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	c.metrics.IncrementCounter("session.request.failed", map[string]string{"type": "exhausted"})
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

func (c *Client) do(ctx context.Context, method, rawURL string, headers map[string]string, timeout time.Duration) (*model.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, rawURL, headers)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify(err, rawURL)
	}
	defer resp.Body.Close()

	c.metrics.RecordHistogram("session.request.duration_ms", float64(time.Since(start).Milliseconds()),
		map[string]string{"status": statusClass(resp.StatusCode)})

	if resp.StatusCode >= http.StatusBadRequest {
		if resp.StatusCode == http.StatusForbidden {
			c.logForbidden(resp, rawURL, req.Header.Get("Referer"))
		}
		return nil, model.NewStatusError(resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, classify(err, rawURL)
	}

	return &model.Page{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// DownloadFile streams the archive to savePath in fixed-size chunks. With
// resume enabled and a partial file present, a Range request is sent; a 206
// appends and a 200 rewrites the file.
func (c *Client) DownloadFile(ctx context.Context, rawURL, savePath, referer string) model.DownloadResult {
	c.setLastStatus(0)
	start := time.Now()

	headers := downloadHeaders(referer)
	var existing int64
	if c.config.ResumeDownloads {
		if info, err := os.Stat(savePath); err == nil && info.Size() > 0 {
			existing = info.Size()
			headers["Range"] = fmt.Sprintf("bytes=%d-", existing)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.FileTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, rawURL, headers)
	if err != nil {
		return transient(0, err.Error())
	}

	c.logger.Info("downloading file", "url", rawURL, "resume_from", existing)
	c.logger.Debug("download referer", "referer", referer)

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.IncrementCounter("session.download.failed", map[string]string{"reason": "network"})
		return transient(0, classify(err, rawURL).Error())
	}
	defer resp.Body.Close()
	c.setLastStatus(resp.StatusCode)

	if resp.StatusCode == http.StatusForbidden {
		c.logForbidden(resp, rawURL, referer)
		c.metrics.IncrementCounter("session.download.denied", map[string]string{"reason": "forbidden"})
		return model.DownloadResult{
			Outcome:    model.OutcomeAccessDenied,
			StatusCode: resp.StatusCode,
			Reason:     "403 forbidden",
		}
	}
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && existing > 0 {
		// the partial file cannot be resumed; start over on the next attempt
		os.Remove(savePath)
		return transient(resp.StatusCode, "range not satisfiable")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.metrics.IncrementCounter("session.download.failed", map[string]string{"reason": statusClass(resp.StatusCode)})
		return transient(resp.StatusCode, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}

	body := bufio.NewReaderSize(resp.Body, max(c.config.ChunkSize, sniffLength))
	resumed := resp.StatusCode == http.StatusPartialContent && existing > 0
	if !resumed && looksLikeArchive(rawURL) && c.disguised(resp, body) {
		c.setLastStatus(http.StatusForbidden)
		c.logger.Error("received an HTML page instead of the archive",
			"url", rawURL,
			"content_type", resp.Header.Get("Content-Type"),
			"referer", referer)
		c.metrics.IncrementCounter("session.download.denied", map[string]string{"reason": "html_body"})
		return model.DownloadResult{
			Outcome:    model.OutcomeAccessDenied,
			StatusCode: resp.StatusCode,
			Reason:     "html body instead of archive",
		}
	}
	if existing > 0 && !resumed {
		c.logger.Warn("server ignored range request, downloading from scratch", "url", rawURL)
		existing = 0
	}

	written, err := c.writeBody(body, savePath, resumed, resp.ContentLength)
	if err != nil {
		c.logger.Error("download interrupted", "url", rawURL, "written", written, "error", err)
		c.metrics.IncrementCounter("session.download.failed", map[string]string{"reason": "body"})
		return transient(resp.StatusCode, err.Error())
	}

	total := existing + written
	c.logger.Info("download finished",
		"path", savePath,
		"size", humanize.Bytes(uint64(total)),
		"resumed", resumed)
	c.metrics.RecordHistogram("session.download.size_bytes", float64(total), nil)
	c.metrics.RecordHistogram("session.download.duration_ms", float64(time.Since(start).Milliseconds()), nil)
	c.metrics.IncrementCounter("session.download.completed", nil)

	return model.DownloadResult{
		Outcome:    model.OutcomeSuccess,
		StatusCode: resp.StatusCode,
		Bytes:      total,
		Resumed:    resumed,
	}
}

func (c *Client) writeBody(body io.Reader, savePath string, appendMode bool, contentLength int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(savePath, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}

	var written int64
	chunks := 0
	buf := make([]byte, c.config.ChunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				f.Close()
				return written, fmt.Errorf("write file: %w", err)
			}
			written += int64(n)
			chunks++
			if chunks%100 == 0 {
				c.logger.Debug("download progress", "written", humanize.Bytes(uint64(written)))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			return written, fmt.Errorf("read body: %w", readErr)
		}
	}

	if err := f.Close(); err != nil {
		return written, fmt.Errorf("close file: %w", err)
	}
	if contentLength > 0 && written != contentLength {
		return written, fmt.Errorf("short body: got %d of %d bytes", written, contentLength)
	}
	return written, nil
}

// disguised reports whether a response meant to carry an archive is an
// HTML error page, by header or by sniffing the first bytes.
func (c *Client) disguised(resp *http.Response, body *bufio.Reader) bool {
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		return true
	}
	head, _ := body.Peek(sniffLength)
	if len(head) == 0 {
		return false
	}
	return mimetype.Detect(head).Is("text/html")
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, model.NewDownloadError(model.InvalidURLError, fmt.Sprintf("failed to create request: %v", err), rawURL)
	}
	for key, value := range c.headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func (c *Client) logForbidden(resp *http.Response, rawURL, referer string) {
	c.logger.Error("access denied by CDN",
		"url", rawURL,
		"referer", referer,
		"x_tengine_error", resp.Header.Get("X-Tengine-Error"),
		"server", resp.Header.Get("Server"))
}

// LastStatus returns the status code of the most recent DownloadFile call.
func (c *Client) LastStatus() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatus
}

func (c *Client) setLastStatus(status int) {
	c.mu.Lock()
	c.lastStatus = status
	c.mu.Unlock()
}

// ClearCookies replaces the cookie jar. Needed after every identity switch.
func (c *Client) ClearCookies() {
	jar, err := newJar()
	if err != nil {
		c.logger.Error("failed to reset cookie jar", "error", err)
		return
	}
	c.mu.Lock()
	c.client.Jar = jar
	c.mu.Unlock()
	c.logger.Debug("cookies cleared")
}

// UseDirect drops the forwarding proxy from the transport.
func (c *Client) UseDirect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proxyURL == nil {
		return
	}
	c.client.CloseIdleConnections()
	c.client.Transport = newTransport(nil)
	c.proxyURL = nil
	c.logger.Warn("session switched to direct connection")
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

func (c *Client) backoff(attempt int) time.Duration {
	multiplier := c.retry.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	d := time.Duration(float64(c.retry.InitialBackoff) * math.Pow(multiplier, float64(attempt)))
	if c.retry.MaxBackoff > 0 && d > c.retry.MaxBackoff {
		d = c.retry.MaxBackoff
	}
	return d
}

func downloadHeaders(referer string) map[string]string {
	headers := map[string]string{
		"Accept":         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Sec-Fetch-Dest": "document",
		"Sec-Fetch-Mode": "navigate",
		"Sec-Fetch-Site": "none",
	}
	if referer != "" {
		headers["Referer"] = referer
		headers["Sec-Fetch-Site"] = "cross-site"
	}
	return headers
}

func classify(err error, rawURL string) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return model.NewDownloadError(model.TimeoutError, err.Error(), rawURL)
	}
	return model.NewDownloadError(model.NetworkError, err.Error(), rawURL)
}

func transient(status int, reason string) model.DownloadResult {
	return model.DownloadResult{
		Outcome:    model.OutcomeTransient,
		StatusCode: status,
		Reason:     reason,
	}
}

func looksLikeArchive(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(filepath.Ext(u.Path))
	return ext == ".zip" || ext == ".rar" || ext == ".7z"
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}

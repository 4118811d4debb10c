package usecase

import (
	"context"
	"errors"
	"time"

	"reportfetcher/workers/downloader/internal/application/ports"
	"reportfetcher/workers/downloader/internal/domain/model"
)

// NewProxyRotation builds the rotation callback used by orchestrators. The
// current node is marked failed and a random healthy node under maxLatency
// is selected. When the pool is exhausted the session falls back to a
// direct connection instead of failing the report.
func NewProxyRotation(pool ports.ProxyPool, maxLatency time.Duration, logger ports.Logger, metrics ports.Metrics) ports.RotateFunc {
	return func(ctx context.Context, session ports.SessionClient) error {
		previous := pool.Current()
		if previous != nil {
			pool.MarkFailed(previous)
		}

		node, err := pool.SelectRandom(ctx, maxLatency)
		if errors.Is(err, model.ErrNoHealthyNode) {
			logger.Warn("proxy pool exhausted, continuing on a direct connection")
			metrics.IncrementCounter("proxy.exhausted", nil)
			session.UseDirect()
			return nil
		}
		if err != nil {
			return err
		}

		from := ""
		if previous != nil {
			from = previous.Name
		}
		logger.Info("switched proxy node",
			"from", from,
			"to", node.Name,
			"latency_ms", node.Latency.Milliseconds(),
			"endpoint", pool.Endpoint())
		metrics.IncrementCounter("proxy.rotation", nil)
		return nil
	}
}

// NewSessionReset is the rotation used without a proxy pool: the network
// path stays the same and only the session identity is renewed.
func NewSessionReset(logger ports.Logger, metrics ports.Metrics) ports.RotateFunc {
	return func(ctx context.Context, session ports.SessionClient) error {
		logger.Info("no proxy pool configured, renewing session only")
		metrics.IncrementCounter("proxy.session_reset", nil)
		return nil
	}
}

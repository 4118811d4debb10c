package handler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"reportfetcher/workers/downloader/internal/application/ports"
	"reportfetcher/workers/downloader/internal/domain/model"
)

func LoggingMiddleware(stage string, logger ports.Logger) Middleware {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context) (model.BatchStats, error) {
			start := time.Now()

			logger.Info("Starting stage", "stage", stage)

			stats, err := next(ctx)

			fields := []interface{}{
				"stage", stage,
				"success", stats.Success,
				"failed", stats.Failed,
				"skipped", stats.Skipped,
				"success_rate", fmt.Sprintf("%.1f%%", stats.SuccessRate()),
				"duration_ms", time.Since(start).Milliseconds(),
			}

			if err != nil {
				logger.Error("Stage failed", append(fields, "error", err)...)
			} else if stats.Failed > 0 {
				logger.Warn("Stage completed with failures", fields...)
			} else {
				logger.Info("Stage completed", fields...)
			}

			return stats, err
		}
	}
}

func MetricsMiddleware(stage string, metrics ports.Metrics) Middleware {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context) (model.BatchStats, error) {
			start := time.Now()
			tags := map[string]string{"stage": stage}

			metrics.IncrementCounter("stage.runs", tags)

			stats, err := next(ctx)

			metrics.RecordHistogram("stage.duration_ms", float64(time.Since(start).Milliseconds()), tags)
			metrics.RecordGauge("stage.reports.success", float64(stats.Success), tags)
			metrics.RecordGauge("stage.reports.failed", float64(stats.Failed), tags)
			metrics.RecordGauge("stage.reports.skipped", float64(stats.Skipped), tags)

			if err != nil {
				metrics.IncrementCounter("stage.errors", tags)
			}

			return stats, err
		}
	}
}

// RecoveryMiddleware turns a panic inside a stage into an error so the
// deferred cleanup of the command still runs
func RecoveryMiddleware(stage string, logger ports.Logger) Middleware {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context) (stats model.BatchStats, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Panic recovered",
						"stage", stage,
						"panic", fmt.Sprintf("%v", r),
						"stack", string(debug.Stack()))

					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()

			return next(ctx)
		}
	}
}

// TimeoutMiddleware bounds the stage duration. Work already recorded stays
// recorded; the stage stops at its next cancellation check.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next StageFunc) StageFunc {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context) (model.BatchStats, error) {
			timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			stats, err := next(timeoutCtx)
			if err != nil && timeoutCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return stats, fmt.Errorf("stage timed out after %v: %w", timeout, err)
			}
			return stats, err
		}
	}
}

package observability

import (
	"fmt"
	"io"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
	cwAdapter "reportfetcher/shared/infrastructure/observability/adapters/cloudwatch"
	promAdapter "reportfetcher/shared/infrastructure/observability/adapters/prometheus"
	"reportfetcher/shared/infrastructure/observability/adapters/stdout"
)

// createObservability builds the logger and metrics selected by the adapters config
func createObservability(cfg *config.Config) (ports.Logger, ports.Metrics, error) {
	var logger ports.Logger
	switch cfg.Adapters.Logger {
	case "stdout", "":
		logger = stdout.NewLogger(stdout.LoggerOptions{
			Level: cfg.LogLevel,
			JSON:  cfg.LogFormat == "json",
		})
	case "cloudwatch":
		cw, err := cwAdapter.NewLogger(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create CloudWatch logger: %w", err)
		}
		logger = cw
	default:
		return nil, nil, fmt.Errorf("unsupported logger adapter: %s", cfg.Adapters.Logger)
	}

	var metrics ports.Metrics
	switch cfg.Adapters.Metrics {
	case "stdout", "":
		// Metric lines only show up at debug level to keep the console readable
		metrics = stdout.NewMetrics(stdout.MetricsOptions{
			JSON:  cfg.LogFormat == "json",
			Quiet: cfg.LogLevel != "debug",
		})
	case "prometheus":
		metrics = promAdapter.New(cfg.ServiceName, nil)
	case "cloudwatch":
		cw, err := cwAdapter.NewMetrics(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create CloudWatch metrics: %w", err)
		}
		metrics = cw
	default:
		return nil, nil, fmt.Errorf("unsupported metrics adapter: %s", cfg.Adapters.Metrics)
	}

	return logger, metrics, nil
}

// NewDiscard returns observability that drops logs and keeps metrics in memory
func NewDiscard() ports.Observability {
	cfg := config.DefaultConfig()
	cfg.Environment = "test"

	return New(
		cfg,
		stdout.NewLogger(stdout.LoggerOptions{Output: io.Discard}),
		stdout.NewMetrics(stdout.MetricsOptions{Quiet: true}),
	)
}

package config

import (
	"reportfetcher/shared/utils"
)

// parse reads configuration from environment variables
func parse() (*Config, error) {
	d := DefaultConfig()

	cfg := &Config{
		// Core
		Environment: utils.GetEnv("ENVIRONMENT", d.Environment),
		ServiceName: utils.GetEnv("SERVICE_NAME", d.ServiceName),
		LogLevel:    utils.GetEnv("LOG_LEVEL", d.LogLevel),
		LogFormat:   utils.GetEnv("LOG_FORMAT", d.LogFormat),
		Version:     utils.GetEnv("SERVICE_VERSION", d.Version),

		// Adapter selection
		Adapters: AdapterConfig{
			Database: utils.GetEnv("ADAPTER_DATABASE", d.Adapters.Database),
			Logger:   utils.GetEnv("ADAPTER_LOGGER", d.Adapters.Logger),
			Metrics:  utils.GetEnv("ADAPTER_METRICS", ""),
			Storage:  utils.GetEnv("ADAPTER_STORAGE", ""),
			Queue:    utils.GetEnv("ADAPTER_QUEUE", ""),
		},

		// HTTP session
		HTTP: HTTPConfig{
			PageTimeout:     utils.GetEnvDuration("HTTP_PAGE_TIMEOUT", d.HTTP.PageTimeout),
			FileTimeout:     utils.GetEnvDuration("HTTP_FILE_TIMEOUT", d.HTTP.FileTimeout),
			UserAgent:       utils.GetEnv("HTTP_USER_AGENT", d.HTTP.UserAgent),
			AcceptLanguage:  utils.GetEnv("HTTP_ACCEPT_LANGUAGE", d.HTTP.AcceptLanguage),
			ChunkSize:       utils.GetEnvInt("HTTP_CHUNK_SIZE", d.HTTP.ChunkSize),
			ResumeDownloads: utils.GetEnvBool("HTTP_RESUME_DOWNLOADS", false),
		},

		// Proxy pool
		Proxy: ProxyConfig{
			Enabled:         utils.GetEnvBool("PROXY_ENABLED", d.Proxy.Enabled),
			Required:        utils.GetEnvBool("PROXY_REQUIRED", false),
			ClashConfigPath: utils.GetEnv("PROXY_CLASH_CONFIG", d.Proxy.ClashConfigPath),
			ForwardURL:      utils.GetEnv("PROXY_FORWARD_URL", d.Proxy.ForwardURL),
			ProbeTimeout:    utils.GetEnvDuration("PROXY_PROBE_TIMEOUT", d.Proxy.ProbeTimeout),
			ProbeWorkers:    utils.GetEnvInt("PROXY_PROBE_WORKERS", d.Proxy.ProbeWorkers),
			MaxLatency:      utils.GetEnvDuration("PROXY_MAX_LATENCY", d.Proxy.MaxLatency),
			Region:          utils.GetEnv("PROXY_REGION", ""),
		},

		Site: SiteConfig{
			BaseURL:         utils.GetEnv("SITE_BASE_URL", d.Site.BaseURL),
			PostURL:         utils.GetEnv("SITE_POST_URL", d.Site.PostURL),
			DownloadPageURL: utils.GetEnv("SITE_DOWNLOAD_PAGE_URL", d.Site.DownloadPageURL),
		},

		Download: DownloadConfig{
			Dir:               utils.GetEnv("DOWNLOAD_DIR", d.Download.Dir),
			MaxAttempts:       utils.GetEnvInt("DOWNLOAD_MAX_ATTEMPTS", d.Download.MaxAttempts),
			RotationThreshold: utils.GetEnvInt("DOWNLOAD_ROTATION_THRESHOLD", d.Download.RotationThreshold),
			MinFileSize:       utils.GetEnvInt64("DOWNLOAD_MIN_FILE_SIZE", d.Download.MinFileSize),
			ReportDelay:       utils.GetEnvDuration("DOWNLOAD_REPORT_DELAY", d.Download.ReportDelay),
			PageVisitDelay:    utils.GetEnvDuration("DOWNLOAD_PAGE_VISIT_DELAY", d.Download.PageVisitDelay),
			RotationDelay:     utils.GetEnvDuration("DOWNLOAD_ROTATION_DELAY", d.Download.RotationDelay),
			Workers:           utils.GetEnvInt("DOWNLOAD_WORKERS", d.Download.Workers),
			RequestsPerSecond: utils.GetEnvFloat64("DOWNLOAD_REQUESTS_PER_SECOND", 0),
			BatchLimit:        utils.GetEnvInt("DOWNLOAD_BATCH_LIMIT", d.Download.BatchLimit),
		},

		Archive: ArchiveConfig{
			AutoExtract:       utils.GetEnvBool("ARCHIVE_AUTO_EXTRACT", d.Archive.AutoExtract),
			AutoRename:        utils.GetEnvBool("ARCHIVE_AUTO_RENAME", d.Archive.AutoRename),
			KeepZip:           utils.GetEnvBool("ARCHIVE_KEEP_ZIP", d.Archive.KeepZip),
			MaxFilenameLength: utils.GetEnvInt("ARCHIVE_MAX_FILENAME_LENGTH", d.Archive.MaxFilenameLength),
		},

		Retry: RetryConfig{
			MaxAttempts:       utils.GetEnvInt("RETRY_MAX_ATTEMPTS", d.Retry.MaxAttempts),
			InitialBackoff:    utils.GetEnvDuration("RETRY_INITIAL_BACKOFF", d.Retry.InitialBackoff),
			MaxBackoff:        utils.GetEnvDuration("RETRY_MAX_BACKOFF", d.Retry.MaxBackoff),
			BackoffMultiplier: utils.GetEnvFloat64("RETRY_BACKOFF_MULTIPLIER", d.Retry.BackoffMultiplier),
		},

		// Database Configuration
		Database: DatabaseConfig{
			Host:     utils.GetEnv("DB_HOST", d.Database.Host),
			Port:     utils.GetEnvInt("DB_PORT", d.Database.Port),
			Database: utils.GetEnv("DB_NAME", d.Database.Database),
			Username: utils.GetEnv("DB_USER", d.Database.Username),
			Password: utils.GetEnv("DB_PASSWORD", d.Database.Password),
			SSLMode:  utils.GetEnv("DB_SSL_MODE", d.Database.SSLMode),

			// Connection pool
			MaxOpenConns: utils.GetEnvInt("DB_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: utils.GetEnvInt("DB_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},

		SQLite: SQLiteConfig{
			Path: utils.GetEnv("SQLITE_PATH", d.SQLite.Path),
		},

		// Storage Configuration
		Storage: StorageConfig{
			BucketOrPath: utils.GetEnv("STORAGE_BUCKET_OR_PATH", d.Storage.BucketOrPath),
			MaxRetries:   utils.GetEnvInt("STORAGE_MAX_RETRIES", d.Storage.MaxRetries),
			Timeout:      utils.GetEnvDuration("STORAGE_TIMEOUT", d.Storage.Timeout),
			S3: S3Config{
				Region:          utils.GetEnv("AWS_REGION", d.Storage.S3.Region),
				AccessKeyID:     utils.GetEnv("AWS_ACCESS_KEY_ID", ""),
				SecretAccessKey: utils.GetEnv("AWS_SECRET_ACCESS_KEY", ""),
				Endpoint:        utils.GetEnv("S3_ENDPOINT", ""),
			},
		},

		Queue: QueueConfig{
			Topics: QueueTopics{
				Downloaded: utils.GetEnv("QUEUE_DOWNLOADED", d.Queue.Topics.Downloaded),
				Extracted:  utils.GetEnv("QUEUE_EXTRACTED", d.Queue.Topics.Extracted),
			},
			RabbitMQ: RabbitMQConfig{
				URL:     utils.GetEnv("RABBITMQ_URL", d.Queue.RabbitMQ.URL),
				Timeout: utils.GetEnvDuration("RABBITMQ_TIMEOUT", d.Queue.RabbitMQ.Timeout),
			},
			SQS: SQSConfig{
				Region:   utils.GetEnv("SQS_REGION", utils.GetEnv("AWS_REGION", d.Queue.SQS.Region)),
				Endpoint: utils.GetEnv("SQS_ENDPOINT", ""),
			},
		},

		// Observability Configuration
		Observability: ObservabilityConfig{
			MetricsAddr:         utils.GetEnv("METRICS_ADDR", ""),
			CloudWatchRegion:    utils.GetEnv("CLOUDWATCH_REGION", utils.GetEnv("AWS_REGION", d.Observability.CloudWatchRegion)),
			CloudWatchNamespace: utils.GetEnv("CLOUDWATCH_NAMESPACE", d.Observability.CloudWatchNamespace),
			CloudWatchLogGroup:  utils.GetEnv("CLOUDWATCH_LOG_GROUP", ""),
			CloudWatchLogStream: utils.GetEnv("CLOUDWATCH_LOG_STREAM", ""),
		},
	}

	return cfg, nil
}

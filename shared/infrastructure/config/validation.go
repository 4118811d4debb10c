package config

import (
	"fmt"
	"strings"
)

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errors []string

	// Core validations
	if c.ServiceName == "" {
		errors = append(errors, "SERVICE_NAME is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s", c.LogLevel))
	}

	// Validate adapters
	if err := c.Adapters.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.HTTP.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.Proxy.Enabled {
		if err := c.Proxy.Validate(); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if err := c.Site.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.Download.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.Archive.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	// Validate storage
	if err := c.Storage.Validate(c.Adapters); err != nil {
		errors = append(errors, err.Error())
	}

	if c.Adapters.Queue == "rabbitmq" {
		if err := c.Queue.RabbitMQ.Validate(); err != nil {
			errors = append(errors, err.Error())
		}
	}

	// Validate observability if using CloudWatch
	if c.Adapters.Metrics == "cloudwatch" || c.Adapters.Logger == "cloudwatch" {
		if err := c.Observability.Validate(c.Adapters); err != nil {
			errors = append(errors, err.Error())
		}
	}

	// Validate retry config
	if err := c.Retry.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	switch c.Adapters.Database {
	case "postgres":
		if err := c.Database.Validate(); err != nil {
			errors = append(errors, err.Error())
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			errors = append(errors, "SQLITE_PATH is required for sqlite database")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Validate validates adapter configuration
func (a *AdapterConfig) Validate() error {
	validDatabases := map[string]bool{"sqlite": true, "postgres": true}
	if !validDatabases[a.Database] {
		return fmt.Errorf("invalid database adapter: %s (must be sqlite or postgres)", a.Database)
	}

	validStorage := map[string]bool{"": true, "s3": true, "filesystem": true}
	if !validStorage[a.Storage] {
		return fmt.Errorf("invalid storage adapter: %s (must be s3 or filesystem)", a.Storage)
	}

	validLogger := map[string]bool{"stdout": true, "cloudwatch": true}
	if !validLogger[a.Logger] {
		return fmt.Errorf("invalid logger adapter: %s (must be stdout or cloudwatch)", a.Logger)
	}

	validMetrics := map[string]bool{"cloudwatch": true, "stdout": true, "prometheus": true}
	if !validMetrics[a.Metrics] {
		return fmt.Errorf("invalid metrics adapter: %s (must be cloudwatch, prometheus or stdout)", a.Metrics)
	}

	validQueue := map[string]bool{"": true, "rabbitmq": true, "sqs": true}
	if !validQueue[a.Queue] {
		return fmt.Errorf("invalid queue adapter: %s (must be rabbitmq or sqs)", a.Queue)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.PageTimeout <= 0 {
		return fmt.Errorf("HTTP_PAGE_TIMEOUT must be positive")
	}
	if h.FileTimeout <= 0 {
		return fmt.Errorf("HTTP_FILE_TIMEOUT must be positive")
	}
	if h.UserAgent == "" {
		return fmt.Errorf("HTTP_USER_AGENT is required")
	}
	return nil
}

// Validate validates proxy configuration
func (p *ProxyConfig) Validate() error {
	if p.ClashConfigPath == "" {
		return fmt.Errorf("PROXY_CLASH_CONFIG is required when the proxy pool is enabled")
	}
	if p.ProbeTimeout <= 0 {
		return fmt.Errorf("PROXY_PROBE_TIMEOUT must be positive")
	}
	if p.ProbeWorkers <= 0 {
		return fmt.Errorf("PROXY_PROBE_WORKERS must be positive")
	}
	if p.MaxLatency <= 0 {
		return fmt.Errorf("PROXY_MAX_LATENCY must be positive")
	}
	return nil
}

// Validate validates site configuration
func (s *SiteConfig) Validate() error {
	if !strings.Contains(s.DownloadPageURL, "%s") {
		return fmt.Errorf("SITE_DOWNLOAD_PAGE_URL must contain a %%s placeholder for the post id")
	}
	if !strings.Contains(s.PostURL, "%s") {
		return fmt.Errorf("SITE_POST_URL must contain a %%s placeholder for the post id")
	}
	return nil
}

// Validate validates download policy
func (d *DownloadConfig) Validate() error {
	if d.Dir == "" {
		return fmt.Errorf("DOWNLOAD_DIR is required")
	}
	if d.MaxAttempts <= 0 {
		return fmt.Errorf("DOWNLOAD_MAX_ATTEMPTS must be positive")
	}
	if d.RotationThreshold <= 0 {
		return fmt.Errorf("DOWNLOAD_ROTATION_THRESHOLD must be positive")
	}
	if d.MinFileSize < 0 {
		return fmt.Errorf("DOWNLOAD_MIN_FILE_SIZE cannot be negative")
	}
	if d.ReportDelay < 0 || d.PageVisitDelay < 0 || d.RotationDelay < 0 {
		return fmt.Errorf("download delays cannot be negative")
	}
	if d.Workers <= 0 {
		return fmt.Errorf("DOWNLOAD_WORKERS must be positive")
	}
	if d.RequestsPerSecond < 0 {
		return fmt.Errorf("DOWNLOAD_REQUESTS_PER_SECOND cannot be negative")
	}
	return nil
}

// Validate validates archive configuration
func (a *ArchiveConfig) Validate() error {
	if a.MaxFilenameLength < 16 {
		return fmt.Errorf("ARCHIVE_MAX_FILENAME_LENGTH must be at least 16")
	}
	return nil
}

// Validate validates RabbitMQ configuration
func (r *RabbitMQConfig) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is required for RabbitMQ adapter")
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("RABBITMQ_TIMEOUT must be positive")
	}
	return nil
}

// Validate validates Storage configuration
func (s *StorageConfig) Validate(adapters AdapterConfig) error {
	if s.MaxRetries < 0 {
		return fmt.Errorf("STORAGE_MAX_RETRIES cannot be negative")
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be positive")
	}

	// Validate based on selected storage adapter
	switch adapters.Storage {
	case "s3":
		if s.BucketOrPath == "" {
			return fmt.Errorf("STORAGE_BUCKET_OR_PATH (bucket) is required for S3 storage")
		}
		if s.S3.Region == "" {
			return fmt.Errorf("AWS_REGION is required for S3 storage")
		}
	case "filesystem":
		if s.BucketOrPath == "" {
			return fmt.Errorf("STORAGE_BUCKET_OR_PATH (path) is required for filesystem storage")
		}
	}

	return nil
}

// Validate validates Observability configuration
func (o *ObservabilityConfig) Validate(adapters AdapterConfig) error {
	if adapters.Metrics != "cloudwatch" && adapters.Logger != "cloudwatch" {
		return nil
	}
	if o.CloudWatchRegion == "" {
		return fmt.Errorf("CLOUDWATCH_REGION is required for CloudWatch")
	}
	if adapters.Metrics == "cloudwatch" && o.CloudWatchNamespace == "" {
		return fmt.Errorf("CLOUDWATCH_NAMESPACE is required for CloudWatch metrics")
	}
	return nil
}

// Validate validates Retry configuration
func (r *RetryConfig) Validate() error {
	if r.MaxAttempts < 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS cannot be negative")
	}
	if r.InitialBackoff <= 0 {
		return fmt.Errorf("RETRY_INITIAL_BACKOFF must be positive")
	}
	if r.MaxBackoff <= 0 {
		return fmt.Errorf("RETRY_MAX_BACKOFF must be positive")
	}
	if r.BackoffMultiplier < 1 {
		return fmt.Errorf("RETRY_BACKOFF_MULTIPLIER must be at least 1")
	}
	return nil
}

// Validate validates Database configuration
func (d *DatabaseConfig) Validate() error {
	if d.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535")
	}
	if d.Database == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if d.Username == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if d.MaxOpenConns < 0 || d.MaxIdleConns < 0 {
		return fmt.Errorf("database pool sizes cannot be negative")
	}
	return nil
}

// DSN returns the lib/pq connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
	)
}

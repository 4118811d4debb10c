package config

import (
	"time"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	LogFormat   string // "text" or "json"
	Version     string

	// Adapter selection
	Adapters AdapterConfig

	// Component configurations
	HTTP          HTTPConfig
	Proxy         ProxyConfig
	Site          SiteConfig
	Download      DownloadConfig
	Archive       ArchiveConfig
	Retry         RetryConfig
	Database      DatabaseConfig
	SQLite        SQLiteConfig
	Storage       StorageConfig
	Queue         QueueConfig
	Observability ObservabilityConfig
}

// AdapterConfig specifies which implementations to use
type AdapterConfig struct {
	Database string // "sqlite", "postgres"
	Logger   string // "stdout"
	Metrics  string // "stdout", "prometheus", "cloudwatch"
	Storage  string // "", "filesystem", "s3" - document mirror, empty disables
	Queue    string // "", "rabbitmq", "sqs" - event publishing, empty disables
}

// HTTPConfig shapes the session client
type HTTPConfig struct {
	PageTimeout     time.Duration // download page visit
	FileTimeout     time.Duration // archive transfer
	UserAgent       string
	AcceptLanguage  string
	ChunkSize       int
	ResumeDownloads bool // send Range for partial files
}

// ProxyConfig describes the node list and the local forwarding agent
type ProxyConfig struct {
	Enabled         bool
	Required        bool // fail the run when no node survives the initial probe
	ClashConfigPath string
	ForwardURL      string // overridden by the Clash mixed-port when present
	ProbeTimeout    time.Duration
	ProbeWorkers    int
	MaxLatency      time.Duration
	Region          string
}

// SiteConfig holds the target site URL patterns
type SiteConfig struct {
	BaseURL         string
	PostURL         string // fmt pattern taking the post id
	DownloadPageURL string // fmt pattern taking the post id
}

// DownloadConfig holds orchestration policy
type DownloadConfig struct {
	Dir               string
	MaxAttempts       int
	RotationThreshold int
	MinFileSize       int64
	ReportDelay       time.Duration
	PageVisitDelay    time.Duration
	RotationDelay     time.Duration
	Workers           int
	RequestsPerSecond float64 // shared limiter in concurrent mode, 0 disables
	BatchLimit        int
}

// ArchiveConfig holds extraction behaviour
type ArchiveConfig struct {
	AutoExtract       bool
	AutoRename        bool
	KeepZip           bool
	MaxFilenameLength int
}

// RetryConfig drives request level backoff in the session client
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	// Connection settings
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	MaxOpenConns int
	MaxIdleConns int
	SSLMode      string
}

// SQLiteConfig holds the embedded store location
type SQLiteConfig struct {
	Path string // ":memory:" for an in-memory store
}

type StorageConfig struct {
	// Common fields for all storage types
	BucketOrPath string
	MaxRetries   int
	Timeout      time.Duration

	// S3-specific configuration
	S3 S3Config
}

// S3Config holds S3-specific configuration
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // For MinIO or S3-compatible services
}

// QueueConfig holds event publishing configuration
type QueueConfig struct {
	Topics QueueTopics

	// Connection settings based on adapter
	RabbitMQ RabbitMQConfig
	SQS      SQSConfig
}

// QueueTopics names the events this worker emits
type QueueTopics struct {
	Downloaded string
	Extracted  string
}

// RabbitMQConfig - minimal config
type RabbitMQConfig struct {
	URL     string // Connection URL
	Timeout time.Duration
}

// SQSConfig - minimal config
type SQSConfig struct {
	Region   string // AWS Region
	Endpoint string // For LocalStack
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	MetricsAddr         string // promhttp listen address, empty disables
	CloudWatchRegion    string
	CloudWatchNamespace string
	CloudWatchLogGroup  string // defaults to /<service>/<env>
	CloudWatchLogStream string // defaults to <service>-<env>-<unix time>
}

package storage

import (
	"fmt"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
	"reportfetcher/shared/infrastructure/storage/adapters/fs"
	"reportfetcher/shared/infrastructure/storage/adapters/s3"
)

// NewStorage creates the document mirror selected by the adapters config.
// An empty adapter disables mirroring and returns nil.
func NewStorage(cfg *config.Config, obs ports.Observability) (ports.Storage, error) {
	if cfg.Adapters.Storage == "" {
		return nil, nil
	}

	logger, metrics, err := obs.ComponentsScoped("storage")
	if err != nil {
		return nil, err
	}

	switch cfg.Adapters.Storage {
	case "s3":
		logger.Info("Creating S3 storage adapter",
			"bucket", cfg.Storage.BucketOrPath,
			"region", cfg.Storage.S3.Region)
		return s3.New(&cfg.Storage, logger, metrics)

	case "filesystem":
		logger.Info("Creating filesystem storage adapter",
			"path", cfg.Storage.BucketOrPath)
		return fs.NewStorage(cfg.Storage.BucketOrPath, logger, metrics)

	default:
		return nil, fmt.Errorf("unsupported storage adapter: %s", cfg.Adapters.Storage)
	}
}

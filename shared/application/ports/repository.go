package ports

import (
	"context"
	"errors"

	"reportfetcher/shared/domain/entity"
	"reportfetcher/shared/domain/entity/download"
	"reportfetcher/shared/domain/entity/extraction"
	"reportfetcher/shared/domain/entity/report"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("entity not found")

// BaseRepository defines common operations for all repositories
type BaseRepository[T any] interface {
	Get(ctx context.Context, id int64) (*T, error)
	ListAll(ctx context.Context) ([]*T, error)
	CountAll(ctx context.Context) (int64, error)
}

type CategoryRepository interface {
	BaseRepository[entity.Category]
	// Upsert inserts the category unless its category_id is already recorded.
	Upsert(ctx context.Context, category *entity.Category) (bool, error)
	GetByCategoryID(ctx context.Context, categoryID string) (*entity.Category, error)
}

type ReportRepository interface {
	BaseRepository[entity.Report]
	// Create inserts the report unless its post_id is already recorded.
	Create(ctx context.Context, r *entity.Report) (bool, error)
	Update(ctx context.Context, r *entity.Report) error
	GetByPostID(ctx context.Context, postID string) (*entity.Report, error)
	ListByStatus(ctx context.Context, status report.Status, limit int) ([]*entity.Report, error)
	ListByCategory(ctx context.Context, categoryID string, status report.Status, limit int) ([]*entity.Report, error)
	// ListByCategoryName filters on the joined category name before limit applies.
	ListByCategoryName(ctx context.Context, name string, status report.Status, limit int) ([]*entity.Report, error)
	// ResetFailed moves failed reports that have a download URL back to ready
	// and returns them.
	ResetFailed(ctx context.Context, limit int) ([]*entity.Report, error)
	CountByStatus(ctx context.Context) (map[report.Status]int64, error)
}

type DownloadRepository interface {
	BaseRepository[entity.Download]
	Create(ctx context.Context, d *entity.Download) error
	Update(ctx context.Context, d *entity.Download) error
	// GetLatestByPostID returns the canonical (most recent) attempt row.
	GetLatestByPostID(ctx context.Context, postID string) (*entity.Download, error)
	CountByStatus(ctx context.Context, status download.Status) (int64, error)
}

type ExtractionRepository interface {
	BaseRepository[entity.Extraction]
	// Save inserts the extraction or overwrites the outcome of the row
	// recorded for the same download.
	Save(ctx context.Context, e *entity.Extraction) error
	GetByDownloadID(ctx context.Context, downloadID int64) (*entity.Extraction, error)
	CountByStatus(ctx context.Context, status extraction.Status) (int64, error)
}

type Repositories interface {
	Category() CategoryRepository
	Report() ReportRepository
	Download() DownloadRepository
	Extraction() ExtractionRepository
}

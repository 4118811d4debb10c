package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/domain/entity"
	"reportfetcher/shared/domain/entity/download"
)

type downloadRepository struct {
	*baseRepository[entity.Download]
}

// Create inserts a new attempt row and assigns its id
func (r *downloadRepository) Create(ctx context.Context, d *entity.Download) error {
	query := r.qb.Insert(r.table).
		Columns(
			"post_id", "zip_url", "file_name", "file_path", "file_size", "status",
			"download_attempts", "error_message", "started_at", "completed_at", "created_at",
		).
		Values(
			d.PostID, d.ZipURL, d.FileName, nullable(d.FilePath), d.FileSize, string(d.Status),
			d.DownloadAttempts, nullable(d.ErrorMessage), nullable(d.StartedAt), nullable(d.CompletedAt), d.CreatedAt,
		).
		Suffix("RETURNING id")

	id, _, err := r.insertReturningID(ctx, query)
	if err != nil {
		return err
	}
	d.ID = id
	return nil
}

func (r *downloadRepository) Update(ctx context.Context, d *entity.Download) error {
	query := r.qb.Update(r.table).
		Set("zip_url", d.ZipURL).
		Set("file_name", d.FileName).
		Set("file_path", nullable(d.FilePath)).
		Set("file_size", d.FileSize).
		Set("status", string(d.Status)).
		Set("download_attempts", d.DownloadAttempts).
		Set("error_message", nullable(d.ErrorMessage)).
		Set("started_at", nullable(d.StartedAt)).
		Set("completed_at", nullable(d.CompletedAt)).
		Where(squirrel.Eq{"id": d.ID})

	rows, err := r.execUpdate(ctx, query)
	if err != nil {
		r.logger.Error("Failed to update download", "id", d.ID, "error", err)
		return err
	}
	if rows == 0 {
		return fmt.Errorf("download %d: %w", d.ID, ports.ErrNotFound)
	}
	return nil
}

// GetLatestByPostID returns the most recent attempt row for a report
func (r *downloadRepository) GetLatestByPostID(ctx context.Context, postID string) (*entity.Download, error) {
	query := r.qb.Select("*").
		From(r.table).
		Where(squirrel.Eq{"post_id": postID}).
		OrderBy("id DESC").
		Limit(1)

	return r.getOne(ctx, query)
}

func (r *downloadRepository) CountByStatus(ctx context.Context, status download.Status) (int64, error) {
	return r.count(ctx, r.qb.Select("COUNT(*)").
		From(r.table).
		Where(squirrel.Eq{"status": string(status)}))
}

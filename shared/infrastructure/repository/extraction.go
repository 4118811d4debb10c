package repository

import (
	"context"

	"github.com/Masterminds/squirrel"

	"reportfetcher/shared/domain/entity"
	"reportfetcher/shared/domain/entity/extraction"
)

type extractionRepository struct {
	*baseRepository[entity.Extraction]
}

// Save inserts the extraction or overwrites the row of the same download
func (r *extractionRepository) Save(ctx context.Context, e *entity.Extraction) error {
	query := r.qb.Insert(r.table).
		Columns("download_id", "extract_path", "files_count", "status", "extracted_at", "created_at").
		Values(e.DownloadID, e.ExtractPath, e.FilesCount, string(e.Status), nullable(e.ExtractedAt), e.CreatedAt).
		Suffix(`ON CONFLICT (download_id) DO UPDATE SET
			extract_path = excluded.extract_path,
			files_count = excluded.files_count,
			status = excluded.status,
			extracted_at = excluded.extracted_at
		RETURNING id`)

	id, _, err := r.insertReturningID(ctx, query)
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

func (r *extractionRepository) GetByDownloadID(ctx context.Context, downloadID int64) (*entity.Extraction, error) {
	query := r.qb.Select("*").
		From(r.table).
		Where(squirrel.Eq{"download_id": downloadID})

	return r.getOne(ctx, query)
}

func (r *extractionRepository) CountByStatus(ctx context.Context, status extraction.Status) (int64, error) {
	return r.count(ctx, r.qb.Select("COUNT(*)").
		From(r.table).
		Where(squirrel.Eq{"status": string(status)}))
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/domain/entity"
	"reportfetcher/shared/domain/entity/report"
)

type reportRepository struct {
	*baseRepository[entity.Report]
}

// selectWithCategory joins the category name onto every report row
func (r *reportRepository) selectWithCategory() squirrel.SelectBuilder {
	return r.qb.Select("r.*", "COALESCE(c.category_name, '') AS category_name").
		From("reports r").
		LeftJoin("categories c ON c.category_id = r.category_id")
}

// Create inserts the report unless its post_id is already recorded
func (r *reportRepository) Create(ctx context.Context, rep *entity.Report) (bool, error) {
	now := time.Now()
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = now
	}
	rep.UpdatedAt = now

	query := r.qb.Insert(r.table).
		Columns(
			"category_id", "post_id", "title", "detail_url", "download_url",
			"thumbnail_url", "view_count", "publish_date", "status", "local_path",
			"created_at", "updated_at",
		).
		Values(
			rep.CategoryID, rep.PostID, rep.Title, rep.DetailURL, nullable(rep.DownloadURL),
			nullable(rep.ThumbnailURL), rep.ViewCount, nullable(rep.PublishDate), string(rep.Status), nullable(rep.LocalPath),
			rep.CreatedAt, rep.UpdatedAt,
		).
		Suffix("ON CONFLICT (post_id) DO NOTHING RETURNING id")

	id, created, err := r.insertReturningID(ctx, query)
	if err != nil {
		return false, err
	}
	if created {
		rep.ID = id
	}
	return created, nil
}

// Update persists the mutable fields of a report identified by post_id
func (r *reportRepository) Update(ctx context.Context, rep *entity.Report) error {
	rep.UpdatedAt = time.Now()

	query := r.qb.Update(r.table).
		Set("title", rep.Title).
		Set("detail_url", rep.DetailURL).
		Set("download_url", nullable(rep.DownloadURL)).
		Set("thumbnail_url", nullable(rep.ThumbnailURL)).
		Set("view_count", rep.ViewCount).
		Set("publish_date", nullable(rep.PublishDate)).
		Set("status", string(rep.Status)).
		Set("local_path", nullable(rep.LocalPath)).
		Set("updated_at", rep.UpdatedAt).
		Where(squirrel.Eq{"post_id": rep.PostID})

	rows, err := r.execUpdate(ctx, query)
	if err != nil {
		r.logger.Error("Failed to update report", "post_id", rep.PostID, "error", err)
		return err
	}
	if rows == 0 {
		return fmt.Errorf("report %s: %w", rep.PostID, ports.ErrNotFound)
	}
	return nil
}

func (r *reportRepository) Get(ctx context.Context, id int64) (*entity.Report, error) {
	r.metrics.IncrementCounter("repository.reports.get", nil)
	return r.getOne(ctx, r.selectWithCategory().Where(squirrel.Eq{"r.id": id}))
}

func (r *reportRepository) ListAll(ctx context.Context) ([]*entity.Report, error) {
	r.metrics.IncrementCounter("repository.reports.list", nil)
	return r.selectMany(ctx, r.selectWithCategory().OrderBy("r.id ASC"))
}

func (r *reportRepository) GetByPostID(ctx context.Context, postID string) (*entity.Report, error) {
	return r.getOne(ctx, r.selectWithCategory().Where(squirrel.Eq{"r.post_id": postID}))
}

// ListByStatus returns reports in status, oldest first. limit <= 0 means no limit.
func (r *reportRepository) ListByStatus(ctx context.Context, status report.Status, limit int) ([]*entity.Report, error) {
	query := r.selectWithCategory().
		Where(squirrel.Eq{"r.status": string(status)}).
		OrderBy("r.id ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	return r.selectMany(ctx, query)
}

// ListByCategory filters by category; an empty status matches every status
func (r *reportRepository) ListByCategory(ctx context.Context, categoryID string, status report.Status, limit int) ([]*entity.Report, error) {
	query := r.selectWithCategory().
		Where(squirrel.Eq{"r.category_id": categoryID}).
		OrderBy("r.id ASC")
	if status != "" {
		query = query.Where(squirrel.Eq{"r.status": string(status)})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	return r.selectMany(ctx, query)
}

// ListByCategoryName filters by the joined category name; an empty status
// matches every status
func (r *reportRepository) ListByCategoryName(ctx context.Context, name string, status report.Status, limit int) ([]*entity.Report, error) {
	query := r.selectWithCategory().
		Where(squirrel.Eq{"c.category_name": name}).
		OrderBy("r.id ASC")
	if status != "" {
		query = query.Where(squirrel.Eq{"r.status": string(status)})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	return r.selectMany(ctx, query)
}

// ResetFailed moves failed reports that still have a download URL back to
// ready inside one transaction and returns them
func (r *reportRepository) ResetFailed(ctx context.Context, limit int) ([]*entity.Report, error) {
	selectQuery := r.selectWithCategory().
		Where(squirrel.Eq{"r.status": string(report.StatusFailed)}).
		Where(squirrel.NotEq{"r.download_url": nil}).
		Where(squirrel.NotEq{"r.download_url": ""}).
		OrderBy("r.id ASC")
	if limit > 0 {
		selectQuery = selectQuery.Limit(uint64(limit))
	}

	var reset []*entity.Report
	err := r.db.Transaction(ctx, func(tx ports.Transaction) error {
		sqlQuery, args, err := selectQuery.ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}

		var rows []entity.Report
		if err := tx.Select(ctx, &rows, sqlQuery, args...); err != nil {
			return fmt.Errorf("select failed reports: %w", err)
		}

		for i := range rows {
			rep := &rows[i]
			if err := rep.ResetToReady(); err != nil {
				r.logger.Warn("Skipping report that cannot be reset", "post_id", rep.PostID, "error", err)
				continue
			}
			rep.UpdatedAt = time.Now()

			updateSQL, updateArgs, err := r.qb.Update(r.table).
				Set("status", string(rep.Status)).
				Set("updated_at", rep.UpdatedAt).
				Where(squirrel.Eq{"post_id": rep.PostID}).
				ToSql()
			if err != nil {
				return fmt.Errorf("build query: %w", err)
			}
			if _, err := tx.Execute(ctx, updateSQL, updateArgs...); err != nil {
				return fmt.Errorf("reset report %s: %w", rep.PostID, err)
			}
			reset = append(reset, rep)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to reset failed reports", "error", err)
		r.metrics.IncrementCounter("repository.reports.errors", nil)
		return nil, err
	}

	r.logger.Info("Reset failed reports", "count", len(reset))
	return reset, nil
}

func (r *reportRepository) CountByStatus(ctx context.Context) (map[report.Status]int64, error) {
	sqlQuery, args, err := r.qb.Select("status", "COUNT(*) AS count").
		From(r.table).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []statusCount
	if err := r.db.Select(ctx, &rows, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("count reports by status: %w", err)
	}

	counts := make(map[report.Status]int64, len(report.AllStatuses()))
	for _, s := range report.AllStatuses() {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[report.Status(row.Status)] = row.Count
	}
	return counts, nil
}

package repository

import (
	"context"

	"github.com/Masterminds/squirrel"

	"reportfetcher/shared/domain/entity"
)

type categoryRepository struct {
	*baseRepository[entity.Category]
}

// Upsert inserts the category unless its category_id is already recorded
func (r *categoryRepository) Upsert(ctx context.Context, c *entity.Category) (bool, error) {
	query := r.qb.Insert(r.table).
		Columns("category_id", "category_name", "url", "created_at").
		Values(c.CategoryID, c.CategoryName, c.URL, c.CreatedAt).
		Suffix("ON CONFLICT (category_id) DO NOTHING RETURNING id")

	id, created, err := r.insertReturningID(ctx, query)
	if err != nil {
		return false, err
	}
	if created {
		c.ID = id
	}
	return created, nil
}

func (r *categoryRepository) GetByCategoryID(ctx context.Context, categoryID string) (*entity.Category, error) {
	query := r.qb.Select("*").
		From(r.table).
		Where(squirrel.Eq{"category_id": categoryID})

	return r.getOne(ctx, query)
}

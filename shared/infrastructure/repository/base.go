package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"reportfetcher/shared/application/ports"
)

type baseRepository[T any] struct {
	db      ports.Database
	logger  ports.Logger
	metrics ports.Metrics
	table   string
	qb      squirrel.StatementBuilderType
}

func newBaseRepository[T any](db ports.Database, logger ports.Logger, metrics ports.Metrics, table string) *baseRepository[T] {
	return &baseRepository[T]{
		db:      db,
		logger:  logger,
		metrics: metrics,
		table:   table,
		qb:      squirrel.StatementBuilder.PlaceholderFormat(placeholderFor(db.DriverName())),
	}
}

// placeholderFor picks the bind style of the dialect
func placeholderFor(dialect string) squirrel.PlaceholderFormat {
	if dialect == "postgres" {
		return squirrel.Dollar
	}
	return squirrel.Question
}

// Get retrieves an entity by ID - using sqlx for auto-scanning
func (r *baseRepository[T]) Get(ctx context.Context, id int64) (*T, error) {
	r.metrics.IncrementCounter(fmt.Sprintf("repository.%s.get", r.table), nil)

	query := r.qb.
		Select("*").
		From(r.table).
		Where(squirrel.Eq{"id": id})

	return r.getOne(ctx, query)
}

// ListAll retrieves every entity ordered by id
func (r *baseRepository[T]) ListAll(ctx context.Context) ([]*T, error) {
	r.metrics.IncrementCounter(fmt.Sprintf("repository.%s.list", r.table), nil)

	query := r.qb.
		Select("*").
		From(r.table).
		OrderBy("id ASC")

	return r.selectMany(ctx, query)
}

// CountAll returns the number of entities
func (r *baseRepository[T]) CountAll(ctx context.Context) (int64, error) {
	r.metrics.IncrementCounter(fmt.Sprintf("repository.%s.count_all", r.table), nil)

	return r.count(ctx, r.qb.Select("COUNT(*)").From(r.table))
}

// getOne runs a single-row select, mapping sql.ErrNoRows to ports.ErrNotFound
func (r *baseRepository[T]) getOne(ctx context.Context, query squirrel.SelectBuilder) (*T, error) {
	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entity T
	err = r.db.Get(ctx, &entity, sqlQuery, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", r.table, ports.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get entity", "table", r.table, "error", err)
		r.metrics.IncrementCounter(fmt.Sprintf("repository.%s.errors", r.table), nil)
		return nil, fmt.Errorf("get entity: %w", err)
	}

	return &entity, nil
}

// selectMany runs a multi-row select
func (r *baseRepository[T]) selectMany(ctx context.Context, query squirrel.SelectBuilder) ([]*T, error) {
	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entities []T
	if err := r.db.Select(ctx, &entities, sqlQuery, args...); err != nil {
		r.logger.Error("Failed to list entities", "table", r.table, "error", err)
		r.metrics.IncrementCounter(fmt.Sprintf("repository.%s.errors", r.table), nil)
		return nil, fmt.Errorf("list entities: %w", err)
	}

	result := make([]*T, len(entities))
	for i := range entities {
		result[i] = &entities[i]
	}

	return result, nil
}

func (r *baseRepository[T]) count(ctx context.Context, query squirrel.SelectBuilder) (int64, error) {
	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var count int64
	if err := r.db.Get(ctx, &count, sqlQuery, args...); err != nil {
		r.logger.Error("Failed to count entities", "table", r.table, "error", err)
		r.metrics.IncrementCounter(fmt.Sprintf("repository.%s.errors", r.table), nil)
		return 0, fmt.Errorf("count entities: %w", err)
	}

	return count, nil
}

// insertReturningID runs an INSERT ... RETURNING id. created is false when
// an ON CONFLICT DO NOTHING clause swallowed the row.
func (r *baseRepository[T]) insertReturningID(ctx context.Context, query squirrel.InsertBuilder) (id int64, created bool, err error) {
	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build query: %w", err)
	}

	err = r.db.QueryRow(ctx, sqlQuery, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		r.logger.Error("Failed to insert entity", "table", r.table, "error", err)
		r.metrics.IncrementCounter(fmt.Sprintf("repository.%s.errors", r.table), nil)
		return 0, false, fmt.Errorf("insert %s: %w", r.table, err)
	}

	r.metrics.IncrementCounter(fmt.Sprintf("repository.%s.insert", r.table), nil)
	return id, true, nil
}

func (r *baseRepository[T]) execUpdate(ctx context.Context, query squirrel.UpdateBuilder) (int64, error) {
	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	result, err := r.db.Execute(ctx, sqlQuery, args...)
	if err != nil {
		r.metrics.IncrementCounter(fmt.Sprintf("repository.%s.errors", r.table), nil)
		return 0, fmt.Errorf("update %s: %w", r.table, err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

type statusCount struct {
	Status string `db:"status"`
	Count  int64  `db:"count"`
}

// nullable dereferences optional columns so every driver receives plain values
func nullable[V any](v *V) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

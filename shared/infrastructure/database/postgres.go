package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
)

// NewPostgresAdapter opens a PostgreSQL connection and applies the schema
func NewPostgresAdapter(cfg *config.DatabaseConfig, obs ports.Observability) (ports.Database, error) {
	logger, metrics, _ := obs.ComponentsScoped("database.postgres")

	logger.Info("Connecting to PostgreSQL database",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database)

	return openPostgres(cfg.DSN(), cfg.MaxOpenConns, cfg.MaxIdleConns, logger, metrics)
}

func openPostgres(dsn string, maxOpen, maxIdle int, logger ports.Logger, metrics ports.Metrics) (*DB, error) {
	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		logger.Error("Failed to open database connection", "error", err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		logger.Error("Failed to ping database", "error", err)
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := newDB(conn, DialectPostgres, logger, metrics)
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("Successfully connected to PostgreSQL database")
	metrics.IncrementCounter("database.connection.success", map[string]string{"type": DialectPostgres})

	return db, nil
}

package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
)

const memoryPath = ":memory:"

// NewSQLiteAdapter opens (creating if needed) the embedded store and applies the schema
func NewSQLiteAdapter(cfg *config.SQLiteConfig, obs ports.Observability) (ports.Database, error) {
	logger, metrics, _ := obs.ComponentsScoped("database.sqlite")

	logger.Info("Opening SQLite database", "path", cfg.Path)

	return openSQLite(cfg.Path, logger, metrics)
}

func openSQLite(path string, logger ports.Logger, metrics ports.Metrics) (*DB, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sqlx.Open("sqlite", sqliteDSN(path))
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database
	if path == memoryPath {
		conn.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		logger.Error("Failed to ping database", "error", err)
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := newDB(conn, DialectSQLite, logger, metrics)
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	metrics.IncrementCounter("database.connection.success", map[string]string{"type": DialectSQLite})
	return db, nil
}

func sqliteDSN(path string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == memoryPath {
		return "file::memory:?" + pragmas
	}
	return fmt.Sprintf("file:%s?%s&_pragma=journal_mode(WAL)", path, pragmas)
}

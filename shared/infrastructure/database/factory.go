package database

import (
	"fmt"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
)

// NewDatabase creates a database based on the selected adapter
func NewDatabase(cfg *config.Config, obs ports.Observability) (ports.Database, error) {
	switch cfg.Adapters.Database {
	case DialectSQLite:
		return NewSQLiteAdapter(&cfg.SQLite, obs)
	case DialectPostgres:
		return NewPostgresAdapter(&cfg.Database, obs)
	default:
		return nil, fmt.Errorf("unsupported database adapter: %s", cfg.Adapters.Database)
	}
}

// NewDatabaseFromDSN opens a database directly from a dialect and DSN or path.
// Used by tests and tooling that bypass the configuration layer.
func NewDatabaseFromDSN(dialect, dsn string, obs ports.Observability) (ports.Database, error) {
	logger, metrics, err := obs.ComponentsScoped("database." + dialect)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case DialectSQLite:
		return openSQLite(dsn, logger, metrics)
	case DialectPostgres:
		return openPostgres(dsn, 5, 2, logger, metrics)
	default:
		return nil, fmt.Errorf("unsupported database adapter: %s", dialect)
	}
}

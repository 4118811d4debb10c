package database

import (
	_ "embed"
	"fmt"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

func schemaFor(dialect string) (string, error) {
	switch dialect {
	case DialectSQLite:
		return sqliteSchema, nil
	case DialectPostgres:
		return postgresSchema, nil
	default:
		return "", fmt.Errorf("no schema for dialect: %s", dialect)
	}
}

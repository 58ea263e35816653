package db

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var schemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateSchemaName rejects names that cannot be interpolated into SQL as a
// bare identifier.
func ValidateSchemaName(schema string) error {
	if !schemaNamePattern.MatchString(schema) {
		return fmt.Errorf("invalid schema name: %q", schema)
	}
	return nil
}

// QualifiedTable returns schema.table after validating both identifiers.
func QualifiedTable(schema, table string) (string, error) {
	if err := ValidateSchemaName(schema); err != nil {
		return "", err
	}
	if !schemaNamePattern.MatchString(table) {
		return "", fmt.Errorf("invalid table name: %q", table)
	}
	return schema + "." + table, nil
}

// CreateSchema creates the reference schema if needed and runs all migrations
// against it. If migrationsDir is empty, migrations are skipped.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool, schema string, migrationsDir string, logger zerolog.Logger) error {
	if err := ValidateSchemaName(schema); err != nil {
		return err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	if err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, migrationsDir, logger)
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}

	return nil
}

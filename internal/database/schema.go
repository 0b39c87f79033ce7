package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is the current schema version. Bump this when the schema changes.
// Operators must recreate the database after a bump.
const SchemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Tables lists every table the schema creates.
var Tables = []string{"schema_version", "jobs", "resources", "bundles", "bundle_members", "system_state"}

func (d *DB) initSchema(ctx context.Context) error {
	var tableExists int
	err := retryOnBusy(ctx, func() error {
		return d.sql.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
		).Scan(&tableExists)
	})
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return d.createSchema(ctx)
	}

	version, err := d.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if version != SchemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (move %s aside and rerun)",
			ErrSchemaMismatch, version, SchemaVersion, d.path)
	}
	return nil
}

func (d *DB) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := d.sql.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (d *DB) createSchema(ctx context.Context) error {
	return retryOnBusy(ctx, func() error {
		tx, err := d.sql.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		// Another process may have won the race between the check and this tx.
		var existing int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&existing); err != nil {
			return fmt.Errorf("recheck schema_version table: %w", err)
		}
		if existing > 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", SchemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit schema: %w", err)
		}
		return nil
	})
}

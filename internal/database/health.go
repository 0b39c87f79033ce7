package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Health captures diagnostic information about the database file.
type Health struct {
	Path           string
	Exists         bool
	Readable       bool
	SchemaVersion  int
	TablesPresent  []string
	MissingTables  []string
	IntegrityCheck bool
	Error          string
}

// CheckHealth returns diagnostic information about the database.
func (d *DB) CheckHealth(ctx context.Context) (Health, error) {
	health := Health{Path: d.path}
	if d.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", d.path)
	}
	health.Exists = true

	if d.sql == nil {
		return health, errors.New("database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := d.sql.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.Readable = true

	present := make(map[string]bool, len(Tables))
	rows, err := d.sql.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("list tables: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		present[name] = true
	}
	_ = rows.Close()
	for _, table := range Tables {
		if present[table] {
			health.TablesPresent = append(health.TablesPresent, table)
		} else {
			health.MissingTables = append(health.MissingTables, table)
		}
	}

	if present["schema_version"] {
		if version, err := d.schemaVersion(connCtx); err == nil {
			health.SchemaVersion = version
		}
	}

	var integrity string
	if err := d.sql.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = integrity == "ok"
	return health, nil
}

// Healthy reports whether the check found a usable, current database.
func (h Health) Healthy() bool {
	return h.Exists && h.Readable && h.IntegrityCheck && len(h.MissingTables) == 0 && h.SchemaVersion == SchemaVersion
}

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

const schemaVersion = 1

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS _meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS archives (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    format TEXT NOT NULL,
    size INTEGER NOT NULL,
    entries INTEGER NOT NULL,
    indexed_at INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS entries (
    archive_id INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    name TEXT NOT NULL,
    label TEXT,
    data_offset INTEGER NOT NULL,
    size INTEGER NOT NULL,
    compressed_size INTEGER NOT NULL,
    compression TEXT NOT NULL,
    hash INTEGER,
    PRIMARY KEY (archive_id, idx),
    FOREIGN KEY (archive_id) REFERENCES archives(id) ON DELETE CASCADE
)`,
	`CREATE INDEX IF NOT EXISTS entries_name ON entries(name COLLATE NOCASE)`,
}

// migrate creates the tables and checks the stored schema version.
func (c *Catalog) migrate(ctx context.Context) error {
	tx, err := c.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range ddl {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating catalog schema: %w", err)
		}
	}

	var version int
	err = tx.QueryRowContext(ctx, `SELECT CAST(value AS INTEGER) FROM _meta WHERE key = 'schema_version'`).Scan(&version)
	switch {
	case err == nil:
		if version != schemaVersion {
			return fmt.Errorf("catalog %s has schema version %d, want %d", c.path, version, schemaVersion)
		}
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO _meta (key, value) VALUES ('schema_version', ?)`, schemaVersion); err != nil {
			return fmt.Errorf("recording schema version: %w", err)
		}
		slog.Debug("Created catalog schema", "path", c.path, "version", schemaVersion)
	default:
		return fmt.Errorf("reading schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema: %w", err)
	}
	return nil
}

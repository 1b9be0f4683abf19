package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jchantrell/gamepak/internal/archive"
)

// IndexProgressCallback is called after each committed batch of entries.
type IndexProgressCallback func(current int, total int, description string)

// Index records pkg under its absolute path, replacing any earlier record of
// the same file. Entries go in batches, one transaction each, with the
// archive row written by the first.
func (c *Catalog) Index(ctx context.Context, pkg *archive.Package, progress IndexProgressCallback) (int64, error) {
	path, err := filepath.Abs(pkg.Path())
	if err != nil {
		return 0, fmt.Errorf("resolving %s: %w", pkg.Path(), err)
	}

	entries := pkg.Entries()

	tx, err := c.beginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// entries cascade
	if _, err := tx.ExecContext(ctx, `DELETE FROM archives WHERE path = ?`, path); err != nil {
		return 0, fmt.Errorf("removing previous record of %s: %w", path, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO archives (path, format, size, entries, indexed_at) VALUES (?, ?, ?, ?, ?)`,
		path, pkg.Format(), pkg.SourceSize(), len(entries), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("recording archive %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading archive id: %w", err)
	}

	for start := 0; start < len(entries); start += c.batchSize {
		end := min(start+c.batchSize, len(entries))

		if tx == nil {
			if tx, err = c.beginTx(ctx); err != nil {
				c.discard(id)
				return 0, err
			}
			defer tx.Rollback()
		}

		if err := insertBatch(ctx, tx, id, start, entries[start:end]); err != nil {
			tx.Rollback()
			c.discard(id)
			return 0, fmt.Errorf("inserting entries %d-%d of %s: %w", start, end-1, path, err)
		}
		if err := tx.Commit(); err != nil {
			c.discard(id)
			return 0, fmt.Errorf("committing transaction: %w", err)
		}
		tx = nil

		if progress != nil {
			progress(end, len(entries), filepath.Base(path))
		}
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("committing transaction: %w", err)
		}
	}

	slog.Debug("Indexed package", "path", path, "format", pkg.Format(), "entries", len(entries))
	return id, nil
}

// discard drops a partially indexed archive. The caller's context may
// already be cancelled.
func (c *Catalog) discard(id int64) {
	if _, err := c.db.ExecContext(context.Background(), `DELETE FROM archives WHERE id = ?`, id); err != nil {
		slog.Warn("Failed to remove partial archive record", "id", id, "error", err)
	}
}

func insertBatch(ctx context.Context, tx *sql.Tx, archiveID int64, base int, batch []archive.Entry) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries
    (archive_id, idx, name, label, data_offset, size, compressed_size, compression, hash)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for i, e := range batch {
		var label, hash any
		if e.Label != "" {
			label = e.Label
		}
		if e.Hash != 0 {
			// SQLite integers are signed
			hash = int64(e.Hash)
		}

		if _, err := stmt.ExecContext(ctx, archiveID, base+i, e.Name, label,
			e.Offset, e.Size, e.CompressedSize, e.Compression.String(), hash); err != nil {
			return fmt.Errorf("inserting %s: %w", e.Name, err)
		}
	}
	return nil
}

// Remove deletes the record of the archive at path. It reports whether one
// existed.
func (c *Catalog) Remove(ctx context.Context, path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolving %s: %w", path, err)
	}

	tx, err := c.beginTx(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM archives WHERE path = ?`, abs)
	if err != nil {
		return false, fmt.Errorf("removing %s: %w", abs, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("removing %s: %w", abs, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return n > 0, nil
}

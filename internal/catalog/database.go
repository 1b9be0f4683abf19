// Package catalog indexes the entry tables of opened packages into SQLite so
// a whole game install can be searched without reopening every archive.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by every method once Close has been called.
var ErrClosed = errors.New("catalog is closed")

// Catalog is a connection to a catalog database.
type Catalog struct {
	db        *sql.DB
	path      string
	batchSize int
}

// Options configures catalog creation and connection behavior
type Options struct {
	// Path to the SQLite database file. ":memory:" is accepted.
	Path string

	// WALMode enables Write-Ahead Logging
	WALMode bool

	// BusyTimeout sets the timeout for locked database operations
	BusyTimeout time.Duration

	// BatchSize is how many entry rows go into one transaction
	BatchSize int
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions(path string) *Options {
	return &Options{
		Path:        path,
		WALMode:     true,
		BusyTimeout: 30 * time.Second,
		BatchSize:   1000,
	}
}

// Open connects to the catalog at options.Path, creating the file and its
// tables when missing.
func Open(ctx context.Context, options *Options) (*Catalog, error) {
	if options == nil {
		return nil, fmt.Errorf("catalog options cannot be nil")
	}
	if options.Path == "" {
		return nil, fmt.Errorf("catalog path cannot be empty")
	}

	if err := ensureDirectory(options.Path); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", buildConnectionString(options))
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", options.Path, err)
	}
	// foreign_keys is per connection and an in-memory database is per
	// connection too
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("testing catalog connection: %w", err)
	}

	batch := options.BatchSize
	if batch < 1 {
		batch = 1000
	}
	c := &Catalog{db: db, path: options.Path, batchSize: batch}

	if err := c.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Path returns the database file path.
func (c *Catalog) Path() string {
	return c.path
}

// Close closes the database connection
func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}

	err := c.db.Close()
	c.db = nil
	if err != nil {
		return fmt.Errorf("closing catalog: %w", err)
	}
	return nil
}

func (c *Catalog) beginTx(ctx context.Context) (*sql.Tx, error) {
	if c.db == nil {
		return nil, ErrClosed
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}

// Query executes a read-only SQL statement against the catalog.
func (c *Catalog) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.db == nil {
		return nil, ErrClosed
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// buildConnectionString constructs the SQLite connection string with pragmas
func buildConnectionString(options *Options) string {
	pragmas := []string{"_foreign_keys=on"}

	if options.WALMode && options.Path != ":memory:" {
		pragmas = append(pragmas, "_journal_mode=WAL")
	}
	if options.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("_busy_timeout=%d", int(options.BusyTimeout.Milliseconds())))
	}
	pragmas = append(pragmas, "_synchronous=NORMAL")

	return "file:" + options.Path + "?" + strings.Join(pragmas, "&")
}

// ensureDirectory creates the directory for the database file if it doesn't exist
func ensureDirectory(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

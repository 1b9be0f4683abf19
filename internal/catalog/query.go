package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Archive is one indexed package.
type Archive struct {
	ID        int64
	Path      string
	Format    string
	Size      int64
	Entries   int
	IndexedAt time.Time
}

// Hit is an entry found by Search.
type Hit struct {
	Archive        string
	Format         string
	Index          int
	Name           string
	Label          string
	Size           int64
	CompressedSize int64
	Compression    string
}

// Search selects entries across all indexed archives.
type Search struct {
	// Pattern is a glob ("*", "?") matched against the whole entry name
	// without regard to case. Empty matches everything.
	Pattern string
	// Format limits results to archives opened by the named format.
	Format string
	Limit  int
}

// Archives lists indexed archives ordered by path.
func (c *Catalog) Archives(ctx context.Context) ([]Archive, error) {
	rows, err := c.Query(ctx, `SELECT id, path, format, size, entries, indexed_at FROM archives ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Archive
	for rows.Next() {
		var a Archive
		var indexed int64
		if err := rows.Scan(&a.ID, &a.Path, &a.Format, &a.Size, &a.Entries, &indexed); err != nil {
			return nil, fmt.Errorf("scanning archive row: %w", err)
		}
		a.IndexedAt = time.Unix(indexed, 0)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating archives: %w", err)
	}
	return out, nil
}

// Find runs s and returns hits ordered by archive path and entry index.
func (c *Catalog) Find(ctx context.Context, s Search) ([]Hit, error) {
	query := `SELECT a.path, a.format, e.idx, e.name, COALESCE(e.label, ''), e.size, e.compressed_size, e.compression
FROM entries e JOIN archives a ON a.id = e.archive_id`

	var where []string
	var args []any
	if s.Pattern != "" {
		where = append(where, `e.name LIKE ? ESCAPE '\'`)
		args = append(args, globToLike(s.Pattern))
	}
	if s.Format != "" {
		where = append(where, `a.format = ?`)
		args = append(args, s.Format)
	}
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY a.path, e.idx"
	if s.Limit > 0 {
		query += "\nLIMIT ?"
		args = append(args, s.Limit)
	}

	rows, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Archive, &h.Format, &h.Index, &h.Name, &h.Label, &h.Size, &h.CompressedSize, &h.Compression); err != nil {
			return nil, fmt.Errorf("scanning entry row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return hits, nil
}

// globToLike rewrites a glob as a LIKE pattern. LIKE is case-insensitive for
// ASCII in SQLite.
func globToLike(glob string) string {
	var b strings.Builder
	for _, r := range strings.ReplaceAll(glob, "\\", "/") {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

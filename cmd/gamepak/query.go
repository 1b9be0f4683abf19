package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jchantrell/gamepak/internal/catalog"
	"github.com/jchantrell/gamepak/internal/utils"
	"github.com/spf13/cobra"
)

var (
	queryFormat string
	queryLimit  int
	querySQL    bool
)

var queryCmd = &cobra.Command{
	Use:   "query [pattern]",
	Short: "Search the catalog for entries",
	Long: `Query finds catalogued entries whose name matches a glob pattern ("*" and
"?", case-insensitive) across every indexed archive.

With --sql the argument is run as a raw SQL statement against the catalog
tables (archives, entries) and the rows are printed tab separated.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		db, err := catalog.Open(ctx, catalog.DefaultOptions(cfg.Catalog))
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer db.Close()

		if querySQL {
			if len(args) == 0 {
				return fmt.Errorf("no query provided")
			}
			return printRows(ctx, db, args[0])
		}

		search := catalog.Search{Format: queryFormat, Limit: queryLimit}
		if len(args) > 0 {
			search.Pattern = args[0]
		}
		slog.Debug("Searching catalog", "pattern", search.Pattern, "format", search.Format, "limit", search.Limit)

		hits, err := db.Find(ctx, search)
		if err != nil {
			return err
		}
		for _, h := range hits {
			fmt.Printf("%s\t%s\t%s\t%s\n", h.Archive, h.Name, utils.Number(h.Size), h.Compression)
		}
		slog.Info("Query complete", "matches", len(hits))
		return nil
	},
}

func printRows(ctx context.Context, db *catalog.Catalog, query string) error {
	slog.Debug("Executing SQL query", "query", query)

	rows, err := db.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("getting column names: %w", err)
	}

	fmt.Println(strings.Join(columns, "\t"))
	for i, col := range columns {
		if i > 0 {
			fmt.Print("\t")
		}
		fmt.Print(strings.Repeat("-", len(col)))
	}
	fmt.Println()

	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}

		for i, val := range values {
			if i > 0 {
				fmt.Print("\t")
			}
			switch v := val.(type) {
			case nil:
				fmt.Print("NULL")
			case []byte:
				fmt.Print(string(v))
			default:
				fmt.Print(v)
			}
		}
		fmt.Println()
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryFormat, "format", "f", "", "only archives of this format")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 0, "maximum number of matches")
	queryCmd.Flags().BoolVar(&querySQL, "sql", false, "run the argument as raw SQL")
}

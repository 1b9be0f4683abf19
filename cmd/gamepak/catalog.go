package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/cache"
	"github.com/jchantrell/gamepak/internal/catalog"
	"github.com/jchantrell/gamepak/internal/utils"
	"github.com/spf13/cobra"
)

var (
	catalogList   bool
	catalogRemove bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog [archives...]",
	Short: "Index archives into the SQLite catalog",
	Long: `Catalog opens each archive and records its entry table in the catalog
database, replacing any earlier record of the same file. Archives that no
loader accepts are logged and skipped.

With --list the indexed archives are printed instead, and with --remove the
named archives are dropped from the catalog.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		dirs := cache.CacheManager()
		if catalogList && !dirs.FileExists(cfg.Catalog) {
			fmt.Println("The catalog is empty")
			return nil
		}

		db, err := catalog.Open(ctx, catalog.DefaultOptions(cfg.Catalog))
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer db.Close()

		if catalogList {
			archives, err := db.Archives(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%-10s %-10s %-14s %-20s %s\n", "Format", "Entries", "Size", "Indexed", "Path")
			for _, a := range archives {
				fmt.Printf("%-10s %-10s %-14s %-20s %s\n",
					a.Format, utils.Number(int64(a.Entries)), utils.Number(a.Size),
					a.IndexedAt.Format(time.DateTime), a.Path)
			}
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("no archives given, use --list to show the catalog")
		}

		if catalogRemove {
			for _, path := range args {
				removed, err := db.Remove(ctx, path)
				if err != nil {
					return err
				}
				if !removed {
					slog.Warn("Archive was not in the catalog", "path", path)
				}
			}
			return nil
		}

		start := time.Now()
		var indexed, skipped int
		for _, path := range args {
			pkg, err := reg.Open(path)
			if err != nil {
				skipped++
				slog.Warn("Skipping archive", "path", path, "kind", archive.KindOf(err).String(), "error", err)
				continue
			}

			progress := utils.NewProgress(pkg.Len(), !noProgress)
			_, err = db.Index(ctx, pkg, func(current, total int, desc string) {
				progress.Update(current, desc)
			})
			progress.Finish()
			pkg.Close()
			if err != nil {
				return fmt.Errorf("indexing %s: %w", path, err)
			}
			indexed++
		}

		slog.Info("Catalog updated",
			"catalog", db.Path(),
			"size", utils.Number(dirs.GetFileSize(db.Path())),
			"indexed", indexed,
			"skipped", skipped,
			"duration", utils.Duration(time.Since(start)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().BoolVar(&catalogList, "list", false, "list indexed archives")
	catalogCmd.Flags().BoolVar(&catalogRemove, "remove", false, "remove the named archives from the catalog")
}

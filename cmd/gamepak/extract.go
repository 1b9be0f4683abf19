package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/asset"
	"github.com/jchantrell/gamepak/internal/cache"
	"github.com/jchantrell/gamepak/internal/export"
	"github.com/jchantrell/gamepak/internal/utils"
	"github.com/spf13/cobra"
)

var (
	extractOutput  string
	extractInclude []string
	extractExclude []string
	extractFlatten bool
	extractConvert bool
	extractWorkers int
)

var extractCmd = &cobra.Command{
	Use:   "extract <archive>",
	Short: "Extract entries from an archive to disk",
	Long: `Extract writes the entries of an archive below the output directory,
keeping their folder structure unless --flatten is given.

Without --output the entries go to the scratch directory under the
cache root, in a folder named after the archive. With --convert, DDS and TGA
textures are converted to PNG with ImageMagick.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		path := args[0]

		out := extractOutput
		if out == "" {
			dirs := cache.CacheManager()
			base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			out = filepath.Join(dirs.GetScratchDir(), base)
			if err := dirs.EnsureDir(out); err != nil {
				return fmt.Errorf("creating scratch directory: %w", err)
			}
		}

		workers := cfg.Workers
		if cmd.Flags().Changed("workers") {
			workers = extractWorkers
		}

		var dispatcher *asset.Dispatcher
		if extractConvert {
			magick := asset.NewMagick()
			if !magick.Available() {
				return fmt.Errorf("--convert needs ImageMagick (%s) in PATH", magick.Command)
			}
			dispatcher = asset.NewDispatcher()
			dispatcher.RegisterTexture(magick)
		}

		var progress *utils.Progress
		exporter, err := export.NewExporter(func() (*archive.Package, error) {
			return reg.Open(path)
		}, export.Options{
			OutputDir: out,
			Include:   extractInclude,
			Exclude:   extractExclude,
			Workers:   workers,
			Flatten:   extractFlatten,
			Convert:   dispatcher,
			Progress: func(current, total int, desc string) {
				if progress == nil {
					progress = utils.NewProgress(total, !noProgress)
				}
				progress.Update(current, desc)
			},
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		slog.Info("Extracting", "archive", path, "output", out, "workers", workers)
		summary, err := exporter.Export(ctx)
		if progress != nil {
			progress.Finish()
		}
		if err != nil {
			return fmt.Errorf("extracting %s: %w", path, err)
		}

		elapsed := time.Since(start)
		slog.Info("Extraction complete",
			"files", utils.Number(int64(summary.Files)),
			"bytes", utils.Number(summary.Bytes),
			"converted", summary.Converted,
			"duration", utils.Duration(elapsed),
			"rate", utils.Rate(float64(summary.Files)/elapsed.Seconds())+" files/s")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "output directory")
	extractCmd.Flags().StringSliceVarP(&extractInclude, "include", "i", nil, "only entries matching these patterns")
	extractCmd.Flags().StringSliceVarP(&extractExclude, "exclude", "x", nil, "skip entries matching these patterns")
	extractCmd.Flags().BoolVar(&extractFlatten, "flatten", false, "write all entries into one folder, replacing / with @")
	extractCmd.Flags().BoolVar(&extractConvert, "convert", false, "convert textures to PNG")
	extractCmd.Flags().IntVarP(&extractWorkers, "workers", "w", 0, "parallel workers (default from config)")
}

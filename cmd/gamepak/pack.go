package main

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/export"
	"github.com/jchantrell/gamepak/internal/formats"
	"github.com/jchantrell/gamepak/internal/utils"
	"github.com/spf13/cobra"
)

var (
	packFormat  string
	packMethod  string
	packInclude []string
	packExclude []string
	packStore   []string
)

var packCmd = &cobra.Command{
	Use:   "pack <dir> <archive>",
	Short: "Build a pak or gpak archive from a directory",
	Long: `Pack walks the directory and writes every file that passes the
include and exclude patterns into a new archive.

The pak format stores entries uncompressed. The gpak format compresses each
entry with --method, except entries matching --store.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, out := args[0], args[1]

		method, err := codec.ParseMethod(packMethod)
		if err != nil {
			return err
		}
		var write func(io.Writer, []formats.WriteFile) error
		switch packFormat {
		case "pak":
			if method != codec.None {
				return fmt.Errorf("pak entries are stored only, drop --method %s", method)
			}
			write = formats.WritePAK
		case "gpak":
			write = formats.WriteGPAK
		default:
			return fmt.Errorf("unknown pack format %q (want pak or gpak)", packFormat)
		}

		filter, err := export.NewFilter(packInclude, packExclude)
		if err != nil {
			return err
		}
		store, err := export.NewFilter(packStore, nil)
		if err != nil {
			return err
		}

		var files []formats.WriteFile
		var total int64
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			if !filter.Match(name) {
				return nil
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			m := method
			if len(packStore) > 0 && store.Match(name) {
				m = codec.None
			}
			files = append(files, formats.WriteFile{Name: name, Data: data, Method: m})
			total += int64(len(data))
			return nil
		})
		if err != nil {
			return fmt.Errorf("reading %s: %w", root, err)
		}

		tmp, err := os.CreateTemp(filepath.Dir(out), ".gamepak-*")
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		defer os.Remove(tmp.Name())

		w := bufio.NewWriter(tmp)
		if err := write(w, files); err != nil {
			tmp.Close()
			return fmt.Errorf("writing %s: %w", out, err)
		}
		if err := w.Flush(); err != nil {
			tmp.Close()
			return fmt.Errorf("writing %s: %w", out, err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		if err := os.Rename(tmp.Name(), out); err != nil {
			return fmt.Errorf("moving archive into place: %w", err)
		}

		slog.Info("Packed archive",
			"archive", out,
			"format", packFormat,
			"entries", len(files),
			"bytes", utils.Number(total))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(packCmd)
	packCmd.Flags().StringVarP(&packFormat, "format", "f", "gpak", "archive format (pak, gpak)")
	packCmd.Flags().StringVarP(&packMethod, "method", "m", "none", "compression method for gpak entries")
	packCmd.Flags().StringSliceVarP(&packInclude, "include", "i", nil, "only files matching these patterns")
	packCmd.Flags().StringSliceVarP(&packExclude, "exclude", "x", nil, "skip files matching these patterns")
	packCmd.Flags().StringSliceVar(&packStore, "store", nil, "store files matching these patterns uncompressed")
}

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jchantrell/gamepak/internal/codec/lzrw1"
	"github.com/jchantrell/gamepak/internal/utils"
	"github.com/spf13/cobra"
)

var lzrw1Cmd = &cobra.Command{
	Use:   "lzrw1",
	Short: "Compress or decompress single LZRW1 streams",
}

var lzrw1CompressCmd = &cobra.Command{
	Use:   "compress <in> <out>",
	Short: "Compress a file with LZRW1",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		dst := lzrw1.Compress(src)
		if err := os.WriteFile(args[1], dst, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", args[1], err)
		}
		slog.Info("Compressed", "in", utils.Number(int64(len(src))), "out", utils.Number(int64(len(dst))))
		return nil
	},
}

var lzrw1DecompressCmd = &cobra.Command{
	Use:   "decompress <in> <out>",
	Short: "Decompress an LZRW1 stream",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		dst, err := lzrw1.Decompress(src)
		if err != nil {
			return fmt.Errorf("decompressing %s: %w", args[0], err)
		}
		if err := os.WriteFile(args[1], dst, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", args[1], err)
		}
		slog.Info("Decompressed", "in", utils.Number(int64(len(src))), "out", utils.Number(int64(len(dst))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lzrw1Cmd)
	lzrw1Cmd.AddCommand(lzrw1CompressCmd, lzrw1DecompressCmd)
}

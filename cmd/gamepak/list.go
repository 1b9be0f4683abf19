package main

import (
	"fmt"
	"log/slog"

	"github.com/jchantrell/gamepak/internal/export"
	"github.com/jchantrell/gamepak/internal/utils"
	"github.com/spf13/cobra"
)

var (
	listInclude []string
	listExclude []string
	listLong    bool
)

var listCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "List the entries of an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := export.NewFilter(listInclude, listExclude)
		if err != nil {
			return err
		}

		pkg, err := reg.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer pkg.Close()

		slog.Debug("Listing package", "path", args[0], "format", pkg.Format(), "entries", pkg.Len())

		if listLong {
			fmt.Printf("%-12s %-12s %-12s %s\n", "Size", "Stored", "Method", "Name")
		}

		var shown, total int64
		for _, e := range pkg.Entries() {
			if !filter.Match(e.Name) {
				continue
			}
			shown++
			total += e.Size

			name := e.Name
			if e.Label != "" {
				name += " (" + e.Label + ")"
			}
			if listLong {
				fmt.Printf("%-12s %-12s %-12s %s\n",
					utils.Number(e.Size), utils.Number(e.CompressedSize), e.Compression, name)
			} else {
				fmt.Println(name)
			}
		}

		if listLong {
			fmt.Printf("%s entries, %s bytes (%s)\n", utils.Number(shown), utils.Number(total), pkg.Format())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringSliceVarP(&listInclude, "include", "i", nil, "only entries matching these patterns")
	listCmd.Flags().StringSliceVarP(&listExclude, "exclude", "x", nil, "skip entries matching these patterns")
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "show sizes and compression")
}

package main

import (
	"fmt"
	"strings"

	"github.com/jchantrell/gamepak/internal/formats"
	"github.com/jchantrell/gamepak/internal/registry"
	"github.com/spf13/cobra"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "Show the loaders and plugins the registry holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Plugin interface %s\n\n", registry.InterfaceVersion)

		mask, err := cfg.Mask()
		if err != nil {
			return err
		}
		fmt.Printf("%-10s %-8s %s\n", "Format", "Enabled", "Extensions")
		fmt.Println(strings.Repeat("-", 40))
		for _, f := range formats.Standard() {
			enabled := "no"
			if mask&f.Mask != 0 {
				enabled = "yes"
			}
			exts := make([]string, len(f.Extensions))
			for i, ext := range f.Extensions {
				if ext == "" {
					ext = "(none)"
				}
				exts[i] = ext
			}
			fmt.Printf("%-10s %-8s %s\n", f.Name, enabled, strings.Join(exts, ", "))
		}

		plugins := host.Plugins()
		if len(plugins) > 0 {
			fmt.Printf("\n%-16s %-6s %-20s %s\n", "Plugin", "ABI", "Extensions", "Path")
			fmt.Println(strings.Repeat("-", 60))
			for _, p := range plugins {
				fmt.Printf("%-16s %-6s %-20s %s\n", p.Name, p.ABI, strings.Join(p.Extensions, ", "), p.Path)
			}
		}

		fmt.Printf("\nLookup order per extension (newest first):\n")
		records := reg.Records()
		for _, ext := range reg.Extensions() {
			var names []string
			for i := len(records) - 1; i >= 0; i-- {
				if records[i].Ext == ext {
					names = append(names, records[i].Loader.LoaderName()+"/"+records[i].Kind())
				}
			}
			label := ext
			if label == "" {
				label = "(none)"
			}
			fmt.Printf("  %-10s %s\n", label, strings.Join(names, " -> "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}

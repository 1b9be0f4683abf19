package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var catIndex bool

var catCmd = &cobra.Command{
	Use:   "cat <archive> <entry>",
	Short: "Write one decoded entry to stdout",
	Long: `Cat looks the entry up by name, ignoring case and slash direction, and
writes its decoded bytes to stdout. With --index the second argument is the
entry's position in the archive table instead.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg, err := reg.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer pkg.Close()

		var data []byte
		if catIndex {
			i, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid entry index %q: %w", args[1], err)
			}
			data, err = pkg.Read(i)
			if err != nil {
				return err
			}
		} else {
			data, err = pkg.ReadName(args[1])
			if err != nil {
				return err
			}
		}

		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().BoolVar(&catIndex, "index", false, "select the entry by table index")
}

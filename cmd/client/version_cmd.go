package main

import (
	"fmt"

	"github.com/lumensite/lumen/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := version.Detailed()
			if short, _ := cmd.Flags().GetBool("short"); short {
				out = version.Version
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().Bool("short", false, "Print only the version number")
	return cmd
}

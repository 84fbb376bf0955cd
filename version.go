package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the supported store drivers",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ekaya-pivot %s\n", Version)

		for _, a := range store.RegisteredAdapters() {
			fmt.Printf("  %-10s %s\n", a.Driver, a.DisplayName)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

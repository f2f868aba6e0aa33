package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the meetsync version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("meetsync %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

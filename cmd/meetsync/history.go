package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/talkingcactus/meetsync/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent event publishes",
	Long: `List recent scheduled-event publishes from the audit log.

Every created or updated event is recorded in a SQLite database next
to the state file. Entries are shown newest first.`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		rt, err := buildRuntime()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		hist, err := history.Open(rt.historyPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
			os.Exit(1)
		}
		defer hist.Close()

		entries, err := hist.Recent(context.Background(), limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
			os.Exit(1)
		}

		if len(entries) == 0 {
			fmt.Println("No publishes recorded")
			return
		}

		for _, e := range entries {
			fmt.Printf("%s  %-7s  %-30s  starts %s  (event %s)\n",
				e.RecordedAt.Format("2006-01-02 15:04:05"),
				e.Action,
				e.Title,
				e.Start.Format("2006-01-02 15:04"),
				e.EventID)
		}
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

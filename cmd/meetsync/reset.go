package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/talkingcactus/meetsync/internal/state"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Repair or rewind the sync state",
	Long: `Repair the sync state file.

A plain reset reapplies defaults for any missing keys and leaves the
tracked events alone. With --hard the last-query timestamp rewinds to
the epoch and the tracked event mapping is discarded; the scheduled
events already on the server are not touched and the next sync will
create duplicates for any that still lie in the future.`,
	Run: func(cmd *cobra.Command, args []string) {
		hard, _ := cmd.Flags().GetBool("hard")

		rt, err := buildRuntime()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		st, err := rt.store.Reset(hard)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resetting state: %v\n", err)
			os.Exit(1)
		}

		if hard {
			fmt.Printf("State reset: query time rewound to %s, tracked events discarded\n",
				state.Epoch.Format("2006-01-02"))
		} else {
			fmt.Printf("State checked: %d tracked events, last query %s\n",
				len(st.Meetings), st.LastQueryTime.Format("2006-01-02 15:04:05"))
		}
	},
}

func init() {
	resetCmd.Flags().Bool("hard", false, "Rewind the query timestamp and discard tracked events")
	rootCmd.AddCommand(resetCmd)
}

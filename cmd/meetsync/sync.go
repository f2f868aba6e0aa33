package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass",
	Long: `Run a single reconciliation pass and exit.

The pass:
  1. Fetches meetings edited since the last run
  2. Creates or updates the matching scheduled events
  3. Drops tracked events whose start time has passed
  4. Persists the updated sync state`,
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := buildRuntime()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		hist := rt.openHistory()
		if hist != nil {
			defer hist.Close()
		}

		rec, err := rt.reconciler(hist)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		start := time.Now()
		summary, err := rec.Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			os.Exit(1)
		}

		elapsed := time.Since(start)
		fmt.Printf("Sync complete in %v\n", elapsed.Round(time.Millisecond))
		fmt.Printf("   Fetched: %d\n", summary.Fetched)
		fmt.Printf("   Created: %d\n", summary.Created)
		fmt.Printf("   Updated: %d\n", summary.Updated)
		fmt.Printf("   Skipped: %d\n", summary.Skipped)
		fmt.Printf("   Failed:  %d\n", summary.Failed)
		fmt.Printf("   Removed: %d\n", summary.Removed)
		if summary.FetchFailed {
			fmt.Println("   Warning: calendar fetch failed, only cleanup ran")
		}

		if summary.Failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

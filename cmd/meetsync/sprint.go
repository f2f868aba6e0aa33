package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/talkingcactus/meetsync/internal/discord"
	"github.com/talkingcactus/meetsync/internal/notion"
	"github.com/talkingcactus/meetsync/internal/sprint"
)

var sprintCmd = &cobra.Command{
	Use:   "sprint",
	Short: "Post the sprint status report now",
	Long: `Build the sprint status report and deliver it immediately.

Tasks are bucketed into Completed, In Progress, and Blocked sections
and split into pages of ten tasks. The report goes to the channel in
REPORT_CHANNEL_ID unless --stdout is given.

The sprint defaults to the current sprint recorded in the sync state;
override it with --sprint.`,
	Run: func(cmd *cobra.Command, args []string) {
		sprintID, _ := cmd.Flags().GetString("sprint")
		toStdout, _ := cmd.Flags().GetBool("stdout")

		rt, err := buildRuntime()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if rt.cfg.SprintDBID == "" {
			fmt.Fprintf(os.Stderr, "Error: SPRINT_DB_ID is not set\n")
			os.Exit(1)
		}

		if sprintID == "" {
			st, err := rt.store.Load()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading state: %v\n", err)
				os.Exit(1)
			}
			sprintID = st.CurrentSprintID
		}

		var dest sprint.Destination
		switch {
		case toStdout:
			dest = &sprint.WriterDestination{W: os.Stdout}
		case rt.cfg.ReportChannelID != "":
			dest = &discord.ChannelDestination{
				Client:    rt.discord,
				ChannelID: rt.cfg.ReportChannelID,
			}
		default:
			fmt.Fprintf(os.Stderr, "Error: REPORT_CHANNEL_ID is not set (or use --stdout)\n")
			os.Exit(1)
		}

		poster := &sprint.Poster{
			Source: &notion.TaskBoard{Client: rt.notion, DatabaseID: rt.cfg.SprintDBID},
			Logger: log.New(os.Stderr, "[sprint] ", log.LstdFlags),
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		report, err := poster.Post(ctx, sprintID, dest)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error posting report: %v\n", err)
			os.Exit(1)
		}

		if !toStdout {
			fmt.Printf("Report posted: %d completed, %d in progress, %d blocked\n",
				len(report.Completed), len(report.InProgress), len(report.Blocked))
		}
	},
}

func init() {
	sprintCmd.Flags().String("sprint", "", "Sprint id to report on (defaults to the current sprint)")
	sprintCmd.Flags().Bool("stdout", false, "Print the report instead of posting it")
	rootCmd.AddCommand(sprintCmd)
}

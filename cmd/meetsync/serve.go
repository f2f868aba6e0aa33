package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/talkingcactus/meetsync/internal/daemon"
	"github.com/talkingcactus/meetsync/internal/dashboard"
	"github.com/talkingcactus/meetsync/internal/discord"
	"github.com/talkingcactus/meetsync/internal/notion"
	"github.com/talkingcactus/meetsync/internal/sprint"
	"gopkg.in/natefinch/lumberjack.v2"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon:
  1. Reconciles the calendar on a fixed interval
  2. Re-reconciles immediately when the state file is edited externally
  3. Posts the weekly sprint report on the configured weekday
  4. Optionally broadcasts run results over a WebSocket dashboard

The weekly report requires SPRINT_DB_ID and REPORT_CHANNEL_ID; without
them the daemon only syncs the calendar.`,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		dashboardPort, _ := cmd.Flags().GetInt("dashboard-port")
		logFile, _ := cmd.Flags().GetString("log-file")

		var logOut io.Writer = os.Stderr
		if logFile != "" {
			logOut = &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    10, // megabytes
				MaxBackups: 5,
				MaxAge:     30, // days
			}
		}

		rt, err := buildRuntime()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		rt.notion = notion.NewClient(notion.Config{
			Token:  rt.cfg.NotionAPIKey,
			Logger: log.New(logOut, "[notion] ", log.LstdFlags),
		})
		rt.discord = discord.NewClient(discord.Config{
			BotToken: rt.cfg.BotToken,
			GuildID:  rt.cfg.GuildID,
			Logger:   log.New(logOut, "[discord] ", log.LstdFlags),
		})

		hist := rt.openHistory()
		if hist != nil {
			defer hist.Close()
		}

		rec, err := rt.reconciler(hist)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		deps := daemon.Deps{
			Store:      rt.store,
			Reconciler: rec,
		}

		if rt.cfg.SprintDBID != "" && rt.cfg.ReportChannelID != "" {
			deps.Poster = &sprint.Poster{
				Source: &notion.TaskBoard{Client: rt.notion, DatabaseID: rt.cfg.SprintDBID},
				Logger: log.New(logOut, "[sprint] ", log.LstdFlags),
			}
			deps.ReportDest = &discord.ChannelDestination{
				Client:    rt.discord,
				ChannelID: rt.cfg.ReportChannelID,
			}
		} else {
			fmt.Println("Sprint report disabled (SPRINT_DB_ID or REPORT_CHANNEL_ID not set)")
		}

		if dashboardPort > 0 {
			server := dashboard.NewServer(dashboard.Config{
				Port:   dashboardPort,
				Logger: log.New(logOut, "[dashboard] ", log.LstdFlags),
			})
			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			defer server.Stop()
			deps.Dashboard = server

			fmt.Printf("Dashboard: ws://localhost:%d/ws\n", dashboardPort)
			fmt.Printf("Health check: http://localhost:%d/health\n", dashboardPort)
		}

		cfg := daemon.DefaultConfig()
		cfg.SyncInterval = interval
		cfg.Logger = log.New(logOut, "[daemon] ", log.LstdFlags)

		d, err := daemon.New(deps, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Syncing every %v, state file %s\n", interval, rt.store.Path())
		fmt.Println("Press Ctrl+C to stop")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().Duration("interval", 15*time.Minute, "Time between reconciliation passes")
	serveCmd.Flags().Int("dashboard-port", 0, "WebSocket dashboard port (0 disables)")
	serveCmd.Flags().String("log-file", "", "Write logs to this file with rotation instead of stderr")
	rootCmd.AddCommand(serveCmd)
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/talkingcactus/meetsync/internal/config"
	"github.com/talkingcactus/meetsync/internal/discord"
	"github.com/talkingcactus/meetsync/internal/history"
	"github.com/talkingcactus/meetsync/internal/notion"
	"github.com/talkingcactus/meetsync/internal/reconcile"
	"github.com/talkingcactus/meetsync/internal/route"
	"github.com/talkingcactus/meetsync/internal/state"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "meetsync",
	Short: "Sync Notion calendar meetings to Discord scheduled events",
	Long: `meetsync mirrors a Notion calendar database into Discord scheduled
events and posts a weekly sprint status report.

Configuration comes from the environment (or a .env file):
  NOTION_API_KEY      Notion integration token           (required)
  CALENDAR_ID         Notion meetings database id        (required)
  DISCORD_BOT_TOKEN   Discord bot token                  (required)
  GUILD_ID            Discord server id                  (required)
  CONFIG_FILE         Path of the persisted sync state   (required)
  SPRINT_DB_ID        Notion sprint board database id    (optional)
  REPORT_CHANNEL_ID   Channel for the weekly report      (optional)
  ROUTES_FILE         YAML category routing overrides    (optional)`,
	SilenceUsage: true,
}

// runtime bundles the collaborators every command wires the same way.
type runtime struct {
	cfg     *config.Config
	store   *state.Store
	routes  route.Table
	notion  *notion.Client
	discord *discord.Client
}

// buildRuntime loads the environment and constructs the shared clients.
func buildRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	routes := route.Default()
	if cfg.RoutesFile != "" {
		routes, err = routes.LoadFile(cfg.RoutesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load routes file: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StateFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	return &runtime{
		cfg:    cfg,
		store:  state.NewStore(cfg.StateFile),
		routes: routes,
		notion: notion.NewClient(notion.Config{Token: cfg.NotionAPIKey}),
		discord: discord.NewClient(discord.Config{
			BotToken: cfg.BotToken,
			GuildID:  cfg.GuildID,
		}),
	}, nil
}

// historyPath is the publish audit database, next to the state file.
func (r *runtime) historyPath() string {
	return filepath.Join(r.store.Dir(), "history.db")
}

// openHistory opens the audit log. A failure is reported but never
// fatal; syncing works without the audit trail.
func (r *runtime) openHistory() *history.Log {
	hist, err := history.Open(r.historyPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: publish history unavailable: %v\n", err)
		return nil
	}
	return hist
}

// reconciler assembles the sync pipeline around the shared clients.
func (r *runtime) reconciler(hist *history.Log) (reconcile.Reconciler, error) {
	cfg := reconcile.Config{
		Store:     r.store,
		Source:    &notion.MeetingSource{Client: r.notion, DatabaseID: r.cfg.CalendarID},
		Publisher: r.discord,
		Routes:    r.routes,
	}
	if hist != nil {
		cfg.History = hist
	}
	return reconcile.New(cfg)
}

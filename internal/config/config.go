// Package config loads the environment-supplied configuration.
//
// Variables may come from the process environment or a .env file in
// the working directory; the environment wins.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Recognized environment variables.
const (
	EnvNotionAPIKey    = "NOTION_API_KEY"
	EnvCalendarID      = "CALENDAR_ID"
	EnvSprintDBID      = "SPRINT_DB_ID"
	EnvBotToken        = "DISCORD_BOT_TOKEN"
	EnvGuildID         = "GUILD_ID"
	EnvStateFile       = "CONFIG_FILE"
	EnvReportChannelID = "REPORT_CHANNEL_ID"
	EnvRoutesFile      = "ROUTES_FILE"
)

// ErrMissingEnv is returned when required variables are absent.
var ErrMissingEnv = errors.New("missing required environment variables")

// Config is the resolved environment configuration.
type Config struct {
	// NotionAPIKey authenticates calendar and sprint board queries.
	NotionAPIKey string

	// CalendarID is the meetings database id.
	CalendarID string

	// SprintDBID is the sprint board database id. Optional; the
	// sprint report is unavailable without it.
	SprintDBID string

	// BotToken is the chat-platform bot credential.
	BotToken string

	// GuildID is the server whose events are managed.
	GuildID string

	// StateFile is the path of the persisted sync state.
	StateFile string

	// ReportChannelID is where the weekly sprint report is posted.
	// Optional; without it serve mode skips the reminder.
	ReportChannelID string

	// RoutesFile optionally overrides the category routing table.
	RoutesFile string
}

// Load resolves the configuration from the environment, consulting a
// .env file first. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	for _, name := range []string{
		EnvNotionAPIKey, EnvCalendarID, EnvSprintDBID, EnvBotToken,
		EnvGuildID, EnvStateFile, EnvReportChannelID, EnvRoutesFile,
	} {
		if err := v.BindEnv(name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	cfg := &Config{
		NotionAPIKey:    v.GetString(EnvNotionAPIKey),
		CalendarID:      v.GetString(EnvCalendarID),
		SprintDBID:      v.GetString(EnvSprintDBID),
		BotToken:        v.GetString(EnvBotToken),
		GuildID:         v.GetString(EnvGuildID),
		StateFile:       v.GetString(EnvStateFile),
		ReportChannelID: v.GetString(EnvReportChannelID),
		RoutesFile:      v.GetString(EnvRoutesFile),
	}

	var missing []string
	for _, req := range []struct {
		name, value string
	}{
		{EnvNotionAPIKey, cfg.NotionAPIKey},
		{EnvCalendarID, cfg.CalendarID},
		{EnvBotToken, cfg.BotToken},
		{EnvGuildID, cfg.GuildID},
		{EnvStateFile, cfg.StateFile},
	} {
		if req.value == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	return cfg, nil
}

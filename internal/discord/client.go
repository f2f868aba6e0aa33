// Package discord publishes guild scheduled events and channel
// messages through the Discord REST API.
//
// The platform is treated as a stateless RPC collaborator: every call
// stands alone, and a failed call is reported to the caller without
// retry.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

const defaultBaseURL = "https://discord.com/api/v10"

// Scheduled event entity types, per the platform API.
const (
	// EntityTypeVoice hosts the event inside a voice channel.
	EntityTypeVoice = 2
	// EntityTypeExternal carries a free-text location instead.
	EntityTypeExternal = 3
)

// channelTypeVoice is the channel type discriminator for voice
// channels; events can only be hosted there, so name resolution
// ignores text channels of the same name.
const channelTypeVoice = 2

// ErrNotFound is returned when an event or channel lookup comes back
// negative. It is never fatal: callers fall back to create or skip.
var ErrNotFound = errors.New("not found")

// PublishError is returned when an event create or update fails. The
// reconciler skips the record and leaves its tracked entry untouched.
type PublishError struct {
	StatusCode int
	Body       string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("event publish failed: status %d: %s", e.StatusCode, e.Body)
}

// EventRequest describes one scheduled event to create or update.
// Exactly one of ChannelID and Location must be set, matching the
// entity type.
type EventRequest struct {
	Name  string
	Start time.Time
	End   time.Time

	EntityType int
	ChannelID  string // EntityTypeVoice
	Location   string // EntityTypeExternal

	// ExistingID selects update semantics (PATCH) when non-empty.
	ExistingID string
}

// ScheduledEvent is the subset of the platform event object this
// system reads back.
type ScheduledEvent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ChannelID string `json:"channel_id"`
	Status    int    `json:"status"`
}

// Channel is one entry of the guild channel list.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type int    `json:"type"`
}

// Config holds client configuration.
type Config struct {
	// BotToken is the bot credential (required).
	BotToken string

	// GuildID is the server whose events and channels are managed.
	GuildID string

	// BaseURL overrides the API base URL, for tests.
	BaseURL string

	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client

	// Logger defaults to a stderr logger.
	Logger *log.Logger
}

// Client talks to the Discord REST API for one guild.
type Client struct {
	token      string
	guildID    string
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a Discord client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[discord] ", log.LstdFlags)
	}
	return &Client{
		token:      cfg.BotToken,
		guildID:    cfg.GuildID,
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// UpsertEvent creates the scheduled event, or updates it when
// req.ExistingID is set. Returns the platform event id.
func (c *Client) UpsertEvent(ctx context.Context, req EventRequest) (string, error) {
	payload := map[string]any{
		"name":                 req.Name,
		"scheduled_start_time": req.Start.UTC().Format(time.RFC3339),
		"scheduled_end_time":   req.End.UTC().Format(time.RFC3339),
		"privacy_level":        2,
		"entity_type":          req.EntityType,
	}
	if req.EntityType == EntityTypeVoice {
		payload["channel_id"] = req.ChannelID
	} else {
		payload["entity_metadata"] = map[string]any{"location": req.Location}
	}

	method := http.MethodPost
	url := c.eventsURL()
	if req.ExistingID != "" {
		method = http.MethodPatch
		url = url + "/" + req.ExistingID
	}

	status, body, err := c.do(ctx, method, url, payload)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &PublishError{StatusCode: status, Body: string(body)}
	}

	var ev ScheduledEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", fmt.Errorf("failed to decode event response: %w", err)
	}
	return ev.ID, nil
}

// Event fetches a scheduled event by id. Returns ErrNotFound when the
// event no longer exists on the platform.
func (c *Client) Event(ctx context.Context, eventID string) (*ScheduledEvent, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.eventsURL()+"/"+eventID, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("event lookup failed: status %d: %s", status, body)
	}

	var ev ScheduledEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &ev, nil
}

// ResolveChannelID finds the voice channel with the given name.
// Text channels of the same name do not match. Returns ErrNotFound
// when no voice channel carries the name.
func (c *Client) ResolveChannelID(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("channel name is empty: %w", ErrNotFound)
	}

	url := fmt.Sprintf("%s/guilds/%s/channels", c.baseURL, c.guildID)
	status, body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("channel list failed: status %d: %s", status, body)
	}

	var channels []Channel
	if err := json.Unmarshal(body, &channels); err != nil {
		return "", fmt.Errorf("failed to decode channel list: %w", err)
	}

	for _, ch := range channels {
		if ch.Name == name && ch.Type == channelTypeVoice {
			return ch.ID, nil
		}
	}
	return "", fmt.Errorf("voice channel %q: %w", name, ErrNotFound)
}

// SendMessage posts a plain text message to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) error {
	url := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, channelID)
	status, body, err := c.do(ctx, http.MethodPost, url, map[string]any{"content": content})
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("message send failed: status %d: %s", status, body)
	}
	return nil
}

func (c *Client) eventsURL() string {
	return fmt.Sprintf("%s/guilds/%s/scheduled-events", c.baseURL, c.guildID)
}

// do issues one authenticated request and returns the status and body.
func (c *Client) do(ctx context.Context, method, url string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("discord request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

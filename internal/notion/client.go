// Package notion fetches meeting and sprint task records from Notion
// databases.
//
// The calendar database is queried read-only with a "last edited after
// T" filter, so a meeting edited after it was first synced reappears in
// later fetches. Callers must treat re-fetched records as idempotent
// input, not as new meetings.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
)

// RemoteError is returned when the Notion API responds with a
// non-success status. The caller degrades to an empty result set and
// leaves the last-query timestamp unadvanced; there is no retry.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("notion query failed: status %d: %s", e.StatusCode, e.Body)
}

// Meeting is one calendar record, already flattened from the Notion
// property structure.
type Meeting struct {
	ID           string
	Title        string
	Start        time.Time
	End          *time.Time // nil when the record has no explicit end
	Category     string
	Attendees    []string
	ExternalLink string
}

// Task is one sprint board record used by the report.
type Task struct {
	Title    string
	Status   string
	Assignee string
}

// Config holds client configuration.
type Config struct {
	// Token is the integration token (required).
	Token string

	// BaseURL overrides the Notion API base URL, for tests.
	BaseURL string

	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client

	// Logger defaults to a stderr logger.
	Logger *log.Logger
}

// Client queries Notion databases.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a Notion client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[notion] ", log.LstdFlags)
	}
	return &Client{
		token:      cfg.Token,
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// QueryMeetings fetches all meetings last edited after since, following
// cursor pagination until the database is exhausted.
func (c *Client) QueryMeetings(ctx context.Context, databaseID string, since time.Time) ([]Meeting, error) {
	filter := map[string]any{
		"timestamp": "last_edited_time",
		"last_edited_time": map[string]any{
			"after": since.UTC().Format(time.RFC3339),
		},
	}

	pages, err := c.queryAll(ctx, databaseID, filter)
	if err != nil {
		return nil, err
	}

	meetings := make([]Meeting, 0, len(pages))
	for _, p := range pages {
		m, err := parseMeeting(p)
		if err != nil {
			// A malformed record is skipped, not fatal: the rest of
			// the fetch window still syncs.
			c.logger.Printf("Skipping unparseable record %s: %v", p.ID, err)
			continue
		}
		meetings = append(meetings, m)
	}
	return meetings, nil
}

// QueryTasks fetches sprint board tasks. When sprintID is non-empty the
// query filters on the Sprint relation; otherwise the whole database is
// returned.
func (c *Client) QueryTasks(ctx context.Context, databaseID, sprintID string) ([]Task, error) {
	var filter map[string]any
	if sprintID != "" {
		filter = map[string]any{
			"property": "Sprint",
			"relation": map[string]any{"contains": sprintID},
		}
	}

	pages, err := c.queryAll(ctx, databaseID, filter)
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(pages))
	for _, p := range pages {
		tasks = append(tasks, parseTask(p))
	}
	return tasks, nil
}

// queryAll posts the database query and follows next_cursor pagination.
func (c *Client) queryAll(ctx context.Context, databaseID string, filter map[string]any) ([]page, error) {
	var (
		all    []page
		cursor string
	)

	for {
		payload := map[string]any{}
		if filter != nil {
			payload["filter"] = filter
		}
		if cursor != "" {
			payload["start_cursor"] = cursor
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal query: %w", err)
		}

		url := fmt.Sprintf("%s/databases/%s/query", c.baseURL, databaseID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Notion-Version", apiVersion)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("notion request failed: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &RemoteError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		var result queryResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}

		all = append(all, result.Results...)
		if !result.HasMore || result.NextCursor == "" {
			return all, nil
		}
		cursor = result.NextCursor
	}
}

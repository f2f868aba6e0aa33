package notion

import (
	"context"
	"time"
)

// MeetingSource binds a client to one calendar database, giving the
// reconciler a fetch surface without carrying the database id around.
type MeetingSource struct {
	Client     *Client
	DatabaseID string
}

// FetchSince returns meetings last edited after since.
func (s *MeetingSource) FetchSince(ctx context.Context, since time.Time) ([]Meeting, error) {
	return s.Client.QueryMeetings(ctx, s.DatabaseID, since)
}

// TaskBoard binds a client to the sprint database for the reporter.
type TaskBoard struct {
	Client     *Client
	DatabaseID string
}

// FetchTasks returns the board's tasks, filtered to a sprint when
// sprintID is non-empty.
func (b *TaskBoard) FetchTasks(ctx context.Context, sprintID string) ([]Task, error) {
	return b.Client.QueryTasks(ctx, b.DatabaseID, sprintID)
}

// Package reconcile implements the meeting-to-event reconciliation
// loop: fetch changed meetings, decide create versus update per
// record, garbage-collect expired tracked events, and persist the
// sync state.
package reconcile

import (
	"context"
	"time"

	"github.com/talkingcactus/meetsync/internal/discord"
	"github.com/talkingcactus/meetsync/internal/notion"
)

// Reconciler runs full reconciliation passes.
//
// A pass is fetch -> classify -> publish -> cleanup -> persist. Runs
// are serialized internally: a manual trigger arriving while a
// scheduled run is in flight waits for it to finish.
//
// Per-record failures never abort a pass. A meeting that could not be
// published this round keeps its tracked entry unchanged and is left
// for a future run; there is no retry queue.
type Reconciler interface {
	// Run executes one reconciliation pass and returns its summary.
	//
	// A failed remote fetch degrades to an empty record set (the
	// last-query timestamp is left unadvanced) and the pass still
	// performs cleanup and persists. Run returns an error only for
	// state-store failures, which are fatal to the pass.
	Run(ctx context.Context) (*Summary, error)
}

// Source fetches meeting records last modified after a timestamp.
// Because the remote filter is on modification time, previously synced
// meetings can reappear; the reconciler treats that as idempotent
// input.
type Source interface {
	FetchSince(ctx context.Context, since time.Time) ([]notion.Meeting, error)
}

// Publisher is the chat-platform surface the reconciler needs.
type Publisher interface {
	// UpsertEvent creates or updates a scheduled event, returning its id.
	UpsertEvent(ctx context.Context, req discord.EventRequest) (string, error)

	// Event verifies a remembered event id still resolves.
	Event(ctx context.Context, eventID string) (*discord.ScheduledEvent, error)

	// ResolveChannelID maps a voice channel name to its id.
	ResolveChannelID(ctx context.Context, name string) (string, error)
}

// Recorder receives an audit entry for every successful publish.
type Recorder interface {
	RecordPublish(ctx context.Context, meetingID, eventID, action, title string, start time.Time) error
}

// Summary reports what one pass did.
type Summary struct {
	RanAt       time.Time
	Fetched     int
	Created     int
	Updated     int
	Skipped     int
	Failed      int
	Removed     int
	FetchFailed bool
}

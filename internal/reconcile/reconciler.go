package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/talkingcactus/meetsync/internal/discord"
	"github.com/talkingcactus/meetsync/internal/notion"
	"github.com/talkingcactus/meetsync/internal/route"
	"github.com/talkingcactus/meetsync/internal/state"
)

// PlaceholderLocation is published for external meetings whose link
// field is empty.
const PlaceholderLocation = "Placeholder link"

// defaultDuration is the effective length of a meeting with no
// explicit end time.
const defaultDuration = time.Hour

// Config holds reconciler configuration.
type Config struct {
	// Store persists the sync state (required).
	Store *state.Store

	// Source fetches changed meetings (required).
	Source Source

	// Publisher manages platform events (required).
	Publisher Publisher

	// Routes maps categories to destinations. Defaults to the
	// built-in table.
	Routes route.Table

	// History receives publish audit entries. Optional; audit
	// failures are logged, never fatal.
	History Recorder

	// Logger defaults to a stderr logger.
	Logger *log.Logger

	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

// reconciler implements the Reconciler interface.
type reconciler struct {
	store     *state.Store
	source    Source
	publisher Publisher
	routes    route.Table
	history   Recorder
	logger    *log.Logger
	now       func() time.Time

	// runMu serializes passes: the state save is a full-file
	// overwrite, so two concurrent runs would race.
	runMu sync.Mutex
}

// New creates a Reconciler.
func New(cfg Config) (Reconciler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	if cfg.Routes == nil {
		cfg.Routes = route.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[reconcile] ", log.LstdFlags)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &reconciler{
		store:     cfg.Store,
		source:    cfg.Source,
		publisher: cfg.Publisher,
		routes:    cfg.Routes,
		history:   cfg.History,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// Run implements Reconciler.Run.
func (r *reconciler) Run(ctx context.Context) (*Summary, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	// One clock reading for the whole pass, so every comparison sees
	// the same T.
	now := r.now().UTC()
	summary := &Summary{RanAt: now}

	st, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	meetings, err := r.source.FetchSince(ctx, st.LastQueryTime)
	if err != nil {
		// Degrade to an empty fetch window. The timestamp stays put so
		// the next run re-covers the same window.
		r.logger.Printf("Fetch failed, continuing with empty result set: %v", err)
		summary.FetchFailed = true
		meetings = nil
	} else {
		st.LastQueryTime = now
		if err := r.store.Save(st); err != nil {
			return nil, fmt.Errorf("failed to persist query timestamp: %w", err)
		}
	}
	summary.Fetched = len(meetings)

	for _, m := range meetings {
		r.processMeeting(ctx, st, m, now, summary)
	}

	summary.Removed = st.RemoveExpired(now)

	if err := r.store.Save(st); err != nil {
		return nil, fmt.Errorf("failed to persist state: %w", err)
	}

	r.logger.Printf("Run complete: fetched=%d created=%d updated=%d skipped=%d failed=%d removed=%d",
		summary.Fetched, summary.Created, summary.Updated, summary.Skipped, summary.Failed, summary.Removed)

	return summary, nil
}

// processMeeting classifies and publishes one fetched record, updating
// the tracked-event mapping on success.
func (r *reconciler) processMeeting(ctx context.Context, st *state.SyncState, m notion.Meeting, now time.Time, summary *Summary) {
	end := effectiveEnd(m)
	if end.Before(now) {
		summary.Skipped++
		return
	}

	rt, ok := r.routes.Resolve(m.Category)
	if !ok {
		// Unknown calendar entries are not ours to sync.
		r.logger.Printf("Skipping %q: unrecognized category %q", m.Title, m.Category)
		summary.Skipped++
		return
	}

	req := discord.EventRequest{
		Name:  m.Title,
		Start: m.Start,
		End:   end,
	}
	if rt.External {
		req.EntityType = discord.EntityTypeExternal
		req.Location = m.ExternalLink
		if req.Location == "" {
			req.Location = PlaceholderLocation
		}
	} else {
		channelID, err := r.channelID(ctx, st, rt.ChannelName)
		if err != nil {
			r.logger.Printf("Skipping %q: %v", m.Title, err)
			summary.Failed++
			return
		}
		req.EntityType = discord.EntityTypeVoice
		req.ChannelID = channelID
	}

	req.ExistingID = r.liveEventID(ctx, st, m.ID, now)

	eventID, err := r.publisher.UpsertEvent(ctx, req)
	if err != nil {
		// The tracked entry is left untouched so the next run can try
		// again from the same decision point.
		r.logger.Printf("Failed to publish %q: %v", m.Title, err)
		summary.Failed++
		return
	}

	// The raw start is recorded, not the effective end, so cleanup
	// expires the entry as soon as the meeting has begun.
	st.Track(m.ID, eventID, m.Start)

	action := "created"
	if req.ExistingID != "" {
		action = "updated"
		summary.Updated++
	} else {
		summary.Created++
	}
	r.logger.Printf("Event %s for %q (%s)", action, m.Title, eventID)

	if r.history != nil {
		if err := r.history.RecordPublish(ctx, m.ID, eventID, action, m.Title, m.Start); err != nil {
			r.logger.Printf("Failed to record history for %q: %v", m.Title, err)
		}
	}
}

// channelID resolves a channel name through the persisted cache,
// falling back to the platform channel list.
func (r *reconciler) channelID(ctx context.Context, st *state.SyncState, name string) (string, error) {
	if id, ok := st.Channels[name]; ok && id != "" {
		return id, nil
	}

	id, err := r.publisher.ResolveChannelID(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve channel %q: %w", name, err)
	}

	if st.Channels == nil {
		st.Channels = make(map[string]string)
	}
	st.Channels[name] = id
	return id, nil
}

// liveEventID returns the tracked event id for a meeting when it is
// still usable for an update: the recorded start must be in the
// future and the event must still resolve on the platform. Anything
// else means create, even if a stale entry exists.
func (r *reconciler) liveEventID(ctx context.Context, st *state.SyncState, meetingID string, now time.Time) string {
	tracked, ok := st.Meetings[meetingID]
	if !ok || !tracked.StartTime.After(now) {
		return ""
	}

	if _, err := r.publisher.Event(ctx, tracked.EventID); err != nil {
		if !errors.Is(err, discord.ErrNotFound) {
			r.logger.Printf("Event lookup for %s failed, falling back to create: %v", tracked.EventID, err)
		}
		return ""
	}
	return tracked.EventID
}

// effectiveEnd returns the record's end time, defaulting to one hour
// after the start.
func effectiveEnd(m notion.Meeting) time.Time {
	if m.End != nil {
		return *m.End
	}
	return m.Start.Add(defaultDuration)
}

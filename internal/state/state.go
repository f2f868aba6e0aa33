// Package state persists the sync state for meetsync.
//
// All cross-invocation state lives in a single JSON document: the
// last-query timestamp, the meeting-to-event mapping, the cached
// channel ids, and the sprint reporter bookkeeping. The file is read
// once at startup and rewritten wholesale after every mutation.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrCorrupt is returned by Load when the state file exists but cannot
// be parsed. Callers must refuse to run rather than continue with an
// empty state: a silent reset would re-create every tracked event.
var ErrCorrupt = errors.New("state file is corrupt")

// Epoch is the initial last-query timestamp used on first run. Every
// meeting edited after this point is picked up by the first fetch.
var Epoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// TrackedEvent links a remote meeting id to the scheduled event that
// was published for it. An entry exists if and only if the event is
// believed to still exist on the platform and its start time had not
// passed as of the last reconciliation run.
type TrackedEvent struct {
	EventID   string    `json:"discord_event_id"`
	StartTime time.Time `json:"discord_event_time"`
}

// SyncState is the full persisted state document.
type SyncState struct {
	LastQueryTime time.Time               `json:"last_query_time"`
	Meetings      map[string]TrackedEvent `json:"meeting_dict"`

	// Channels caches category channel name -> channel id lookups so
	// the channel list is not re-fetched on every run.
	Channels map[string]string `json:"channel_dict,omitempty"`

	CurrentSprintID    string     `json:"current_sprint_id,omitempty"`
	LastSprintReminder *time.Time `json:"last_sprint_reminder,omitempty"`
}

// RemoveExpired deletes every tracked event whose recorded start time
// is before now and returns the number of entries removed. The
// corresponding platform events are left in place for history.
func (st *SyncState) RemoveExpired(now time.Time) int {
	removed := 0
	for id, ev := range st.Meetings {
		if ev.StartTime.Before(now) {
			delete(st.Meetings, id)
			removed++
		}
	}
	return removed
}

// Track records a successfully published event for a meeting,
// overwriting any previous entry for the same meeting id.
func (st *SyncState) Track(meetingID, eventID string, start time.Time) {
	st.Meetings[meetingID] = TrackedEvent{EventID: eventID, StartTime: start}
}

// Store reads and writes a SyncState bound to one file path.
type Store struct {
	path string
}

// NewStore creates a store for the given state file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file, applying defaults for missing keys.
//
// On first run (file absent) the defaults are persisted immediately so
// that a subsequent concurrent reader sees the same epoch. A file that
// exists but does not parse returns an error wrapping ErrCorrupt.
func (s *Store) Load() (*SyncState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		st := defaultState()
		if err := s.Save(st); err != nil {
			return nil, fmt.Errorf("failed to initialize state file: %w", err)
		}
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st SyncState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", s.path, ErrCorrupt, err)
	}

	applyDefaults(&st)
	return &st, nil
}

// Save overwrites the state file wholesale. The write goes through a
// temp file and rename so a crash mid-write cannot leave a truncated
// document behind. Callers must serialize concurrent writers.
func (s *Store) Save(st *SyncState) error {
	data, err := json.MarshalIndent(st, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Reset reloads the state from disk. A soft reset only reapplies
// defaults for missing keys. A hard reset additionally rewinds the
// last-query timestamp to the epoch and discards the tracked event
// mapping; the corresponding platform events become orphaned and must
// be cleaned up manually.
func (s *Store) Reset(hard bool) (*SyncState, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}

	if hard {
		st.LastQueryTime = Epoch
		st.Meetings = make(map[string]TrackedEvent)
		if err := s.Save(st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// ModTime returns the state file's last modification time, or the zero
// time if the file does not exist. Used by the daemon watcher to tell
// its own writes apart from external edits.
func (s *Store) ModTime() time.Time {
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Dir returns the directory containing the state file.
func (s *Store) Dir() string {
	return filepath.Dir(s.path)
}

func defaultState() *SyncState {
	return &SyncState{
		LastQueryTime: Epoch,
		Meetings:      make(map[string]TrackedEvent),
	}
}

func applyDefaults(st *SyncState) {
	if st.LastQueryTime.IsZero() {
		st.LastQueryTime = Epoch
	}
	if st.Meetings == nil {
		st.Meetings = make(map[string]TrackedEvent)
	}
}

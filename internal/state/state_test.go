package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// newTestStore creates a store backed by a file in a temp directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "config.json"))
}

func TestLoad_FirstRunInitializesDefaults(t *testing.T) {
	store := newTestStore(t)

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !st.LastQueryTime.Equal(Epoch) {
		t.Errorf("LastQueryTime = %v, want epoch %v", st.LastQueryTime, Epoch)
	}
	if len(st.Meetings) != 0 {
		t.Errorf("Meetings should be empty, got %d entries", len(st.Meetings))
	}

	// First run must persist the defaults immediately.
	if _, err := os.Stat(store.Path()); err != nil {
		t.Errorf("state file was not created on first run: %v", err)
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := store.Load()
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Load of corrupt file = %v, want ErrCorrupt", err)
	}
}

func TestLoad_MissingKeysGetDefaults(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(store.Path(), []byte(`{"current_sprint_id": "sp-1"}`), 0644); err != nil {
		t.Fatal(err)
	}

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !st.LastQueryTime.Equal(Epoch) {
		t.Errorf("missing last_query_time should default to epoch, got %v", st.LastQueryTime)
	}
	if st.Meetings == nil {
		t.Error("missing meeting_dict should default to an empty map")
	}
	if st.CurrentSprintID != "sp-1" {
		t.Errorf("CurrentSprintID = %q, want sp-1", st.CurrentSprintID)
	}
}

func TestSaveLoad_RoundTripFixedPoint(t *testing.T) {
	store := newTestStore(t)

	start := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	reminder := time.Date(2024, 5, 27, 9, 0, 0, 0, time.UTC)
	st := &SyncState{
		LastQueryTime: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Meetings: map[string]TrackedEvent{
			"m1": {EventID: "111", StartTime: start},
		},
		Channels:           map[string]string{"Dev": "222"},
		CurrentSprintID:    "sp-9",
		LastSprintReminder: &reminder,
	}

	if err := store.Save(st); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	first, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := store.Save(loaded); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	second, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Errorf("save(load()) is not a fixed point:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestSave_RequiredKeysPresent(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(defaultState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("state file is not valid JSON: %v", err)
	}
	for _, key := range []string{"last_query_time", "meeting_dict"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("state file missing required key %q", key)
		}
	}
}

func TestReset(t *testing.T) {
	store := newTestStore(t)

	start := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	st := &SyncState{
		LastQueryTime: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Meetings:      map[string]TrackedEvent{"m1": {EventID: "111", StartTime: start}},
		Channels:      map[string]string{"Dev": "222"},
	}
	if err := store.Save(st); err != nil {
		t.Fatal(err)
	}

	soft, err := store.Reset(false)
	if err != nil {
		t.Fatalf("soft Reset failed: %v", err)
	}
	if len(soft.Meetings) != 1 {
		t.Errorf("soft reset must keep the mapping, got %d entries", len(soft.Meetings))
	}
	if soft.LastQueryTime.Equal(Epoch) {
		t.Error("soft reset must not rewind last_query_time")
	}

	hard, err := store.Reset(true)
	if err != nil {
		t.Fatalf("hard Reset failed: %v", err)
	}
	if len(hard.Meetings) != 0 {
		t.Errorf("hard reset must clear the mapping, got %d entries", len(hard.Meetings))
	}
	if !hard.LastQueryTime.Equal(Epoch) {
		t.Errorf("hard reset must rewind last_query_time to epoch, got %v", hard.LastQueryTime)
	}
	if hard.Channels["Dev"] != "222" {
		t.Error("hard reset should keep the channel cache")
	}

	// The hard reset must be persisted.
	reloaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Meetings) != 0 {
		t.Error("hard reset was not persisted")
	}
}

func TestRemoveExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &SyncState{
		Meetings: map[string]TrackedEvent{
			"past":   {EventID: "1", StartTime: now.Add(-time.Hour)},
			"future": {EventID: "2", StartTime: now.Add(time.Hour)},
			"exact":  {EventID: "3", StartTime: now},
		},
	}

	removed := st.RemoveExpired(now)

	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := st.Meetings["past"]; ok {
		t.Error("expired entry was not removed")
	}
	if _, ok := st.Meetings["future"]; !ok {
		t.Error("future entry must survive cleanup")
	}
	if _, ok := st.Meetings["exact"]; !ok {
		t.Error("entry starting exactly at now must survive cleanup")
	}
}

package notion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// meetingPage builds a Notion-shaped calendar row.
func meetingPage(id, title, start, end, category, link string) map[string]any {
	date := map[string]any{"start": start}
	if end != "" {
		date["end"] = end
	}
	props := map[string]any{
		"Name": map[string]any{
			"title": []any{
				map[string]any{"text": map[string]any{"content": title}},
			},
		},
		"Event time": map[string]any{"date": date},
		"Type":       map[string]any{"select": map[string]any{"name": category}},
		"Attendees": map[string]any{
			"people": []any{map[string]any{"name": "Bill"}, map[string]any{"name": "Cuneyd"}},
		},
	}
	if link != "" {
		props["External link"] = map[string]any{"url": link}
	}
	return map[string]any{"id": id, "properties": props}
}

func queryResult(hasMore bool, cursor string, results ...map[string]any) map[string]any {
	r := map[string]any{"results": results, "has_more": hasMore}
	if cursor != "" {
		r["next_cursor"] = cursor
	}
	return r
}

func TestQueryMeetings(t *testing.T) {
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	var gotFilter map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Notion-Version"); got != apiVersion {
			t.Errorf("Notion-Version = %q, want %q", got, apiVersion)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("request body is not JSON: %v", err)
		}
		gotFilter, _ = payload["filter"].(map[string]any)

		json.NewEncoder(w).Encode(queryResult(false, "",
			meetingPage("m1", "Weekly Standup", "2024-06-01T14:00:00+00:00", "", "Team", ""),
			meetingPage("m2", "Publisher Call", "2024-06-02T10:00:00+00:00", "2024-06-02T11:30:00+00:00", "External", "https://example.com/call"),
		))
	}))
	defer srv.Close()

	c := NewClient(Config{Token: "secret", BaseURL: srv.URL})
	meetings, err := c.QueryMeetings(context.Background(), "db-1", since)
	if err != nil {
		t.Fatalf("QueryMeetings failed: %v", err)
	}

	if gotFilter["timestamp"] != "last_edited_time" {
		t.Errorf("filter timestamp = %v", gotFilter["timestamp"])
	}

	if len(meetings) != 2 {
		t.Fatalf("got %d meetings, want 2", len(meetings))
	}

	m1 := meetings[0]
	if m1.ID != "m1" || m1.Title != "Weekly Standup" || m1.Category != "Team" {
		t.Errorf("m1 = %+v", m1)
	}
	wantStart := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	if !m1.Start.Equal(wantStart) {
		t.Errorf("m1.Start = %v, want %v", m1.Start, wantStart)
	}
	if m1.End != nil {
		t.Errorf("m1.End = %v, want nil", m1.End)
	}
	if len(m1.Attendees) != 2 || m1.Attendees[0] != "Bill" {
		t.Errorf("m1.Attendees = %v", m1.Attendees)
	}

	m2 := meetings[1]
	if m2.End == nil || !m2.End.Equal(time.Date(2024, 6, 2, 11, 30, 0, 0, time.UTC)) {
		t.Errorf("m2.End = %v", m2.End)
	}
	if m2.ExternalLink != "https://example.com/call" {
		t.Errorf("m2.ExternalLink = %q", m2.ExternalLink)
	}
}

func TestQueryMeetings_Pagination(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)

		switch calls {
		case 1:
			if _, ok := payload["start_cursor"]; ok {
				t.Error("first request must not carry a cursor")
			}
			json.NewEncoder(w).Encode(queryResult(true, "cur-2",
				meetingPage("m1", "A", "2024-06-01T14:00:00Z", "", "Team", "")))
		case 2:
			if payload["start_cursor"] != "cur-2" {
				t.Errorf("start_cursor = %v, want cur-2", payload["start_cursor"])
			}
			json.NewEncoder(w).Encode(queryResult(false, "",
				meetingPage("m2", "B", "2024-06-02T14:00:00Z", "", "Team", "")))
		default:
			t.Error("unexpected extra request")
		}
	}))
	defer srv.Close()

	c := NewClient(Config{Token: "secret", BaseURL: srv.URL})
	meetings, err := c.QueryMeetings(context.Background(), "db-1", time.Time{})
	if err != nil {
		t.Fatalf("QueryMeetings failed: %v", err)
	}
	if len(meetings) != 2 {
		t.Fatalf("got %d meetings across pages, want 2", len(meetings))
	}
	if calls != 2 {
		t.Errorf("made %d requests, want 2", calls)
	}
}

func TestQueryMeetings_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"database not shared"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(Config{Token: "secret", BaseURL: srv.URL})
	_, err := c.QueryMeetings(context.Background(), "db-1", time.Time{})

	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("err = %v, want *RemoteError", err)
	}
	if remoteErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", remoteErr.StatusCode)
	}
}

func TestQueryMeetings_SkipsUnparseableRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		broken := map[string]any{"id": "bad", "properties": map[string]any{}}
		json.NewEncoder(w).Encode(queryResult(false, "",
			broken,
			meetingPage("m1", "Good", "2024-06-01T14:00:00Z", "", "Team", "")))
	}))
	defer srv.Close()

	c := NewClient(Config{Token: "secret", BaseURL: srv.URL})
	meetings, err := c.QueryMeetings(context.Background(), "db-1", time.Time{})
	if err != nil {
		t.Fatalf("QueryMeetings failed: %v", err)
	}
	if len(meetings) != 1 || meetings[0].ID != "m1" {
		t.Errorf("meetings = %+v, want only m1", meetings)
	}
}

func TestQueryTasks(t *testing.T) {
	taskPage := func(title, status string) map[string]any {
		return map[string]any{
			"id": "t-" + title,
			"properties": map[string]any{
				"Name": map[string]any{
					"title": []any{map[string]any{"text": map[string]any{"content": title}}},
				},
				"Status":   map[string]any{"select": map[string]any{"name": status}},
				"Assignee": map[string]any{"people": []any{map[string]any{"name": "Mina"}}},
			},
		}
	}

	var gotFilter map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)
		gotFilter, _ = payload["filter"].(map[string]any)

		json.NewEncoder(w).Encode(queryResult(false, "",
			taskPage("Fix login", "In Progress"),
			taskPage("Ship build", "Completed")))
	}))
	defer srv.Close()

	c := NewClient(Config{Token: "secret", BaseURL: srv.URL})
	tasks, err := c.QueryTasks(context.Background(), "db-2", "sprint-7")
	if err != nil {
		t.Fatalf("QueryTasks failed: %v", err)
	}

	if gotFilter["property"] != "Sprint" {
		t.Errorf("filter = %v, want Sprint relation filter", gotFilter)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].Title != "Fix login" || tasks[0].Status != "In Progress" || tasks[0].Assignee != "Mina" {
		t.Errorf("tasks[0] = %+v", tasks[0])
	}
}

func TestQueryTasks_NoSprintFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)
		if _, ok := payload["filter"]; ok {
			t.Error("empty sprint id must not send a filter")
		}
		json.NewEncoder(w).Encode(queryResult(false, ""))
	}))
	defer srv.Close()

	c := NewClient(Config{Token: "secret", BaseURL: srv.URL})
	if _, err := c.QueryTasks(context.Background(), "db-2", ""); err != nil {
		t.Fatalf("QueryTasks failed: %v", err)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-06-01T14:00:00Z", time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC), false},
		{"2024-06-01T14:00:00.000+00:00", time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC), false},
		{"2024-06-01", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), false},
		{"yesterday", time.Time{}, true},
		{"", time.Time{}, true},
	}

	for _, tt := range tests {
		got, err := parseTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTime(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

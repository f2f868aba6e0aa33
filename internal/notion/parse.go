package notion

import (
	"fmt"
	"strings"
	"time"
)

// queryResponse is the database query envelope.
type queryResponse struct {
	Results    []page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// page is one database row with its raw property map.
type page struct {
	ID         string              `json:"id"`
	Properties map[string]property `json:"properties"`
}

// property covers the subset of Notion property types this system
// reads. Only the variant matching the property's type is populated.
type property struct {
	Title  []richText `json:"title"`
	Date   *dateRange `json:"date"`
	Select *selectVal `json:"select"`
	Status *selectVal `json:"status"`
	People []person   `json:"people"`
	URL    string     `json:"url"`
}

type richText struct {
	Text *struct {
		Content string `json:"content"`
	} `json:"text"`
}

type dateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type selectVal struct {
	Name string `json:"name"`
}

type person struct {
	Name string `json:"name"`
}

// parseMeeting flattens a calendar row into a Meeting. The row must
// carry an "Event time" date with a start; everything else defaults.
func parseMeeting(p page) (Meeting, error) {
	m := Meeting{ID: p.ID, Category: "Unknown"}

	timeProp, ok := p.Properties["Event time"]
	if !ok || timeProp.Date == nil || timeProp.Date.Start == "" {
		return m, fmt.Errorf("record has no Event time")
	}

	start, err := parseTime(timeProp.Date.Start)
	if err != nil {
		return m, fmt.Errorf("bad start time %q: %w", timeProp.Date.Start, err)
	}
	m.Start = start

	if timeProp.Date.End != "" {
		end, err := parseTime(timeProp.Date.End)
		if err != nil {
			return m, fmt.Errorf("bad end time %q: %w", timeProp.Date.End, err)
		}
		m.End = &end
	}

	m.Title = joinTitle(p.Properties["Name"].Title)

	if sel := p.Properties["Type"].Select; sel != nil && sel.Name != "" {
		m.Category = sel.Name
	}

	for _, person := range p.Properties["Attendees"].People {
		name := person.Name
		if name == "" {
			name = "Unknown"
		}
		m.Attendees = append(m.Attendees, name)
	}

	m.ExternalLink = p.Properties["External link"].URL

	return m, nil
}

// parseTask flattens a sprint board row. The status may arrive as a
// select or a native status property depending on the database schema.
func parseTask(p page) Task {
	t := Task{Title: joinTitle(p.Properties["Name"].Title)}

	statusProp := p.Properties["Status"]
	switch {
	case statusProp.Status != nil:
		t.Status = statusProp.Status.Name
	case statusProp.Select != nil:
		t.Status = statusProp.Select.Name
	}

	if people := p.Properties["Assignee"].People; len(people) > 0 {
		t.Assignee = people[0].Name
	}
	return t
}

// joinTitle concatenates the text fragments of a rich-text title.
func joinTitle(fragments []richText) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f.Text != nil {
			parts = append(parts, f.Text.Content)
		}
	}
	return strings.Join(parts, " ")
}

// parseTime accepts the timestamp shapes Notion emits: full RFC 3339
// (with or without sub-second precision) and bare dates for all-day
// entries.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}

// Package sprint renders the sprint status report posted to chat.
//
// The report is derived fresh from a live board query on every call;
// nothing here carries state between invocations.
package sprint

import (
	"fmt"
	"strings"

	"github.com/talkingcactus/meetsync/internal/notion"
)

// Bucket names. Status matching is case-insensitive exact; any other
// status is excluded from the report entirely.
const (
	StatusCompleted  = "Completed"
	StatusInProgress = "In Progress"
	StatusBlocked    = "Blocked"
)

// PageSize is the number of tasks per rendered section page.
const PageSize = 10

// maxBlockLen is the message budget of a single rendered page. Pages
// that would exceed it are re-chunked.
const maxBlockLen = 2000

// Report holds tasks bucketed by status.
type Report struct {
	Completed  []notion.Task
	InProgress []notion.Task
	Blocked    []notion.Task
}

// BuildReport buckets tasks into the three report categories.
func BuildReport(tasks []notion.Task) *Report {
	r := &Report{}
	for _, t := range tasks {
		switch strings.ToLower(strings.TrimSpace(t.Status)) {
		case strings.ToLower(StatusCompleted):
			r.Completed = append(r.Completed, t)
		case strings.ToLower(StatusInProgress):
			r.InProgress = append(r.InProgress, t)
		case strings.ToLower(StatusBlocked):
			r.Blocked = append(r.Blocked, t)
		}
	}
	return r
}

// Total returns the number of tasks across all buckets.
func (r *Report) Total() int {
	return len(r.Completed) + len(r.InProgress) + len(r.Blocked)
}

// Pages renders the report as a sequence of message-sized pages with
// pageSize tasks per section page. A page that would still exceed the
// message budget is split further.
func (r *Report) Pages(pageSize int) []string {
	if pageSize <= 0 {
		pageSize = PageSize
	}

	var pages []string
	sections := []struct {
		title string
		tasks []notion.Task
	}{
		{StatusCompleted, r.Completed},
		{StatusInProgress, r.InProgress},
		{StatusBlocked, r.Blocked},
	}

	for _, sec := range sections {
		if len(sec.tasks) == 0 {
			continue
		}
		for start := 0; start < len(sec.tasks); start += pageSize {
			end := start + pageSize
			if end > len(sec.tasks) {
				end = len(sec.tasks)
			}
			header := fmt.Sprintf("**%s** (%d)", sec.title, len(sec.tasks))
			pages = append(pages, chunk(header, sec.tasks[start:end])...)
		}
	}

	if len(pages) == 0 {
		pages = []string{"No tasks in the current sprint."}
	}
	return pages
}

// chunk renders one page, splitting it when the rendered text exceeds
// the message budget.
func chunk(header string, tasks []notion.Task) []string {
	var (
		pages []string
		b     strings.Builder
	)
	b.WriteString(header)

	flush := func() {
		pages = append(pages, b.String())
		b.Reset()
		b.WriteString(header + " (cont.)")
	}

	for _, t := range tasks {
		line := "\n- " + renderTask(t)
		if b.Len()+len(line) > maxBlockLen {
			flush()
		}
		b.WriteString(line)
	}
	pages = append(pages, b.String())
	return pages
}

func renderTask(t notion.Task) string {
	if t.Assignee != "" {
		return fmt.Sprintf("%s (%s)", t.Title, t.Assignee)
	}
	return t.Title
}

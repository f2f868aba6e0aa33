package sprint

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/talkingcactus/meetsync/internal/notion"
)

// Destination is anything capable of receiving a rendered report page.
// Both the manual command path and the scheduled reminder path
// construct one and hand it to the Poster, so the two share all
// rendering logic.
type Destination interface {
	Send(ctx context.Context, content string) error
}

// WriterDestination writes pages to an io.Writer, used by the CLI.
type WriterDestination struct {
	W io.Writer
}

func (d *WriterDestination) Send(_ context.Context, content string) error {
	_, err := fmt.Fprintln(d.W, content)
	return err
}

// TaskQuerier queries the sprint board for tasks.
type TaskQuerier interface {
	FetchTasks(ctx context.Context, sprintID string) ([]notion.Task, error)
}

// Poster builds a fresh report and delivers its pages.
type Poster struct {
	Source TaskQuerier
	Logger *log.Logger
}

// Post queries the board, renders the report, and sends every page to
// the destination in order. Delivery stops at the first send failure.
func (p *Poster) Post(ctx context.Context, sprintID string, dest Destination) (*Report, error) {
	logger := p.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sprint] ", log.LstdFlags)
	}

	tasks, err := p.Source.FetchTasks(ctx, sprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sprint board: %w", err)
	}

	report := BuildReport(tasks)
	pages := report.Pages(PageSize)
	logger.Printf("Posting sprint report: %d tasks, %d pages", report.Total(), len(pages))

	for i, page := range pages {
		if err := dest.Send(ctx, page); err != nil {
			return report, fmt.Errorf("failed to send page %d/%d: %w", i+1, len(pages), err)
		}
	}
	return report, nil
}

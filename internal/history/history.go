// Package history keeps a local audit log of published events.
//
// Every successful create or update the reconciler performs is
// appended to an embedded SQLite database next to the state file, so
// past publishes can be inspected after the tracked-event mapping has
// been garbage-collected.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Entry is one recorded publish.
type Entry struct {
	ID         int64
	MeetingID  string
	EventID    string
	Action     string // created or updated
	Title      string
	Start      time.Time
	RecordedAt time.Time
}

// Log is the append-only publish log.
type Log struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the history database at path and ensures the
// schema exists. The caller must Close it when done.
func Open(path string) (*Log, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	l := &Log{conn: conn, path: path}

	if _, err := l.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := l.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := l.initSchema(); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying database connection.
func (l *Log) Close() error {
	if l.conn == nil {
		return nil
	}
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	l.conn = nil
	return nil
}

// initSchema creates the publishes table. Idempotent.
func (l *Log) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS publishes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	meeting_id  TEXT NOT NULL,
	event_id    TEXT NOT NULL,
	action      TEXT NOT NULL,
	title       TEXT NOT NULL,
	start_time  TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_publishes_meeting ON publishes(meeting_id);
CREATE INDEX IF NOT EXISTS idx_publishes_recorded ON publishes(recorded_at);
`
	if _, err := l.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// RecordPublish appends one publish to the log. It satisfies the
// reconciler's Recorder interface.
func (l *Log) RecordPublish(ctx context.Context, meetingID, eventID, action, title string, start time.Time) error {
	const insert = `
INSERT INTO publishes (meeting_id, event_id, action, title, start_time, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)`

	_, err := l.conn.ExecContext(ctx, insert,
		meetingID, eventID, action, title,
		start.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record publish: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
SELECT id, meeting_id, event_id, action, title, start_time, recorded_at
FROM publishes
ORDER BY id DESC
LIMIT ?`

	rows, err := l.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e              Entry
			startStr, recStr string
		)
		if err := rows.Scan(&e.ID, &e.MeetingID, &e.EventID, &e.Action, &e.Title, &startStr, &recStr); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if e.Start, err = time.Parse(time.RFC3339, startStr); err != nil {
			return nil, fmt.Errorf("bad start_time %q in history: %w", startStr, err)
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339, recStr); err != nil {
			return nil, fmt.Errorf("bad recorded_at %q in history: %w", recStr, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history iteration failed: %w", err)
	}
	return entries, nil
}

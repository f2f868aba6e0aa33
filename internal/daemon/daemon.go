// Package daemon runs meetsync as a long-lived service.
//
// The daemon:
// 1. Runs a reconciliation pass on a fixed interval
// 2. Posts the weekly sprint report, at most once per calendar day
// 3. Watches the state file for external edits and reacts to them
// 4. Handles graceful shutdown
//
// Scheduled and watcher-triggered passes all funnel through one loop
// goroutine, so a reminder can never interleave with a reconciliation
// against the same state file.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/talkingcactus/meetsync/internal/dashboard"
	"github.com/talkingcactus/meetsync/internal/reconcile"
	"github.com/talkingcactus/meetsync/internal/sprint"
	"github.com/talkingcactus/meetsync/internal/state"
)

// Config holds daemon configuration.
type Config struct {
	// SyncInterval is how often a reconciliation pass runs.
	SyncInterval time.Duration

	// ReminderWeekday is the day the sprint report is posted.
	ReminderWeekday time.Weekday

	// DebounceInterval batches rapid state-file events together.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger

	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     15 * time.Minute,
		ReminderWeekday:  time.Monday,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
		Now:              time.Now,
	}
}

// Deps are the collaborators the daemon drives.
type Deps struct {
	// Store is the persisted sync state (required).
	Store *state.Store

	// Reconciler runs the sync passes (required).
	Reconciler reconcile.Reconciler

	// Poster renders and delivers the sprint report. Optional; when
	// nil (or ReportDest is nil) the weekly reminder is disabled.
	Poster *sprint.Poster

	// ReportDest receives the weekly report pages.
	ReportDest sprint.Destination

	// Dashboard receives run and report broadcasts. Optional.
	Dashboard *dashboard.Server
}

// Daemon orchestrates periodic reconciliation and the weekly report.
type Daemon struct {
	deps   Deps
	config *Config

	watcher     *fsnotify.Watcher
	pendingEdit time.Time
	pendingMu   sync.Mutex

	// selfModTime is the state file's modtime after our own last
	// write; a watcher event leaving the modtime there is our write.
	selfModTime time.Time
	selfModMu   sync.Mutex

	trigger chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon.
func New(deps Deps, config *Config) (*Daemon, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deps.Reconciler == nil {
		return nil, fmt.Errorf("reconciler cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		deps:    deps,
		config:  config,
		watcher: watcher,
		trigger: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start runs the daemon until ctx is cancelled. An initial pass runs
// immediately.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	// The state file is replaced by rename on every save, so the
	// watch goes on its directory.
	if err := d.watcher.Add(d.deps.Store.Dir()); err != nil {
		return fmt.Errorf("failed to watch state directory: %w", err)
	}

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processPendingEdits()

	d.runOnce(d.ctx)
	d.maybePostReminder(d.ctx)

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("Shutdown signal received")
			return d.Stop()
		case <-d.ctx.Done():
			return nil
		case <-ticker.C:
			d.runOnce(d.ctx)
			d.maybePostReminder(d.ctx)
		case <-d.trigger:
			d.config.Logger.Println("State file edited externally, reconciling")
			d.runOnce(d.ctx)
		}
	}
}

// Stop shuts the daemon down and waits for its goroutines.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")
	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()
	d.config.Logger.Println("Daemon stopped")
	return nil
}

// runOnce executes one reconciliation pass and records the resulting
// state-file modtime as our own.
func (d *Daemon) runOnce(ctx context.Context) {
	summary, err := d.deps.Reconciler.Run(ctx)
	if err != nil {
		d.config.Logger.Printf("Reconciliation failed: %v", err)
		return
	}

	d.markSelfWrite()

	if d.deps.Dashboard != nil {
		d.deps.Dashboard.PublishRun(summary)
	}
}

// maybePostReminder posts the sprint report when it is due: the
// configured weekday, and not already posted today (the persisted
// reminder date makes the trigger idempotent across restarts).
func (d *Daemon) maybePostReminder(ctx context.Context) {
	if d.deps.Poster == nil || d.deps.ReportDest == nil {
		return
	}

	now := d.config.Now()
	st, err := d.deps.Store.Load()
	if err != nil {
		d.config.Logger.Printf("Cannot check reminder state: %v", err)
		return
	}
	if !reminderDue(st, now, d.config.ReminderWeekday) {
		return
	}

	report, err := d.deps.Poster.Post(ctx, st.CurrentSprintID, d.deps.ReportDest)
	if err != nil {
		d.config.Logger.Printf("Sprint report failed: %v", err)
		return
	}

	st.LastSprintReminder = &now
	if err := d.deps.Store.Save(st); err != nil {
		d.config.Logger.Printf("Failed to persist reminder timestamp: %v", err)
	}
	d.markSelfWrite()

	d.config.Logger.Printf("Sprint report posted: %d tasks", report.Total())
	if d.deps.Dashboard != nil {
		pages := report.Pages(sprint.PageSize)
		d.deps.Dashboard.PublishReport(len(report.Completed), len(report.InProgress), len(report.Blocked), len(pages))
	}
}

// reminderDue reports whether the weekly report should be posted now.
func reminderDue(st *state.SyncState, now time.Time, weekday time.Weekday) bool {
	if now.Weekday() != weekday {
		return false
	}
	if st.LastSprintReminder == nil {
		return true
	}
	return !sameDay(*st.LastSprintReminder, now)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (d *Daemon) markSelfWrite() {
	d.selfModMu.Lock()
	d.selfModTime = d.deps.Store.ModTime()
	d.selfModMu.Unlock()
}

// watchFileEvents queues state-file events for debounced processing.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	stateFile := filepath.Base(d.deps.Store.Path())

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != stateFile {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			d.pendingMu.Lock()
			d.pendingEdit = time.Now()
			d.pendingMu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processPendingEdits fires the reconcile trigger once a queued edit
// has settled and was not caused by our own save.
func (d *Daemon) processPendingEdits() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.pendingMu.Lock()
			pending := d.pendingEdit
			if pending.IsZero() || time.Since(pending) < d.config.DebounceInterval {
				d.pendingMu.Unlock()
				continue
			}
			d.pendingEdit = time.Time{}
			d.pendingMu.Unlock()

			if d.isSelfWrite() {
				continue
			}

			select {
			case d.trigger <- struct{}{}:
			default:
			}
		}
	}
}

func (d *Daemon) isSelfWrite() bool {
	d.selfModMu.Lock()
	defer d.selfModMu.Unlock()
	return d.deps.Store.ModTime().Equal(d.selfModTime)
}

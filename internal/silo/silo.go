// Package silo owns one corpus: its configured directories, its per-silo
// store, and the watcher/reconciler pair that keep the store in sync. A
// silo is the unit the orchestrator schedules onto the global indexing
// queue and reports on in the activity feed.
//
// Grounded on the teacher's internal/index.Coordinator (which already
// sequences file-event handling for one project — HandleEvents/handleEvent
// switching on watcher.Operation) generalized to own explicit state
// transitions and an activity ring buffer instead of only mutating a
// metadata store directly.
package silo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/localcorpus/silod/internal/reconcile"
	"github.com/localcorpus/silod/internal/watcher"
)

// State is one point in a silo's lifecycle.
type State string

const (
	StateIdle     State = "idle"
	StateIndexing State = "indexing"
	StateWaiting  State = "waiting" // queued on the global indexing queue, not yet running
	StateStopped  State = "stopped"
	StateError    State = "error"
)

// Config holds one silo's attributes (spec's `Silo` data model entity).
type Config struct {
	// ID uniquely identifies the silo (also its indexing queue job ID prefix).
	ID string

	// Name is the human-facing, renameable label.
	Name string

	// Directories is the non-empty list of absolute paths this silo indexes.
	Directories []string

	// DBPath is the path to this silo's SQLite database file.
	DBPath string

	// ModelID selects the embedding model/backend this silo uses.
	ModelID string

	// IgnorePatterns are additional gitignore-syntax exclude patterns applied
	// on top of each directory's own .gitignore files.
	IgnorePatterns []string

	// IgnoreFilePatterns are glob patterns matched against file names only.
	IgnoreFilePatterns []string

	CreatedAt time.Time
}

// Validate reports whether cfg is well-formed enough to run a silo with.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("silo config requires an ID")
	}
	if len(c.Directories) == 0 {
		return fmt.Errorf("silo %q requires at least one directory", c.ID)
	}
	if c.DBPath == "" {
		return fmt.Errorf("silo %q requires a db_path", c.ID)
	}
	return nil
}

// ActivityEvent is one entry in a silo's activity feed.
type ActivityEvent struct {
	Time   time.Time
	SiloID string
	Kind   string // "state_change", "reconcile_progress", "indexed", "removed", "error"
	Detail string
}

// DefaultActivityCapacity is how many recent events a silo retains.
const DefaultActivityCapacity = 200

// activityRing is a fixed-capacity circular buffer of ActivityEvents.
// Grounded on the teacher's async.IndexProgress "mutex-guarded struct,
// immutable snapshot" idiom, generalized from one latest-state struct to a
// bounded history.
type activityRing struct {
	mu     sync.Mutex
	events []ActivityEvent
	cap    int
	start  int // index of the oldest event
	count  int
}

func newActivityRing(capacity int) *activityRing {
	if capacity <= 0 {
		capacity = DefaultActivityCapacity
	}
	return &activityRing{events: make([]ActivityEvent, capacity), cap: capacity}
}

func (r *activityRing) push(e ActivityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < r.cap {
		r.events[(r.start+r.count)%r.cap] = e
		r.count++
	} else {
		r.events[r.start] = e
		r.start = (r.start + 1) % r.cap
	}
}

// recent returns up to n of the most recently pushed events, newest last.
// n <= 0 returns everything retained.
func (r *activityRing) recent(n int) []ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]ActivityEvent, n)
	for i := 0; i < n; i++ {
		idx := (r.start + r.count - n + i) % r.cap
		out[i] = r.events[idx]
	}
	return out
}

// Silo owns one corpus's lifecycle: state, activity history, and the
// watcher/reconciler pair. Indexing/removal work itself is delegated to
// IndexFile/RemoveFile hooks so Silo stays independent of the concrete
// chunk/embed/store pipeline an orchestrator wires in — that separation is
// what lets this package's tests run without a real embedder.
type Silo struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	lastErr  error
	activity *activityRing
	watcher  *watcher.MultiRootWatcher

	reconciler *reconcile.Reconciler

	// IndexFile (re)indexes a single file. Required for Reconcile/Watch to
	// do anything beyond diffing.
	IndexFile func(ctx context.Context, path string) error

	// RemoveFile removes a single file's chunks from the store.
	RemoveFile func(ctx context.Context, path string) error
}

// New creates a Silo in the idle state.
func New(cfg Config, reconciler *reconcile.Reconciler) (*Silo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Silo{
		cfg:        cfg,
		state:      StateIdle,
		activity:   newActivityRing(DefaultActivityCapacity),
		reconciler: reconciler,
	}, nil
}

// Config returns the silo's configuration.
func (s *Silo) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Rename updates the silo's display name.
func (s *Silo) Rename(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Name = name
}

// UpdateDirectories replaces the silo's directory list and ignore patterns.
// Takes effect on the next Reconcile/Watch call; an already-running Watch
// loop must be stopped and restarted by the caller to pick up the new
// directory list, since watcher.MultiRootWatcher is not itself mutable.
func (s *Silo) UpdateDirectories(dirs, ignorePatterns, ignoreFilePatterns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dirs != nil {
		s.cfg.Directories = dirs
	}
	if ignorePatterns != nil {
		s.cfg.IgnorePatterns = ignorePatterns
	}
	if ignoreFilePatterns != nil {
		s.cfg.IgnoreFilePatterns = ignoreFilePatterns
	}
}

// State returns the silo's current lifecycle state.
func (s *Silo) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error that most recently moved this silo to the
// error state, if any.
func (s *Silo) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Silo) setState(st State, detail string) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()

	if changed {
		s.record("state_change", fmt.Sprintf("%s: %s", detail, st))
	}
}

func (s *Silo) fail(err error) {
	s.mu.Lock()
	s.state = StateError
	s.lastErr = err
	s.mu.Unlock()
	s.record("error", err.Error())
}

func (s *Silo) record(kind, detail string) {
	s.activity.push(ActivityEvent{
		Time:   time.Now(),
		SiloID: s.cfg.ID,
		Kind:   kind,
		Detail: detail,
	})
}

// Activity returns up to n of the silo's most recent activity events
// (newest last). n <= 0 returns everything retained.
func (s *Silo) Activity(n int) []ActivityEvent {
	return s.activity.recent(n)
}

// Reconcile runs one breadth-first reconciliation pass over the silo's
// directories, indexing additions/modifications and removing deletions.
// Moves the silo to StateIndexing for the duration and back to StateIdle
// (or StateError, if the pass itself failed) on return.
func (s *Silo) Reconcile(ctx context.Context) error {
	s.setState(StateIndexing, "reconcile start")

	changes, err := s.reconciler.Reconcile(ctx, s.cfg.ID, s.cfg.Directories, reconcile.Options{
		ExcludePatterns: s.cfg.IgnoreFilePatterns,
		OnProgress: func(ev reconcile.ProgressEvent) {
			s.record("reconcile_progress", fmt.Sprintf("%s (%d scanned)", ev.Path, ev.Scanned))
		},
	})
	if err != nil {
		s.fail(fmt.Errorf("reconcile: %w", err))
		return err
	}

	var failures int
	for _, change := range changes {
		select {
		case <-ctx.Done():
			s.fail(ctx.Err())
			return ctx.Err()
		default:
		}

		switch change.Kind {
		case reconcile.ChangeAdded, reconcile.ChangeModified:
			if s.IndexFile == nil {
				continue
			}
			if err := s.IndexFile(ctx, change.Path); err != nil {
				failures++
				s.record("error", fmt.Sprintf("index %s: %v", change.Path, err))
				continue
			}
			s.record("indexed", change.Path)
		case reconcile.ChangeRemoved:
			if s.RemoveFile == nil {
				continue
			}
			if err := s.RemoveFile(ctx, change.Path); err != nil {
				failures++
				s.record("error", fmt.Sprintf("remove %s: %v", change.Path, err))
				continue
			}
			s.record("removed", change.Path)
		}
	}

	s.setState(StateIdle, fmt.Sprintf("reconcile done (%d changes, %d failures)", len(changes), failures))
	return nil
}

// Watch starts watching the silo's directories and indexes/removes files as
// events arrive. Blocks until ctx is cancelled or the watcher fails to
// start; runs until then.
func (s *Silo) Watch(ctx context.Context) error {
	mw := watcher.NewMultiRootWatcher(watcher.DefaultOptions())
	if err := mw.StartAll(ctx, s.cfg.Directories); err != nil {
		s.fail(fmt.Errorf("watch: %w", err))
		return err
	}

	s.mu.Lock()
	s.watcher = mw
	s.mu.Unlock()

	for {
		select {
		case batch, ok := <-mw.Events():
			if !ok {
				return nil
			}
			s.handleBatch(ctx, batch)
		case werr, ok := <-mw.Errors():
			if !ok {
				continue
			}
			s.record("error", werr.Error())
		case <-ctx.Done():
			_ = mw.Stop()
			return ctx.Err()
		}
	}
}

func (s *Silo) handleBatch(ctx context.Context, batch []watcher.FileEvent) {
	s.setState(StateIndexing, "watch event")
	for _, ev := range batch {
		if ev.IsDir {
			continue
		}
		switch ev.Operation {
		case watcher.OpCreate, watcher.OpModify:
			if s.IndexFile == nil {
				continue
			}
			if err := s.IndexFile(ctx, ev.Path); err != nil {
				s.record("error", fmt.Sprintf("index %s: %v", ev.Path, err))
				continue
			}
			s.record("indexed", ev.Path)
		case watcher.OpDelete:
			if s.RemoveFile == nil {
				continue
			}
			if err := s.RemoveFile(ctx, ev.Path); err != nil {
				s.record("error", fmt.Sprintf("remove %s: %v", ev.Path, err))
				continue
			}
			s.record("removed", ev.Path)
		}
	}
	s.setState(StateIdle, "watch event handled")
}

// Stop moves the silo to the stopped state and stops its watcher, if running.
func (s *Silo) Stop() error {
	s.mu.Lock()
	w := s.watcher
	s.state = StateStopped
	s.mu.Unlock()

	s.record("state_change", "stopped")
	if w != nil {
		return w.Stop()
	}
	return nil
}

// Wake moves a stopped silo back to idle so it can be reconciled/watched again.
func (s *Silo) Wake() {
	s.setState(StateIdle, "woken")
}

// MarkWaiting records that the silo is queued on the global indexing queue
// but hasn't started running yet.
func (s *Silo) MarkWaiting() {
	s.setState(StateWaiting, "queued")
}

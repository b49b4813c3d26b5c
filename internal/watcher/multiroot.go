package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
)

// MultiRootWatcher watches a silo's configured directory list as one
// logical unit, fanning the per-directory HybridWatcher event/error
// streams into a single pair of channels. A silo's `directories` attribute
// (spec §3) is a non-empty list rather than a single root, so reconciling
// and watching have to operate over all of them without the caller
// juggling one HybridWatcher per directory by hand.
type MultiRootWatcher struct {
	opts Options

	mu       sync.Mutex
	watchers []*HybridWatcher
	roots    []string
	wg       sync.WaitGroup
	started  bool
	stopped  bool

	events chan []FileEvent
	errors chan error
}

// NewMultiRootWatcher creates a watcher over zero or more root directories.
func NewMultiRootWatcher(opts Options) *MultiRootWatcher {
	opts = opts.WithDefaults()
	return &MultiRootWatcher{
		opts:   opts,
		events: make(chan []FileEvent, opts.EventBufferSize),
		errors: make(chan error, opts.EventBufferSize),
	}
}

// StartAll starts one HybridWatcher per directory. If any directory fails
// to start, the watchers already started are stopped and the error is
// returned — a silo should never end up watching a subset of its
// configured directories.
func (m *MultiRootWatcher) StartAll(ctx context.Context, directories []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("multi-root watcher already started")
	}
	if len(directories) == 0 {
		return fmt.Errorf("at least one directory is required")
	}

	for _, dir := range directories {
		hw, err := NewHybridWatcher(m.opts)
		if err != nil {
			m.stopStartedLocked()
			return fmt.Errorf("failed to create watcher for %s: %w", dir, err)
		}
		if err := hw.Start(ctx, dir); err != nil {
			m.stopStartedLocked()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		m.watchers = append(m.watchers, hw)
		m.roots = append(m.roots, dir)

		m.wg.Add(1)
		go m.pump(hw, dir)
	}

	m.started = true

	go func() {
		m.wg.Wait()
		close(m.events)
		close(m.errors)
	}()

	return nil
}

// pump forwards one directory's batched events/errors into the shared
// channels, rewriting each event's Path to be relative to the directory
// it was reported under so downstream consumers see one unambiguous path
// per file regardless of which configured directory it came from.
func (m *MultiRootWatcher) pump(hw *HybridWatcher, root string) {
	defer m.wg.Done()

	for {
		select {
		case batch, ok := <-hw.Events():
			if !ok {
				return
			}
			for i := range batch {
				batch[i].Path = filepath.Join(root, batch[i].Path)
				if batch[i].OldPath != "" {
					batch[i].OldPath = filepath.Join(root, batch[i].OldPath)
				}
			}
			m.events <- batch
		case err, ok := <-hw.Errors():
			if !ok {
				continue
			}
			m.errors <- fmt.Errorf("%s: %w", root, err)
		}
	}
}

// Events returns the fanned-in channel of batched file events across every
// watched directory. Closed once every underlying watcher has stopped.
func (m *MultiRootWatcher) Events() <-chan []FileEvent {
	return m.events
}

// Errors returns the fanned-in channel of watcher errors.
func (m *MultiRootWatcher) Errors() <-chan error {
	return m.errors
}

// Directories returns the directories currently being watched.
func (m *MultiRootWatcher) Directories() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	dirs := make([]string, len(m.roots))
	copy(dirs, m.roots)
	return dirs
}

// Stop stops every underlying watcher. Safe to call multiple times.
func (m *MultiRootWatcher) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopStartedLocked()
}

func (m *MultiRootWatcher) stopStartedLocked() error {
	if m.stopped {
		return nil
	}
	m.stopped = true

	var firstErr error
	for _, hw := range m.watchers {
		if err := hw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

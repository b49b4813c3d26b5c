// Package orchestrator owns every configured silo, the shared indexing
// queue that serialises work across them, and the cross-silo search path
// (spec.md §2's top-level orchestrator, §4.8's silo manager). It is the
// component cmd/silod and internal/mcp wire the silo-aware API surface to.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/localcorpus/silod/internal/queue"
	"github.com/localcorpus/silod/internal/reconcile"
	"github.com/localcorpus/silod/internal/scanner"
	"github.com/localcorpus/silod/internal/search"
	"github.com/localcorpus/silod/internal/silo"
	"github.com/localcorpus/silod/internal/store"
)

// primaryDir returns the first configured directory, used as a silo's
// Project.RootPath for display purposes; a silo's real directory list may
// contain more than one root.
func primaryDir(dirs []string) string {
	if len(dirs) == 0 {
		return ""
	}
	return dirs[0]
}

// entry bundles a running silo with the storage backend it indexes into and
// the long-lived watch goroutine's cancel function.
type entry struct {
	silo        *silo.Silo
	backend     *Backend
	cancelWatch context.CancelFunc
}

// Orchestrator manages the full set of silos this process serves: their
// configuration, storage backends, the shared indexing queue, and the
// cross-silo search merger. Grounded on the teacher's internal/index
// package owning one project's lifecycle, generalized from one project to
// a registry of many.
type Orchestrator struct {
	mu       sync.RWMutex
	home     string // directory holding silos.yaml and each silo's data dir
	silos    map[string]*entry
	queue    *queue.Queue
	embedder *EmbedderCache
	merger   *search.SearchMerger
	started  time.Time

	queueCtx    context.Context
	queueCancel context.CancelFunc
}

// registryFile is the on-disk record of every silo's Config, persisted
// across restarts. Grounded on the teacher's config.Load/Save (yaml.v3),
// generalized from one project's .amanmcp.yaml to a registry of many silos.
type registryFile struct {
	Silos []silo.Config `yaml:"silos"`
}

// New creates an Orchestrator rooted at homeDir (typically
// ~/.silod), loading any previously registered silos from
// homeDir/silos.yaml. Does not start watching/reconciling any silo; call
// Start for that.
func New(homeDir string) (*Orchestrator, error) {
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return nil, fmt.Errorf("create home dir: %w", err)
	}

	o := &Orchestrator{
		home:     homeDir,
		silos:    make(map[string]*entry),
		queue:    queue.New(),
		embedder: NewEmbedderCache(),
		merger:   search.NewSearchMerger(),
		started:  time.Now(),
	}

	cfgs, err := o.loadRegistry()
	if err != nil {
		return nil, err
	}
	for _, cfg := range cfgs {
		if err := o.addSilo(cfg); err != nil {
			return nil, fmt.Errorf("restore silo %q: %w", cfg.ID, err)
		}
	}
	return o, nil
}

func (o *Orchestrator) registryPath() string {
	return filepath.Join(o.home, "silos.yaml")
}

func (o *Orchestrator) loadRegistry() ([]silo.Config, error) {
	data, err := os.ReadFile(o.registryPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read silo registry: %w", err)
	}
	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse silo registry: %w", err)
	}
	return rf.Silos, nil
}

// saveRegistry persists every currently-registered silo's Config. Must be
// called with o.mu held (read or write).
func (o *Orchestrator) saveRegistry() error {
	rf := registryFile{Silos: make([]silo.Config, 0, len(o.silos))}
	for _, e := range o.silos {
		rf.Silos = append(rf.Silos, e.silo.Config())
	}
	data, err := yaml.Marshal(rf)
	if err != nil {
		return fmt.Errorf("marshal silo registry: %w", err)
	}
	if err := os.WriteFile(o.registryPath(), data, 0o644); err != nil {
		return fmt.Errorf("write silo registry: %w", err)
	}
	return nil
}

// siloID derives a stable identifier from a silo's name and creation time,
// so two silos named identically at different times still get distinct IDs.
func siloID(name string, created time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", name, created.UnixNano())))
	return hex.EncodeToString(sum[:])[:12]
}

// addSilo constructs a Backend, Reconciler, and Silo for cfg and registers
// it, without starting its watch loop. Must be called with o.mu NOT held;
// it takes the lock itself.
func (o *Orchestrator) addSilo(cfg silo.Config) error {
	backend, err := BuildBackend(context.Background(), cfg, o.embedder)
	if err != nil {
		return err
	}

	sc, err := scanner.New()
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("create scanner: %w", err)
	}
	reconciler := reconcile.New(sc, backend.Metadata)

	if err := backend.Metadata.SaveProject(context.Background(), &store.Project{
		ID:        cfg.ID,
		Name:      cfg.Name,
		RootPath:  primaryDir(cfg.Directories),
		IndexedAt: time.Now(),
	}); err != nil {
		_ = backend.Close()
		return fmt.Errorf("save project record: %w", err)
	}

	s, err := silo.New(cfg, reconciler)
	if err != nil {
		_ = backend.Close()
		return err
	}
	s.IndexFile = func(ctx context.Context, path string) error {
		return indexFile(ctx, backend, cfg.ID, path, 0)
	}
	s.RemoveFile = func(ctx context.Context, path string) error {
		return removeFile(ctx, backend, cfg.ID, path)
	}

	o.mu.Lock()
	o.silos[cfg.ID] = &entry{silo: s, backend: backend}
	o.mu.Unlock()
	return nil
}

// Start launches the shared indexing queue's worker loop and begins
// watching every registered silo's directories. Blocks until ctx is
// cancelled; run it in a goroutine.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.queueCtx, o.queueCancel = context.WithCancel(ctx)
	entries := make([]*entry, 0, len(o.silos))
	for _, e := range o.silos {
		entries = append(entries, e)
	}
	o.mu.Unlock()

	go o.queue.Run(o.queueCtx)

	for _, e := range entries {
		o.startWatch(e)
		o.EnqueueReconcile(e.silo.Config().ID)
	}

	<-ctx.Done()
}

func (o *Orchestrator) startWatch(e *entry) {
	watchCtx, cancel := context.WithCancel(o.queueCtx)
	e.cancelWatch = cancel
	go func() {
		_ = e.silo.Watch(watchCtx)
	}()
}

// EnqueueReconcile schedules a reconciliation pass for siloID on the shared
// queue, marking the silo StateWaiting until the job starts running.
// Returns an error if the silo does not exist or is already queued/running.
func (o *Orchestrator) EnqueueReconcile(siloID string) error {
	o.mu.RLock()
	e, ok := o.silos[siloID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("silo %q not found", siloID)
	}

	e.silo.MarkWaiting()
	return o.queue.Enqueue(&queue.Job{
		ID:     "reconcile:" + siloID,
		SiloID: siloID,
		Run: func(ctx context.Context) error {
			return e.silo.Reconcile(ctx)
		},
	})
}

// Close stops every silo's watch loop and releases its storage backend.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	entries := make([]*entry, 0, len(o.silos))
	for _, e := range o.silos {
		entries = append(entries, e)
	}
	o.mu.Unlock()

	if o.queueCancel != nil {
		o.queueCancel()
	}
	o.queue.Stop()

	var firstErr error
	for _, e := range entries {
		if e.cancelWatch != nil {
			e.cancelWatch()
		}
		_ = e.silo.Stop()
		if err := e.backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := o.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

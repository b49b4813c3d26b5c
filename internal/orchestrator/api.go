package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/localcorpus/silod/internal/search"
	"github.com/localcorpus/silod/internal/silo"
	"github.com/localcorpus/silod/internal/store"
)

// SiloStatus is one silo's external-facing status record, matching the
// fields internal/mcp's list_silos tool and cmd/silod's "silo list" command
// surface.
type SiloStatus struct {
	ID                string
	Name              string
	Directories       []string
	DBPath            string
	ModelID           string
	IgnorePatterns    []string
	IgnoreFilePatterns []string
	State             silo.State
	IndexedFileCount  int
	ChunkCount        int
	LastUpdated       time.Time
	ErrorMessage      string
}

// ListSilos returns every registered silo's status, sorted by no particular
// order (callers needing stable order should sort by Name/ID themselves).
func (o *Orchestrator) ListSilos(ctx context.Context) ([]SiloStatus, error) {
	o.mu.RLock()
	entries := make([]*entry, 0, len(o.silos))
	for _, e := range o.silos {
		entries = append(entries, e)
	}
	o.mu.RUnlock()

	out := make([]SiloStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, o.statusFor(ctx, e))
	}
	return out, nil
}

func (o *Orchestrator) statusFor(ctx context.Context, e *entry) SiloStatus {
	cfg := e.silo.Config()
	status := SiloStatus{
		ID:                 cfg.ID,
		Name:               cfg.Name,
		Directories:        cfg.Directories,
		DBPath:             cfg.DBPath,
		ModelID:            cfg.ModelID,
		IgnorePatterns:     cfg.IgnorePatterns,
		IgnoreFilePatterns: cfg.IgnoreFilePatterns,
		State:              e.silo.State(),
	}
	if err := e.silo.LastError(); err != nil {
		status.ErrorMessage = err.Error()
	}
	if err := e.backend.Metadata.RefreshProjectStats(ctx, cfg.ID); err == nil {
		if proj, err := e.backend.Metadata.GetProject(ctx, cfg.ID); err == nil && proj != nil {
			status.IndexedFileCount = proj.FileCount
			status.ChunkCount = proj.ChunkCount
			status.LastUpdated = proj.IndexedAt
		}
	}
	return status
}

// MergedSearchResult is one cross-silo ranked hit, tagging which silo it
// came from so callers can render silo_name per spec.md §6.
type MergedSearchResult = search.MergedResult

// SearchRequest mirrors spec.md §6's search(query, silo?, max_results?,
// preset?) signature: silo and preset are optional, defaulting to "every
// registered silo" and "balanced" respectively.
type SearchRequest struct {
	Query      string
	Silo       string // silo ID; empty means search every silo
	MaxResults int
	Preset     search.HybridPreset
}

// Search runs a hybrid query against one silo (if Silo is set) or every
// registered silo, calibrating and merging results across silos via
// search.SearchMerger. Grounded on spec.md §4.9's cross-silo fusion
// requirement and §6's external search() signature.
func (o *Orchestrator) Search(ctx context.Context, req SearchRequest) ([]*MergedSearchResult, error) {
	if req.MaxResults <= 0 {
		req.MaxResults = 10
	}
	preset := req.Preset
	if preset == "" {
		preset = search.PresetBalanced
	}
	weights := search.PresetWeights(preset).ToEngineWeights()

	o.mu.RLock()
	var targets []*entry
	if req.Silo != "" {
		if e, ok := o.silos[req.Silo]; ok {
			targets = append(targets, e)
		}
	} else {
		for _, e := range o.silos {
			targets = append(targets, e)
		}
	}
	o.mu.RUnlock()

	if req.Silo != "" && len(targets) == 0 {
		return nil, fmt.Errorf("silo %q not found", req.Silo)
	}

	perSilo := make(map[string][]*search.SearchResult, len(targets))
	for _, e := range targets {
		cfg := e.silo.Config()
		results, err := e.backend.Engine.Search(ctx, req.Query, search.SearchOptions{
			Limit:   req.MaxResults,
			Weights: &weights,
		})
		if err != nil {
			continue
		}
		perSilo[cfg.ID] = results
	}

	return o.merger.Merge(perSilo, req.MaxResults), nil
}

// ActivityRecent returns up to limit of the most recent activity events
// across every silo, newest last within each silo's own feed (spec.md §6's
// activity_recent merged activity stream).
func (o *Orchestrator) ActivityRecent(limit int) []silo.ActivityEvent {
	o.mu.RLock()
	entries := make([]*entry, 0, len(o.silos))
	for _, e := range o.silos {
		entries = append(entries, e)
	}
	o.mu.RUnlock()

	var all []silo.ActivityEvent
	for _, e := range entries {
		all = append(all, e.silo.Activity(limit)...)
	}
	// Stable-sort by time so the merged stream reads chronologically; a
	// simple insertion sort is adequate since each per-silo feed is already
	// sorted and the number of silos is small.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].Time.Before(all[j-1].Time); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// ServerStatus reports the process-wide summary spec.md §6's server_status
// describes.
type ServerStatus struct {
	Uptime            time.Duration
	SiloCount         int
	TotalIndexedFiles int
	DefaultModel      string
}

// ServerStatus returns the process-wide summary.
func (o *Orchestrator) ServerStatus(ctx context.Context) ServerStatus {
	statuses, _ := o.ListSilos(ctx)
	total := 0
	for _, s := range statuses {
		total += s.IndexedFileCount
	}
	return ServerStatus{
		Uptime:            time.Since(o.started),
		SiloCount:         len(statuses),
		TotalIndexedFiles: total,
	}
}

// SiloCreate registers a new silo from cfg, assigning an ID and CreatedAt if
// unset, persists the registry, starts its watch loop (if the orchestrator
// is already running), and enqueues an initial reconciliation pass.
func (o *Orchestrator) SiloCreate(cfg silo.Config) (SiloStatus, error) {
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	if cfg.ID == "" {
		cfg.ID = siloID(cfg.Name, cfg.CreatedAt)
	}
	if err := cfg.Validate(); err != nil {
		return SiloStatus{}, err
	}

	if err := o.addSilo(cfg); err != nil {
		return SiloStatus{}, err
	}

	o.mu.Lock()
	e := o.silos[cfg.ID]
	running := o.queueCtx != nil
	if err := o.saveRegistry(); err != nil {
		o.mu.Unlock()
		return SiloStatus{}, err
	}
	o.mu.Unlock()

	if running {
		o.startWatch(e)
	}
	_ = o.EnqueueReconcile(cfg.ID)

	return o.statusFor(context.Background(), e), nil
}

// SiloDelete stops and removes a silo, closing its backend and deleting it
// from the registry. Does not delete the silo's on-disk database file.
func (o *Orchestrator) SiloDelete(siloID string) error {
	o.mu.Lock()
	e, ok := o.silos[siloID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("silo %q not found", siloID)
	}
	delete(o.silos, siloID)
	err := o.saveRegistry()
	o.mu.Unlock()

	o.queue.Cancel("reconcile:" + siloID)
	if e.cancelWatch != nil {
		e.cancelWatch()
	}
	_ = e.silo.Stop()
	_ = e.backend.Close()
	return err
}

// SiloStop stops a silo's watch loop and marks it stopped without removing
// it from the registry.
func (o *Orchestrator) SiloStop(siloID string) error {
	o.mu.RLock()
	e, ok := o.silos[siloID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("silo %q not found", siloID)
	}
	if e.cancelWatch != nil {
		e.cancelWatch()
	}
	return e.silo.Stop()
}

// SiloWake resumes a stopped silo: restarts its watch loop and enqueues a
// reconciliation pass to pick up anything that changed while stopped.
func (o *Orchestrator) SiloWake(siloID string) error {
	o.mu.RLock()
	e, ok := o.silos[siloID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("silo %q not found", siloID)
	}
	e.silo.Wake()
	o.startWatch(e)
	return o.EnqueueReconcile(siloID)
}

// SiloRebuild clears a silo's indexed data (metadata, BM25, vector, trigram,
// filepath) and enqueues a full reconciliation pass to rebuild it from
// scratch. Grounded on cmd/amanmcp/cmd/index.go's clearIndexData --force path.
func (o *Orchestrator) SiloRebuild(ctx context.Context, siloID string) error {
	o.mu.RLock()
	e, ok := o.silos[siloID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("silo %q not found", siloID)
	}

	if err := e.backend.Metadata.DeleteFilesByProject(ctx, siloID); err != nil {
		return fmt.Errorf("clear project files: %w", err)
	}
	return o.EnqueueReconcile(siloID)
}

// SiloUpdateRequest names the mutable fields SiloUpdate may change; a nil
// field leaves that attribute unchanged.
type SiloUpdateRequest struct {
	Directories        []string
	IgnorePatterns     []string
	IgnoreFilePatterns []string
}

// SiloUpdate replaces a silo's directories/ignore patterns and enqueues a
// reconciliation pass so the change takes effect. Restarts the silo's watch
// loop so a running watcher observes the new directory list. Changing
// ModelID is intentionally unsupported here: spec.md §3's model_id is
// write-once per silo (mixing embedding spaces within one vector index is
// unsound), so changing models requires SiloRebuild against a freshly
// created silo.
func (o *Orchestrator) SiloUpdate(siloID string, req SiloUpdateRequest) error {
	o.mu.Lock()
	e, ok := o.silos[siloID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("silo %q not found", siloID)
	}
	e.silo.UpdateDirectories(req.Directories, req.IgnorePatterns, req.IgnoreFilePatterns)
	if err := e.silo.Config().Validate(); err != nil {
		o.mu.Unlock()
		return err
	}
	wasWatching := e.cancelWatch != nil
	if wasWatching {
		e.cancelWatch()
	}
	err := o.saveRegistry()
	o.mu.Unlock()
	if err != nil {
		return err
	}

	if wasWatching {
		o.startWatch(e)
	}
	return o.EnqueueReconcile(siloID)
}

// ListIndexedFiles returns every file currently indexed by siloID, for
// resource listing (internal/mcp's ListResources).
func (o *Orchestrator) ListIndexedFiles(ctx context.Context, siloID string) ([]*store.File, error) {
	o.mu.RLock()
	e, ok := o.silos[siloID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("silo %q not found", siloID)
	}

	files, _, err := e.backend.Metadata.ListFiles(ctx, siloID, "", 10000)
	return files, err
}

// GetChunk fetches one chunk by ID from siloID's store, for resource reads
// (internal/mcp's ReadResource).
func (o *Orchestrator) GetChunk(ctx context.Context, siloID, chunkID string) (*store.Chunk, error) {
	o.mu.RLock()
	e, ok := o.silos[siloID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("silo %q not found", siloID)
	}
	return e.backend.Metadata.GetChunk(ctx, chunkID)
}

// SiloRename updates a silo's display name.
func (o *Orchestrator) SiloRename(siloID, name string) error {
	o.mu.Lock()
	e, ok := o.silos[siloID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("silo %q not found", siloID)
	}
	e.silo.Rename(name)
	err := o.saveRegistry()
	o.mu.Unlock()
	return err
}

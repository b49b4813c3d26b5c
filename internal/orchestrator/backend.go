package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/localcorpus/silod/internal/embed"
	"github.com/localcorpus/silod/internal/search"
	"github.com/localcorpus/silod/internal/silo"
	"github.com/localcorpus/silod/internal/store"
)

// EmbedderCache shares one embedder per model ID across every silo that
// requests it, the same way the teacher's single-project CLI builds exactly
// one embedder per process; an orchestrator serves many silos at once, so
// sharing is keyed by model ID rather than assumed global.
type EmbedderCache struct {
	mu        sync.Mutex
	embedders map[string]embed.Embedder
}

// NewEmbedderCache returns an empty cache.
func NewEmbedderCache() *EmbedderCache {
	return &EmbedderCache{embedders: make(map[string]embed.Embedder)}
}

// Get returns the cached embedder for modelID, constructing and caching a
// cached-wrapped one (embed.NewCachedEmbedderWithDefaults) on first use.
// An empty modelID resolves to the static fallback embedder so a silo can be
// created before any network-backed embedding provider is configured.
func (c *EmbedderCache) Get(ctx context.Context, modelID string) (embed.Embedder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.embedders[modelID]; ok {
		return e, nil
	}

	var inner embed.Embedder
	var err error
	if modelID == "" {
		inner = embed.NewStaticEmbedder768()
	} else {
		provider, model := splitModelID(modelID)
		inner, err = embed.NewEmbedder(ctx, provider, model)
		if err != nil {
			return nil, fmt.Errorf("init embedder %q: %w", modelID, err)
		}
	}

	cached := embed.NewCachedEmbedderWithDefaults(inner)
	c.embedders[modelID] = cached
	return cached, nil
}

// Close releases every embedder this cache created.
func (c *EmbedderCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, e := range c.embedders {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// splitModelID parses a silo's ModelID of the form "provider:model" (e.g.
// "ollama:nomic-embed-text") into the provider/model pair embed.NewEmbedder
// expects. A bare provider name with no colon indexes that provider's
// default model.
func splitModelID(modelID string) (embed.ProviderType, string) {
	for i := 0; i < len(modelID); i++ {
		if modelID[i] == ':' {
			return embed.ParseProvider(modelID[:i]), modelID[i+1:]
		}
	}
	return embed.ParseProvider(modelID), ""
}

// BuildBackend constructs the full storage stack for one silo: metadata
// store, BM25 index, vector store, trigram and filepath rankers, and the
// search.Engine that fuses all four. Grounded on cmd/amanmcp/cmd/index.go's
// runIndexWithOptions, generalized from one hardcoded ".amanmcp" data
// directory to an arbitrary per-silo DBPath so many silos can coexist.
func BuildBackend(ctx context.Context, cfg silo.Config, embedders *EmbedderCache) (*Backend, error) {
	metadata, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	bm25Path := filepath.Join(dir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25Path, store.DefaultBM25Config(), "sqlite")
	if err != nil {
		_ = metadata.Close()
		return nil, fmt.Errorf("open bm25 index: %w", err)
	}

	embedder, err := embedders.Get(ctx, cfg.ModelID)
	if err != nil {
		_ = metadata.Close()
		_ = bm25.Close()
		return nil, err
	}

	vectorCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vector, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		_ = metadata.Close()
		_ = bm25.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	trigramPath := filepath.Join(dir, "trigram.db")
	trigram, err := store.NewTrigramIndex(trigramPath)
	if err != nil {
		_ = metadata.Close()
		_ = bm25.Close()
		_ = vector.Close()
		return nil, fmt.Errorf("open trigram index: %w", err)
	}

	filePath := store.NewFilePathIndex()

	engCfg := search.DefaultConfig()
	eng, err := search.NewEngine(bm25, vector, embedder, metadata, engCfg,
		search.WithTrigramIndex(trigram),
		search.WithFilePathIndex(filePath),
	)
	if err != nil {
		_ = metadata.Close()
		_ = bm25.Close()
		_ = vector.Close()
		_ = trigram.Close()
		return nil, fmt.Errorf("build search engine: %w", err)
	}

	return &Backend{
		Engine:   eng,
		Metadata: metadata,
		Trigram:  trigram,
		FilePath: filePath,
	}, nil
}

// Close releases every resource BuildBackend opened. The shared embedder is
// owned by the EmbedderCache, not the Backend, so it is not closed here.
func (b *Backend) Close() error {
	var firstErr error
	if err := b.Engine.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.Trigram.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

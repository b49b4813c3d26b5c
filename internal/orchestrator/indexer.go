// Package orchestrator owns every configured silo and the shared resources
// a silo needs to actually index a file: an extractor/chunker pipeline feeding
// a per-silo search.Engine, and a model-keyed embedder cache shared across
// silos that happen to use the same embedding model.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/localcorpus/silod/internal/chunk"
	"github.com/localcorpus/silod/internal/extract"
	"github.com/localcorpus/silod/internal/scanner"
	"github.com/localcorpus/silod/internal/search"
	"github.com/localcorpus/silod/internal/store"
)

// fileID derives a stable identifier for one silo's file, the same formula
// the teacher's index.Coordinator uses for its own generateFileID.
func fileID(siloID, path string) string {
	sum := sha256.Sum256([]byte(siloID + ":" + path))
	return hex.EncodeToString(sum[:])[:16]
}

// chunkID derives a content-addressable chunk identifier: stable across
// re-indexing runs as long as the chunk's file, position, and text are
// unchanged, so re-indexing an untouched file is a no-op at the storage
// layer rather than a delete+reinsert.
func chunkID(path string, chunkIndex int, contentHash string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", path, chunkIndex, contentHash)))
	return hex.EncodeToString(sum[:])[:32]
}

// codeChunker, mdChunker, and textChunker are the three chunk.Chunker
// implementations every silo indexes with, selected by extract.Result's
// resolved content type. Stateless and safe to share across silos.
var (
	codeChunker = chunk.NewCodeChunker()
	mdChunker   = chunk.NewHeadingChunker()
	textChunker = chunk.NewPlaintextChunker()
)

func chunkerFor(contentType scanner.ContentType) chunk.Chunker {
	switch contentType {
	case scanner.ContentTypeCode:
		return codeChunker
	case scanner.ContentTypeMarkdown:
		return mdChunker
	default:
		return textChunker
	}
}

// Backend bundles the storage-layer resources one silo indexes into: the
// hybrid search.Engine (BM25+vector, with trigram/filepath fold-in already
// wired via WithTrigramIndex/WithFilePathIndex) plus the two rankers that
// Engine.Index/Engine.Delete do not themselves keep in sync. Grounded on the
// finding that Engine.Index only updates bm25/vector/metadata (see
// search.Engine.Index), so the trigram and filepath indexes must be
// populated by whoever calls it — here, indexFile and removeFile.
type Backend struct {
	Engine   *search.Engine
	Metadata store.MetadataStore
	Trigram  *store.TrigramIndex
	FilePath *store.FilePathIndex
}

// indexFile extracts, chunks, and indexes a single absolute path into one
// silo's backend. Grounded on internal/index.Coordinator's indexFile
// (remove-then-reinsert, skip oversized/binary files) but built on the
// current extract→chunk pipeline instead of the coordinator's Chunker API,
// and operating on absolute paths since a silo's directories need not share
// a common root.
func indexFile(ctx context.Context, b *Backend, siloID, path string, maxFileSize int64) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil
	}
	if maxFileSize <= 0 {
		maxFileSize = 100 * 1024 * 1024
	}
	if info.Size() > maxFileSize {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if isBinary(raw) {
		return nil
	}

	result, err := extract.ForPath(path).Extract(path, raw)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}

	records, err := chunkerFor(result.ContentType).Chunk(ctx, &chunk.Input{
		FilePath:          path,
		Body:              result.Body,
		Metadata:          result.Metadata,
		MetadataLineCount: result.MetadataLineCount,
		Language:          result.Language,
	}, chunk.DefaultMaxChunkTokens)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", path, err)
	}

	// Remove any previous version of this file's chunks before reinserting;
	// a no-op the first time a file is seen.
	if err := removeFile(ctx, b, siloID, path); err != nil {
		return err
	}

	if len(records) == 0 {
		return nil
	}

	id := fileID(siloID, path)
	file := &store.File{
		ID:          id,
		ProjectID:   siloID,
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentHash: chunk.ContentHash(result.Body),
		Language:    result.Language,
		ContentType: string(result.ContentType),
	}
	if err := b.Metadata.SaveFiles(ctx, []*store.File{file}); err != nil {
		return fmt.Errorf("save file record: %w", err)
	}

	chunks := make([]*store.Chunk, len(records))
	for i, r := range records {
		chunks[i] = &store.Chunk{
			ID:          chunkID(path, r.ChunkIndex, r.ContentHash),
			FileID:      id,
			FilePath:    path,
			Content:     r.Text,
			ContentType: store.ContentType(result.ContentType),
			Language:    result.Language,
			StartLine:   r.StartLine,
			EndLine:     r.EndLine,
		}
	}

	if err := b.Engine.Index(ctx, chunks); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}

	// Engine.Index only keeps BM25/vector/metadata in sync; the trigram and
	// filepath rankers it folds into search results are populated here.
	if b.Trigram != nil {
		docs := make([]*store.Document, len(chunks))
		for i, c := range chunks {
			docs[i] = &store.Document{ID: c.ID, Content: c.Content}
		}
		if err := b.Trigram.Index(ctx, docs); err != nil {
			return fmt.Errorf("index trigram: %w", err)
		}
	}
	if b.FilePath != nil {
		entries := make(map[string]string, len(chunks))
		for _, c := range chunks {
			entries[c.ID] = c.FilePath
		}
		b.FilePath.Index(entries)
	}

	return nil
}

// removeFile deletes a file's chunks from the engine, metadata store, and
// the trigram/filepath rankers. Grounded on internal/index.Coordinator's
// removeFile, adapted to absolute paths.
func removeFile(ctx context.Context, b *Backend, siloID, path string) error {
	id := fileID(siloID, path)

	chunks, err := b.Metadata.GetChunksByFile(ctx, id)
	if err != nil {
		return nil
	}
	if len(chunks) == 0 {
		_ = b.Metadata.DeleteFile(ctx, id)
		return nil
	}

	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ID
	}
	if err := b.Engine.Delete(ctx, chunkIDs); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if b.Trigram != nil {
		if err := b.Trigram.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("delete trigram entries: %w", err)
		}
	}
	if b.FilePath != nil {
		b.FilePath.Delete(chunkIDs)
	}
	if err := b.Metadata.DeleteFile(ctx, id); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return nil
}

// isBinary reports whether the first 512 bytes of content contain a NUL
// byte, the same heuristic internal/index.Coordinator uses.
func isBinary(content []byte) bool {
	checkLen := 512
	if len(content) < checkLen {
		checkLen = len(content)
	}
	for i := 0; i < checkLen; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}

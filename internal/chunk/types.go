// Package chunk splits extracted file bodies into ordered, semantically
// meaningful chunks: plaintext paragraphs, Markdown heading sections, or
// AST-aware code definitions.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Token size defaults shared by every chunker implementation. The token
// approximation is ceil(len(text)/4); all chunkers must use the same
// approximation so behaviour is identical across silos.
const (
	DefaultMaxChunkTokens = 512
	TokensPerChar         = 4
)

// estimateTokens approximates token count as ceil(len(text)/4).
func estimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + TokensPerChar - 1) / TokensPerChar
}

// Record is a single retrievable unit of content extracted from one file.
type Record struct {
	FilePath    string            // relative to the silo root
	ChunkIndex  int               // 0-based, dense per file
	SectionPath []string          // ordered structural labels, e.g. ["FileManager"]
	Text        string            // chunk body
	StartLine   int               // 1-based, inclusive, original-file coordinates
	EndLine     int               // 1-based, inclusive, original-file coordinates
	Metadata    map[string]any    // shared across one file's chunks (from ExtractionResult)
	ContentHash string            // stable digest of Text
	HeadingDepth int              // 0 when not applicable (Markdown only)
	TagsText    string            // flattened searchable form of Metadata
}

// ContentHash returns a stable SHA-256 hex digest of text. Deterministic and
// a pure function of text only, per spec.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Input is what a Chunker consumes: one file's extracted body plus the
// metadata-line offset needed to map chunk line numbers back to the
// original file.
type Input struct {
	FilePath           string
	Body               string
	Metadata           map[string]any
	MetadataLineCount  int
	Language           string // resolved grammar name, empty if none
}

// Chunker splits one file's extracted body into an ordered list of Records.
type Chunker interface {
	Chunk(ctx context.Context, in *Input, maxChunkTokens int) ([]*Record, error)
}

// finalizeChunks assigns dense ChunkIndex values, drops whitespace-only
// chunks, and stamps ContentHash/TagsText. Every chunker funnels its raw
// records through this before returning.
func finalizeChunks(records []*Record, tagsText string) []*Record {
	out := make([]*Record, 0, len(records))
	idx := 0
	for _, r := range records {
		if trimmedEmpty(r.Text) {
			continue
		}
		r.ChunkIndex = idx
		r.ContentHash = ContentHash(r.Text)
		if tagsText != "" {
			r.TagsText = tagsText
		}
		out = append(out, r)
		idx++
	}
	return out
}

func trimmedEmpty(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return false
		}
	}
	return true
}

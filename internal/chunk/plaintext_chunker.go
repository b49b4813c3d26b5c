package chunk

import "context"

// PlaintextChunker splits arbitrary non-code, non-Markdown text into
// paragraph-bounded chunks. It reuses the Markdown chunker's paragraph
// splitter since blank-line-delimited paragraphs are the same unit in
// both formats; the only difference is PlaintextChunker never looks for
// headings.
type PlaintextChunker struct{}

// NewPlaintextChunker creates a plaintext chunker.
func NewPlaintextChunker() *PlaintextChunker {
	return &PlaintextChunker{}
}

// Chunk implements Chunker.
func (c *PlaintextChunker) Chunk(ctx context.Context, in *Input, maxChunkTokens int) ([]*Record, error) {
	if maxChunkTokens <= 0 {
		maxChunkTokens = DefaultMaxChunkTokens
	}
	records := chunkParagraphs(in, in.Body, nil, 1, maxChunkTokens)
	return finalizeChunks(records, ""), nil
}

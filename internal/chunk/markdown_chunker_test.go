package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadingChunker_NestedHeadings_BuildOrderedSectionPath(t *testing.T) {
	source := `# Guide

Intro text.

## Setup

Install steps.

### Requirements

Need Go 1.25.
`
	c := NewHeadingChunker()
	records, err := c.Chunk(context.Background(), &Input{
		FilePath: "guide.md",
		Body:     source,
	}, DefaultMaxChunkTokens)

	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"Guide"}, records[0].SectionPath)
	assert.Equal(t, []string{"Guide", "Setup"}, records[1].SectionPath)
	assert.Equal(t, []string{"Guide", "Setup", "Requirements"}, records[2].SectionPath)
	assert.Equal(t, 3, records[2].HeadingDepth)
}

func TestHeadingChunker_NoHeadings_ChunksByParagraph(t *testing.T) {
	source := "First paragraph.\n\nSecond paragraph.\n"

	c := NewHeadingChunker()
	records, err := c.Chunk(context.Background(), &Input{
		FilePath: "notes.md",
		Body:     source,
	}, DefaultMaxChunkTokens)

	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Empty(t, records[0].SectionPath)
}

func TestHeadingChunker_HeaderOnlySection_Dropped(t *testing.T) {
	source := "# Empty Section\n\n## Real Section\n\nSome content here.\n"

	c := NewHeadingChunker()
	records, err := c.Chunk(context.Background(), &Input{
		FilePath: "doc.md",
		Body:     source,
	}, DefaultMaxChunkTokens)

	require.NoError(t, err)
	for _, r := range records {
		assert.NotEqual(t, []string{"Empty Section"}, r.SectionPath)
	}
}

func TestHeadingChunker_OversizedSection_SplitsByParagraph(t *testing.T) {
	var body strings.Builder
	body.WriteString("# Big\n\n")
	for i := 0; i < 100; i++ {
		body.WriteString(strings.Repeat("word ", 40))
		body.WriteString("\n\n")
	}

	c := NewHeadingChunker()
	records, err := c.Chunk(context.Background(), &Input{
		FilePath: "big.md",
		Body:     body.String(),
	}, DefaultMaxChunkTokens)

	require.NoError(t, err)
	require.Greater(t, len(records), 1)
	for _, r := range records {
		assert.Equal(t, []string{"Big"}, r.SectionPath)
	}
}

func TestHeadingChunker_MetadataLineCountOffsetsLineNumbers(t *testing.T) {
	source := "# Title\n\nBody text.\n"

	c := NewHeadingChunker()
	records, err := c.Chunk(context.Background(), &Input{
		FilePath:          "with-frontmatter.md",
		Body:              source,
		MetadataLineCount: 4,
	}, DefaultMaxChunkTokens)

	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, 5, records[0].StartLine)
}

func TestPlaintextChunker_ParagraphSplit(t *testing.T) {
	c := NewPlaintextChunker()
	records, err := c.Chunk(context.Background(), &Input{
		FilePath: "readme.txt",
		Body:     "Paragraph one.\n\nParagraph two.\n",
	}, DefaultMaxChunkTokens)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Paragraph one.", records[0].Text)
	assert.Equal(t, "Paragraph two.", records[1].Text)
}

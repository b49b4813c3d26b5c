package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForPath_DispatchesByContentType(t *testing.T) {
	assert.IsType(t, codeExtractor{}, ForPath("main.go"))
	assert.IsType(t, markdownExtractor{}, ForPath("README.md"))
	assert.IsType(t, plaintextExtractor{}, ForPath("notes.txt"))
}

func TestMarkdownExtractor_StripsFrontmatter(t *testing.T) {
	raw := "---\ntitle: Guide\ntags:\n  - a\n  - b\n---\n# Guide\n\nBody.\n"

	result, err := markdownExtractor{}.Extract("guide.md", []byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "# Guide\n\nBody.\n", result.Body)
	assert.Equal(t, 6, result.MetadataLineCount)
	assert.Equal(t, "Guide", result.Metadata["title"])
}

func TestMarkdownExtractor_NoFrontmatter(t *testing.T) {
	raw := "# Guide\n\nBody.\n"

	result, err := markdownExtractor{}.Extract("guide.md", []byte(raw))
	require.NoError(t, err)

	assert.Equal(t, raw, result.Body)
	assert.Zero(t, result.MetadataLineCount)
	assert.Empty(t, result.Metadata)
}

func TestCodeExtractor_StripsShebang(t *testing.T) {
	raw := "#!/usr/bin/env python3\nprint('hi')\n"

	result, err := codeExtractor{}.Extract("script.py", []byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "print('hi')\n", result.Body)
	assert.Equal(t, 1, result.MetadataLineCount)
	assert.Equal(t, "python", result.Language)
}

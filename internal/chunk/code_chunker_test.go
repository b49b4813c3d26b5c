package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeChunker_Go_OneChunkPerDefinition(t *testing.T) {
	source := `package main

// Greet returns a greeting for name.
func Greet(name string) string {
	return "hello " + name
}

type Server struct {
	addr string
}

func (s *Server) Start() error {
	return nil
}
`
	c := NewCodeChunker()
	defer c.Close()

	records, err := c.Chunk(context.Background(), &Input{
		FilePath: "main.go",
		Body:     source,
		Language: "go",
	}, DefaultMaxChunkTokens)

	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"Greet"}, records[0].SectionPath)
	assert.Contains(t, records[0].Text, "// Greet returns a greeting for name.")
	assert.Contains(t, records[0].Text, "func Greet(name string) string {")

	assert.Equal(t, []string{"Server"}, records[1].SectionPath)
	assert.Equal(t, []string{"Start"}, records[2].SectionPath)
}

func TestCodeChunker_Python_ClassMethodsNested(t *testing.T) {
	source := `class Greeter:
    def hello(self):
        return "hi"

    def bye(self):
        return "bye"
`
	c := NewCodeChunker()
	defer c.Close()

	records, err := c.Chunk(context.Background(), &Input{
		FilePath: "greeter.py",
		Body:     source,
		Language: "python",
	}, DefaultMaxChunkTokens)

	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Greeter"}, records[0].SectionPath)
	assert.Equal(t, []string{"Greeter", "hello"}, records[1].SectionPath)
	assert.Equal(t, []string{"Greeter", "bye"}, records[2].SectionPath)
}

func TestCodeChunker_UnsupportedLanguage_FallsBackToLines(t *testing.T) {
	c := NewCodeChunker()
	defer c.Close()

	body := strings.Repeat("line of cobol\n", 50)
	records, err := c.Chunk(context.Background(), &Input{
		FilePath: "legacy.cob",
		Body:     body,
		Language: "cobol",
	}, DefaultMaxChunkTokens)

	require.NoError(t, err)
	require.NotEmpty(t, records)
}

func TestCodeChunker_OversizedDefinition_SplitsByLines(t *testing.T) {
	var body strings.Builder
	body.WriteString("package main\n\nfunc Big() {\n")
	for i := 0; i < 400; i++ {
		body.WriteString("\tdoSomethingWithAVeryLongLineOfCodeToForceTokenGrowth()\n")
	}
	body.WriteString("}\n")

	c := NewCodeChunker()
	defer c.Close()

	records, err := c.Chunk(context.Background(), &Input{
		FilePath: "big.go",
		Body:     body.String(),
		Language: "go",
	}, DefaultMaxChunkTokens)

	require.NoError(t, err)
	require.Greater(t, len(records), 1)
	assert.Equal(t, []string{"Big", "part1"}, records[0].SectionPath)
}

func TestCodeChunker_EmptyFile_ReturnsNoChunks(t *testing.T) {
	c := NewCodeChunker()
	defer c.Close()

	records, err := c.Chunk(context.Background(), &Input{
		FilePath: "empty.go",
		Body:     "   \n\n",
		Language: "go",
	}, DefaultMaxChunkTokens)

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCodeChunker_ContentHashStable(t *testing.T) {
	assert.Equal(t, ContentHash("same text"), ContentHash("same text"))
	assert.NotEqual(t, ContentHash("a"), ContentHash("b"))
}

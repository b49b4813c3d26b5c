// Package extract turns a file's raw bytes into the plain-text body and
// structural metadata a Chunker consumes: YAML frontmatter for Markdown,
// shebang stripping for scripts, and language resolution for code.
package extract

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/localcorpus/silod/internal/scanner"
)

// Result is one file's extracted body plus everything a Chunker needs to
// map its output back to original-file coordinates.
type Result struct {
	Body              string
	MetadataLineCount int
	Metadata          map[string]any
	Language          string
	ContentType       scanner.ContentType
}

// Extractor produces a Result from a file's raw bytes.
type Extractor interface {
	Extract(path string, raw []byte) (*Result, error)
}

// ForPath returns the Extractor registered for path's resolved content
// type, defaulting to plain text for anything scanner doesn't recognize.
func ForPath(path string) Extractor {
	language := scanner.DetectLanguage(path)
	contentType := scanner.DetectContentType(language)

	switch contentType {
	case scanner.ContentTypeMarkdown:
		return markdownExtractor{}
	case scanner.ContentTypeCode:
		return codeExtractor{}
	default:
		return plaintextExtractor{}
	}
}

type plaintextExtractor struct{}

func (plaintextExtractor) Extract(path string, raw []byte) (*Result, error) {
	return &Result{
		Body:        string(raw),
		ContentType: scanner.ContentTypeText,
	}, nil
}

type codeExtractor struct{}

func (codeExtractor) Extract(path string, raw []byte) (*Result, error) {
	body := string(raw)
	lineOffset := 0

	if strings.HasPrefix(body, "#!") {
		if idx := strings.IndexByte(body, '\n'); idx != -1 {
			body = body[idx+1:]
			lineOffset = 1
		}
	}

	return &Result{
		Body:              body,
		MetadataLineCount: lineOffset,
		Language:          scanner.DetectLanguage(path),
		ContentType:       scanner.ContentTypeCode,
	}, nil
}

type markdownExtractor struct{}

const frontmatterFence = "---"

func (markdownExtractor) Extract(path string, raw []byte) (*Result, error) {
	body := string(raw)
	metadata := map[string]any{}
	lineOffset := 0

	if stripped, meta, lines, ok := stripFrontmatter(body); ok {
		body = stripped
		metadata = meta
		lineOffset = lines
	}

	return &Result{
		Body:              body,
		MetadataLineCount: lineOffset,
		Metadata:          metadata,
		ContentType:       scanner.ContentTypeMarkdown,
	}, nil
}

// stripFrontmatter removes a leading "---\n...\n---\n" YAML block, parses
// it, and returns the line count consumed so chunk line numbers still map
// back to the original file.
func stripFrontmatter(body string) (rest string, metadata map[string]any, lineCount int, ok bool) {
	if !strings.HasPrefix(body, frontmatterFence+"\n") {
		return "", nil, 0, false
	}

	remainder := body[len(frontmatterFence)+1:]
	closeIdx := strings.Index(remainder, "\n"+frontmatterFence)
	if closeIdx == -1 {
		return "", nil, 0, false
	}

	yamlBlock := remainder[:closeIdx]
	afterFence := remainder[closeIdx+len(frontmatterFence)+1:]
	afterFence = strings.TrimPrefix(afterFence, "\n")

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(yamlBlock), &meta); err != nil {
		return "", nil, 0, false
	}

	consumed := body[:len(body)-len(afterFence)]
	lines := strings.Count(consumed, "\n")

	return afterFence, meta, lines, true
}

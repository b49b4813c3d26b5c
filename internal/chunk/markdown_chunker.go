package chunk

import (
	"context"
	"regexp"
	"strings"
)

// HeadingChunker implements header-based Markdown chunking. Frontmatter is
// not chunked here: callers extract it upstream (see internal/extract) and
// pass the stripped body in, plus MetadataLineCount so line numbers still
// map back to the original file.
type HeadingChunker struct{}

// Regex patterns for markdown parsing.
var (
	headerPattern         = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	codeBlockPattern      = regexp.MustCompile("(?s)```[^`]*```")
	mdxSelfClosingPattern = regexp.MustCompile(`<[A-Z][a-zA-Z0-9]*[^>]*/\s*>`)
	tablePattern          = regexp.MustCompile(`(?m)^\|.+\|$(\n^\|[-:|]+\|$)?(\n^\|.+\|$)*`)
)

// NewHeadingChunker creates a new markdown heading chunker.
func NewHeadingChunker() *HeadingChunker {
	return &HeadingChunker{}
}

// SupportedExtensions returns file extensions this chunker handles.
func (c *HeadingChunker) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

// heading represents one section of a markdown document, keyed by its
// ordered stack of enclosing heading titles.
type heading struct {
	level     int
	title     string
	path      []string
	content   string
	startLine int // 0-indexed, relative to in.Body
}

// Chunk implements Chunker.
func (c *HeadingChunker) Chunk(ctx context.Context, in *Input, maxChunkTokens int) ([]*Record, error) {
	if maxChunkTokens <= 0 {
		maxChunkTokens = DefaultMaxChunkTokens
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, nil
	}

	sections := parseHeadings(in.Body)

	var records []*Record
	if len(sections) == 0 {
		records = chunkParagraphs(in, in.Body, nil, 1, maxChunkTokens)
		return finalizeChunks(records, ""), nil
	}

	for _, sec := range sections {
		records = append(records, c.sectionRecords(in, sec, maxChunkTokens)...)
	}
	return finalizeChunks(records, ""), nil
}

// parseHeadings splits content into a flat list of sections, one per
// heading, tracking an ordered section_path via a per-level title stack.
func parseHeadings(content string) []*heading {
	lines := strings.Split(content, "\n")
	var sections []*heading
	stack := make([]string, 6)

	var current *heading
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.content = body.String()
			sections = append(sections, current)
			body.Reset()
		}
	}

	for lineNum, line := range lines {
		if match := headerPattern.FindStringSubmatch(line); match != nil {
			flush()

			level := len(match[1])
			title := strings.TrimSpace(match[2])

			stack[level-1] = title
			for i := level; i < 6; i++ {
				stack[i] = ""
			}

			var path []string
			for i := 0; i < level; i++ {
				if stack[i] != "" {
					path = append(path, stack[i])
				}
			}

			current = &heading{level: level, title: title, path: path, startLine: lineNum}
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return sections
}

func (c *HeadingChunker) sectionRecords(in *Input, sec *heading, maxChunkTokens int) []*Record {
	content := strings.TrimRight(sec.content, "\n")
	trimmed := strings.TrimSpace(content)
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= 1 && headerPattern.MatchString(trimmed) {
		return nil
	}

	if estimateTokens(content) <= maxChunkTokens {
		startLine := sec.startLine + 1 + in.MetadataLineCount
		return []*Record{{
			FilePath:     in.FilePath,
			SectionPath:  sec.path,
			Text:         content,
			StartLine:    startLine,
			EndLine:      startLine + strings.Count(content, "\n"),
			Metadata:     in.Metadata,
			HeadingDepth: sec.level,
		}}
	}

	return splitLargeSection(in, sec, content, sec.startLine+1, maxChunkTokens)
}

// splitLargeSection splits an oversized section by paragraph, keeping
// fenced code blocks, tables, and MDX components intact as atomic units.
func splitLargeSection(in *Input, sec *heading, content string, startLine, maxChunkTokens int) []*Record {
	paragraphs := splitByParagraphs(content)

	var records []*Record
	var buf strings.Builder
	currentStart := startLine
	lineCount := 0

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		body := strings.TrimRight(buf.String(), "\n")
		records = append(records, &Record{
			FilePath:     in.FilePath,
			SectionPath:  sec.path,
			Text:         body,
			StartLine:    currentStart + in.MetadataLineCount,
			EndLine:      currentStart + lineCount + in.MetadataLineCount,
			Metadata:     in.Metadata,
			HeadingDepth: sec.level,
		})
		buf.Reset()
	}

	for _, para := range paragraphs {
		paraLines := strings.Count(para, "\n") + 1
		if buf.Len() > 0 && estimateTokens(buf.String())+estimateTokens(para) > maxChunkTokens {
			flush()
			currentStart = startLine + lineCount
		}
		buf.WriteString(para)
		buf.WriteString("\n\n")
		lineCount += paraLines + 1
	}
	flush()

	return records
}

// findAtomicBlocks finds byte ranges that must not be split mid-block:
// fenced code, tables, and MDX components.
func findAtomicBlocks(content string) [][]int {
	var blocks [][]int
	blocks = append(blocks, codeBlockPattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, tablePattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, mdxSelfClosingPattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, findMDXBlockComponents(content)...)
	return blocks
}

func findMDXBlockComponents(content string) [][]int {
	var locs [][]int
	openTagPattern := regexp.MustCompile(`<([A-Z][a-zA-Z0-9]*)[^/>]*>`)
	matches := openTagPattern.FindAllStringSubmatchIndex(content, -1)

	for _, match := range matches {
		if len(match) < 4 {
			continue
		}
		tagName := content[match[2]:match[3]]
		closeTag := "</" + tagName + ">"
		closePos := strings.Index(content[match[1]:], closeTag)
		if closePos != -1 {
			locs = append(locs, []int{match[0], match[1] + closePos + len(closeTag)})
		}
	}
	return locs
}

// splitByParagraphs splits on blank lines, then re-merges any paragraph
// broken across an atomic block boundary (most commonly a fenced code
// block whose internal blank lines would otherwise fragment it).
func splitByParagraphs(content string) []string {
	_ = findAtomicBlocks(content) // blocks currently only gate merging, below

	parts := strings.Split(content, "\n\n")

	var paragraphs []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return mergeAtomicBlocks(paragraphs)
}

func mergeAtomicBlocks(paragraphs []string) []string {
	var result []string
	var inCodeBlock bool
	var codeBlock strings.Builder

	for _, para := range paragraphs {
		if inCodeBlock {
			codeBlock.WriteString("\n\n")
			codeBlock.WriteString(para)
			if strings.Contains(para, "```") {
				result = append(result, codeBlock.String())
				codeBlock.Reset()
				inCodeBlock = false
			}
			continue
		}

		if openCount := strings.Count(para, "```"); openCount > 0 && openCount%2 == 1 {
			inCodeBlock = true
			codeBlock.WriteString(para)
			continue
		}

		result = append(result, para)
	}

	if inCodeBlock {
		result = append(result, codeBlock.String())
	}

	return result
}

// chunkParagraphs chunks content with no headings by paragraph.
func chunkParagraphs(in *Input, content string, path []string, startLine, maxChunkTokens int) []*Record {
	paragraphs := strings.Split(content, "\n\n")

	var records []*Record
	var buf strings.Builder
	currentStart := startLine
	lineCount := 0

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		records = append(records, &Record{
			FilePath:    in.FilePath,
			SectionPath: path,
			Text:        strings.TrimSpace(buf.String()),
			StartLine:   currentStart + in.MetadataLineCount,
			EndLine:     currentStart + lineCount + in.MetadataLineCount,
			Metadata:    in.Metadata,
		})
		buf.Reset()
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		paraLines := strings.Count(para, "\n") + 1
		if buf.Len() > 0 && estimateTokens(buf.String())+estimateTokens(para) > maxChunkTokens {
			flush()
			currentStart = startLine + lineCount
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
		lineCount += paraLines + 1
	}
	flush()

	return records
}

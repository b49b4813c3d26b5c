package chunk

import (
	"context"
	"fmt"
	"strings"
)

// CodeChunker implements AST-aware code chunking using tree-sitter. One
// chunk is produced per top-level definition (function, method, class,
// interface, type, constant, variable), with leading comments attached and
// class/interface bodies descended into for per-method chunks.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
}

// NewCodeChunker creates a code chunker using the default language registry.
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithRegistry(DefaultRegistry())
}

// NewCodeChunkerWithRegistry creates a code chunker using a custom registry.
func NewCodeChunkerWithRegistry(registry *LanguageRegistry) *CodeChunker {
	return &CodeChunker{
		parser:   NewParserWithRegistry(registry),
		registry: registry,
	}
}

// Close releases parser resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns file extensions this chunker handles.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

type definition struct {
	node *Node
	kind string
	path []string
}

// Chunk implements Chunker.
func (c *CodeChunker) Chunk(ctx context.Context, in *Input, maxChunkTokens int) ([]*Record, error) {
	if maxChunkTokens <= 0 {
		maxChunkTokens = DefaultMaxChunkTokens
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, nil
	}

	config, supported := c.registry.GetByName(in.Language)
	if !supported {
		return c.chunkByLines(in, maxChunkTokens)
	}

	source := []byte(in.Body)
	tree, err := c.parser.Parse(ctx, source, in.Language)
	if err != nil || tree == nil || tree.Root == nil {
		return c.chunkByLines(in, maxChunkTokens)
	}

	var defs []*definition
	collectDefinitions(tree.Root, source, config, nil, &defs)
	if len(defs) == 0 {
		return c.chunkByLines(in, maxChunkTokens)
	}

	var records []*Record
	for _, def := range defs {
		parent := nodeParent(tree.Root, def.node)
		comment, commentStart := leadingComment(def.node, parent, source, config)

		startByte := def.node.StartByte
		if comment != "" {
			startByte = commentStart
		}
		text := strings.TrimRight(string(source[startByte:def.node.EndByte]), " \t")

		startLine := int(def.node.StartPoint.Row) + 1
		if comment != "" {
			lineAt := countNewlines(source[:startByte]) + 1
			startLine = lineAt
		}
		endLine := int(def.node.EndPoint.Row) + 1

		if estimateTokens(text) <= maxChunkTokens {
			records = append(records, &Record{
				FilePath:    in.FilePath,
				SectionPath: def.path,
				Text:        text,
				StartLine:   startLine + in.MetadataLineCount,
				EndLine:     endLine + in.MetadataLineCount,
				Metadata:    in.Metadata,
			})
			continue
		}

		records = append(records, splitOversizedCode(in, def.path, text, startLine, maxChunkTokens)...)
	}

	return finalizeChunks(records, ""), nil
}

// collectDefinitions walks n's children looking for definition nodes per
// config. Class/interface bodies are descended into (with the container's
// name prefixed onto SectionPath) so methods become their own chunks;
// other definition kinds are treated as leaves.
func collectDefinitions(n *Node, source []byte, config *LanguageConfig, path []string, out *[]*definition) {
	for _, child := range n.Children {
		kind, ok := config.classify(child.Type)
		target := child

		if !ok && config.isUnwrappable(child.Type) {
			for _, gc := range child.Children {
				if k2, ok2 := config.classify(gc.Type); ok2 {
					kind, ok, target = k2, true, gc
					break
				}
			}
		}

		if !ok {
			continue
		}

		name := defName(target, source, config)
		if name == "" {
			name = "anonymous"
		}
		defPath := append(append([]string{}, path...), name)

		*out = append(*out, &definition{node: target, kind: kind, path: defPath})

		if kind == "class" || kind == "interface" {
			collectDefinitions(target, source, config, defPath, out)
		}
	}
}

// nodeParent finds n's parent within root by depth-first search. Node does
// not carry a parent pointer (tree-sitter's C-level parent navigation isn't
// exposed through the converted tree), so leading-comment lookups resolve
// the parent once per definition.
func nodeParent(root, n *Node) *Node {
	for _, child := range root.Children {
		if child == n {
			return root
		}
		if found := nodeParent(child, n); found != nil {
			return found
		}
	}
	return nil
}

func countNewlines(b []byte) int {
	count := 0
	for _, c := range b {
		if c == '\n' {
			count++
		}
	}
	return count
}

// splitOversizedCode line-splits a single definition's text once it exceeds
// maxChunkTokens, keeping dense, 1-based, sub-chunk-local line numbers.
func splitOversizedCode(in *Input, path []string, text string, startLine, maxChunkTokens int) []*Record {
	lines := strings.Split(text, "\n")
	linesPerChunk := (maxChunkTokens * TokensPerChar) / 80
	if linesPerChunk < 20 {
		linesPerChunk = 20
	}

	var out []*Record
	part := 1
	for i := 0; i < len(lines); i += linesPerChunk {
		end := i + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[i:end], "\n")
		subPath := append(append([]string{}, path...), fmt.Sprintf("part%d", part))
		out = append(out, &Record{
			FilePath:    in.FilePath,
			SectionPath: subPath,
			Text:        body,
			StartLine:   startLine + i + in.MetadataLineCount,
			EndLine:     startLine + end - 1 + in.MetadataLineCount,
			Metadata:    in.Metadata,
		})
		part++
	}
	return out
}

// chunkByLines is the fallback for unsupported languages or parse failures:
// plain, overlap-free, fixed-size line windows.
func (c *CodeChunker) chunkByLines(in *Input, maxChunkTokens int) ([]*Record, error) {
	lines := strings.Split(in.Body, "\n")
	linesPerChunk := (maxChunkTokens * TokensPerChar) / 80
	if linesPerChunk < 20 {
		linesPerChunk = 20
	}

	var records []*Record
	for i := 0; i < len(lines); i += linesPerChunk {
		end := i + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[i:end], "\n")
		records = append(records, &Record{
			FilePath:  in.FilePath,
			Text:      body,
			StartLine: i + 1 + in.MetadataLineCount,
			EndLine:   end + in.MetadataLineCount,
			Metadata:  in.Metadata,
		})
	}
	return finalizeChunks(records, ""), nil
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/localcorpus/silod/internal/config"
	"github.com/localcorpus/silod/internal/store"
)

// DebugInfo is the structured payload printed by `silod debug` (and its
// --json form) for troubleshooting a single project's on-disk index.
type DebugInfo struct {
	ProjectRoot      string             `json:"project_root"`
	IndexPath        string             `json:"index_path"`
	FileCount        int                `json:"file_count"`
	ChunkCount       int                `json:"chunk_count"`
	LastIndexed      time.Time          `json:"last_indexed"`
	Languages        map[string]float64 `json:"languages"`
	EmbedderProvider string             `json:"embedder_provider"`
	EmbedderModel    string             `json:"embedder_model"`
	MetadataSize     int64              `json:"metadata_size_bytes"`
	BM25Size         int64              `json:"bm25_size_bytes"`
	VectorSize       int64              `json:"vector_size_bytes"`
}

func newDebugCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Print detailed diagnostic info about a project's index",
		Long: `Debug prints a detailed breakdown of a single project's on-disk index:
file and chunk counts, language mix, embedder configuration, and storage
sizes for each backend (metadata, BM25, vectors).

This operates on the legacy per-project .amanmcp index layout; for the
multi-silo registry use 'silod status' or the server_status MCP tool
instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}
			dataDir := filepath.Join(root, ".amanmcp")

			if !fileExists(filepath.Join(dataDir, "metadata.db")) {
				return fmt.Errorf("no index found in %s\nRun 'amanmcp index' to create one", root)
			}

			info, err := collectDebugInfo(cmd.Context(), root, dataDir)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			renderDebugInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// collectDebugInfo reads a project's metadata store and file listing to
// build a DebugInfo snapshot.
func collectDebugInfo(ctx context.Context, root, dataDir string) (*DebugInfo, error) {
	info := &DebugInfo{
		ProjectRoot: root,
		IndexPath:   dataDir,
		Languages:   map[string]float64{},
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	projectID := hashString(root)
	project, err := metadata.GetProject(ctx, projectID)
	if err == nil && project != nil {
		info.FileCount = project.FileCount
		info.ChunkCount = project.ChunkCount
		info.LastIndexed = project.IndexedAt
	}

	if files, _, err := metadata.ListFiles(ctx, projectID, "", 0); err == nil {
		info.Languages = languageBreakdown(files)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	info.EmbedderProvider = cfg.Embeddings.Provider
	if info.EmbedderProvider == "" {
		info.EmbedderProvider = "hugot"
	}
	info.EmbedderModel = cfg.Embeddings.Model
	if info.EmbedderModel == "" {
		info.EmbedderModel = "embeddinggemma"
	}

	info.MetadataSize = getFileSize(metadataPath)
	bm25SQLitePath := filepath.Join(dataDir, "bm25.db")
	if size := getFileSize(bm25SQLitePath); size > 0 {
		info.BM25Size = size
	} else {
		info.BM25Size = getDirSize(filepath.Join(dataDir, "bm25.bleve"))
	}
	info.VectorSize = getFileSize(filepath.Join(dataDir, "vectors.hnsw"))

	return info, nil
}

// languageBreakdown computes each normalized extension's share of files,
// keyed the way formatLanguages expects (normalized extension -> fraction).
func languageBreakdown(files []*store.File) map[string]float64 {
	counts := map[string]int{}
	for _, f := range files {
		ext := strings.TrimPrefix(filepath.Ext(f.Path), ".")
		counts[normalizeExtension(ext)]++
	}

	total := len(files)
	out := make(map[string]float64, len(counts))
	if total == 0 {
		return out
	}
	for ext, n := range counts {
		out[ext] = float64(n) / float64(total)
	}
	return out
}

// normalizeExtension collapses file extension aliases onto one canonical
// language tag (ts/tsx -> ts, js/jsx/mjs -> js, yml -> yaml, htm -> html).
func normalizeExtension(ext string) string {
	switch ext {
	case "tsx":
		return "ts"
	case "jsx", "mjs":
		return "js"
	case "yml":
		return "yaml"
	case "htm":
		return "html"
	default:
		return ext
	}
}

func renderDebugInfo(w io.Writer, info *DebugInfo) {
	fmt.Fprintf(w, "AmanMCP Debug Info\n")
	fmt.Fprintf(w, "===================\n\n")
	fmt.Fprintf(w, "Project:    %s\n", info.ProjectRoot)
	fmt.Fprintf(w, "Index path: %s\n\n", info.IndexPath)

	fmt.Fprintf(w, "FILES & CHUNKS\n")
	fmt.Fprintf(w, "  Files:        %s\n", formatNumber(info.FileCount))
	fmt.Fprintf(w, "  Chunks:       %s\n", formatNumber(info.ChunkCount))
	fmt.Fprintf(w, "  Last indexed: %s\n", formatAge(info.LastIndexed))
	fmt.Fprintf(w, "  Languages:    %s\n\n", formatLanguages(info.Languages))

	fmt.Fprintf(w, "EMBEDDER\n")
	fmt.Fprintf(w, "  Provider: %s\n", info.EmbedderProvider)
	fmt.Fprintf(w, "  Model:    %s\n\n", info.EmbedderModel)

	fmt.Fprintf(w, "BM25 INDEX\n")
	fmt.Fprintf(w, "  Size: %s bytes\n\n", formatNumber(int(info.BM25Size)))

	fmt.Fprintf(w, "VECTOR STORE\n")
	fmt.Fprintf(w, "  Size: %s bytes\n\n", formatNumber(int(info.VectorSize)))

	fmt.Fprintf(w, "STORAGE\n")
	fmt.Fprintf(w, "  Metadata: %s bytes\n", formatNumber(int(info.MetadataSize)))
	fmt.Fprintf(w, "  BM25:     %s bytes\n", formatNumber(int(info.BM25Size)))
	fmt.Fprintf(w, "  Vectors:  %s bytes\n", formatNumber(int(info.VectorSize)))
}

// formatAge renders a human-readable relative time, matching the coarse
// buckets 'silod status' already uses elsewhere in the CLI.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < 2*time.Minute:
		return "1 minute ago"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 2*time.Hour:
		return "1 hour ago"
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	case d < 48*time.Hour:
		return "1 day ago"
	default:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	}
}

// formatNumber renders n with thousands separators, e.g. 1234567 -> "1,234,567".
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var groups []string
	for len(s) > 3 {
		groups = append([]string{s[len(s)-3:]}, groups...)
		s = s[:len(s)-3]
	}
	groups = append([]string{s}, groups...)

	out := strings.Join(groups, ",")
	if neg {
		out = "-" + out
	}
	return out
}

// formatLanguages renders a language-share map sorted by descending share,
// e.g. "go (50%), ts (30%), md (20%)".
func formatLanguages(langs map[string]float64) string {
	if len(langs) == 0 {
		return "none"
	}

	type pair struct {
		lang  string
		share float64
	}
	pairs := make([]pair, 0, len(langs))
	for lang, share := range langs {
		pairs = append(pairs, pair{lang, share})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].share != pairs[j].share {
			return pairs[i].share > pairs[j].share
		}
		return pairs[i].lang < pairs[j].lang
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%s (%d%%)", p.lang, int(p.share*100+0.5))
	}
	return strings.Join(parts, ", ")
}

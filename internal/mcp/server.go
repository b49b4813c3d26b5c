package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/localcorpus/silod/internal/orchestrator"
	"github.com/localcorpus/silod/internal/search"
	"github.com/localcorpus/silod/internal/silo"
	"github.com/localcorpus/silod/internal/telemetry"
	"github.com/localcorpus/silod/pkg/version"
)

// Server is the MCP server for silod. It bridges AI clients (Claude Code,
// Cursor) with the multi-silo search engine, exposing the silo-aware
// surface an Orchestrator provides: search, silo management, activity, and
// server status.
type Server struct {
	mcp  *mcp.Server
	orch *orchestrator.Orchestrator

	logger *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// ResourceInfo contains information about a resource.
type ResourceInfo struct {
	URI      string
	Name     string
	MIMEType string
}

// ResourceContent contains the content of a resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"the search query to execute"`
	Silo       string `json:"silo,omitempty" jsonschema:"silo ID to search; omit to search every registered silo"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of results, default 10"`
	Preset     string `json:"preset,omitempty" jsonschema:"ranker weight preset: balanced, semantic, keyword, or code"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"list of search results"`
}

// SearchResultOutput defines a single search result with context-rich metadata.
type SearchResultOutput struct {
	Silo         string   `json:"silo" jsonschema:"ID of the silo this result came from"`
	FilePath     string   `json:"file_path" jsonschema:"file path relative to the silo's directory"`
	Content      string   `json:"content" jsonschema:"matched content snippet"`
	Score        float64  `json:"score" jsonschema:"relevance score, calibrated 0 to 1 within this result's silo"`
	Language     string   `json:"language,omitempty" jsonschema:"programming language of the file"`
	MatchReason  string   `json:"match_reason,omitempty" jsonschema:"human-readable explanation of why this result matched"`
	Symbol       string   `json:"symbol,omitempty" jsonschema:"primary symbol name (function, class, type)"`
	SymbolType   string   `json:"symbol_type,omitempty" jsonschema:"type of symbol: function, class, interface, type, method"`
	Signature    string   `json:"signature,omitempty" jsonschema:"full function/method signature"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms that matched this result"`
	InBothLists  bool     `json:"in_both_lists,omitempty" jsonschema:"true if result appeared in both keyword and semantic search"`
}

// NewServer creates a new MCP server backed by orch. orch's silos must
// already be registered (and, for live indexing, orch.Start must have been
// called by the caller) before Serve is called.
func NewServer(orch *orchestrator.Orchestrator) (*Server, error) {
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}

	s := &Server{
		orch:   orch,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "silod",
			Version: version.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	s.registerTools()

	return s, nil
}

// SetMetrics sets the query metrics collector for telemetry.
// When set, a query_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "silod", version.Version
}

// Capabilities returns whether tools and resources are enabled.
func (s *Server) Capabilities() (hasTools, hasResources bool) {
	return true, true
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "search",
			Description: "Hybrid keyword+semantic search across one silo or every registered silo. Use silo to scope the search; omit it to search everything and get cross-silo ranked results.",
		},
		{
			Name:        "list_silos",
			Description: "List every registered silo with its state, directories, and indexed file/chunk counts.",
		},
		{
			Name:        "silo_create",
			Description: "Register a new silo indexing the given directories and start reconciling it.",
		},
		{
			Name:        "silo_delete",
			Description: "Stop and unregister a silo.",
		},
		{
			Name:        "silo_stop",
			Description: "Pause a silo's watch loop without unregistering it.",
		},
		{
			Name:        "silo_wake",
			Description: "Resume a stopped silo and reconcile any changes made while it was stopped.",
		},
		{
			Name:        "silo_rebuild",
			Description: "Clear a silo's indexed data and reindex it from scratch.",
		},
		{
			Name:        "silo_update",
			Description: "Change a silo's directories or ignore patterns.",
		},
		{
			Name:        "silo_rename",
			Description: "Rename a silo.",
		},
		{
			Name:        "activity_recent",
			Description: "Recent indexing/search activity merged across every silo.",
		},
		{
			Name:        "server_status",
			Description: "Process-wide summary: uptime, silo count, total indexed files.",
		},
	}
}

// CallTool invokes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		return s.handleSearchTool(ctx, args)
	case "list_silos":
		return s.handleListSilosTool(ctx)
	case "silo_create":
		return s.handleSiloCreateTool(args)
	case "silo_delete":
		return nil, s.handleSiloIDTool(args, s.orch.SiloDelete)
	case "silo_stop":
		return nil, s.handleSiloIDTool(args, s.orch.SiloStop)
	case "silo_wake":
		return nil, s.handleSiloIDTool(args, s.orch.SiloWake)
	case "silo_rebuild":
		return nil, s.handleSiloIDTool(args, func(id string) error { return s.orch.SiloRebuild(ctx, id) })
	case "silo_update":
		return nil, s.handleSiloUpdateTool(args)
	case "silo_rename":
		return nil, s.handleSiloRenameTool(args)
	case "activity_recent":
		return s.handleActivityRecentTool(args), nil
	case "server_status":
		return s.handleServerStatusTool(ctx), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// handleSearchTool handles the search tool invocation, returning
// markdown-formatted results.
func (s *Server) handleSearchTool(ctx context.Context, args map[string]any) (string, error) {
	start := time.Now()
	requestID := generateRequestID()

	query := stringArg(args, "query")
	if strings.TrimSpace(query) == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	limit := clampLimit(0, 10, 1, 50)
	if l, ok := args["max_results"].(float64); ok {
		limit = clampLimit(int(l), 10, 1, 50)
	}

	req := orchestrator.SearchRequest{
		Query:      query,
		Silo:       stringArg(args, "silo"),
		MaxResults: limit,
		Preset:     search.HybridPreset(stringArg(args, "preset")),
	}

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.String("silo", req.Silo),
		slog.Int("limit", limit))

	results, err := s.orch.Search(ctx, req)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	return FormatMergedResults(query, results), nil
}

func (s *Server) handleListSilosTool(ctx context.Context) (ListSilosOutput, error) {
	statuses, err := s.orch.ListSilos(ctx)
	if err != nil {
		return ListSilosOutput{}, MapError(err)
	}
	return ListSilosOutput{Silos: toSiloStatusOutputs(statuses)}, nil
}

func (s *Server) handleSiloCreateTool(args map[string]any) (SiloStatusOutput, error) {
	name := stringArg(args, "name")
	if name == "" {
		return SiloStatusOutput{}, NewInvalidParamsError("name parameter is required")
	}
	dirs := stringSliceArg(args, "directories")
	if len(dirs) == 0 {
		return SiloStatusOutput{}, NewInvalidParamsError("directories parameter is required and must be non-empty")
	}

	cfg := silo.Config{
		Name:               name,
		Directories:        dirs,
		DBPath:             stringArg(args, "db_path"),
		ModelID:            stringArg(args, "model_id"),
		IgnorePatterns:     stringSliceArg(args, "ignore_patterns"),
		IgnoreFilePatterns: stringSliceArg(args, "ignore_file_patterns"),
	}

	status, err := s.orch.SiloCreate(cfg)
	if err != nil {
		return SiloStatusOutput{}, MapError(err)
	}
	return toSiloStatusOutput(status), nil
}

func (s *Server) handleSiloIDTool(args map[string]any, fn func(siloID string) error) error {
	id := stringArg(args, "silo")
	if id == "" {
		return NewInvalidParamsError("silo parameter is required")
	}
	if err := fn(id); err != nil {
		return MapError(err)
	}
	return nil
}

func (s *Server) handleSiloUpdateTool(args map[string]any) error {
	id := stringArg(args, "silo")
	if id == "" {
		return NewInvalidParamsError("silo parameter is required")
	}
	req := orchestrator.SiloUpdateRequest{
		Directories:        stringSliceArg(args, "directories"),
		IgnorePatterns:     stringSliceArg(args, "ignore_patterns"),
		IgnoreFilePatterns: stringSliceArg(args, "ignore_file_patterns"),
	}
	if err := s.orch.SiloUpdate(id, req); err != nil {
		return MapError(err)
	}
	return nil
}

func (s *Server) handleSiloRenameTool(args map[string]any) error {
	id := stringArg(args, "silo")
	name := stringArg(args, "name")
	if id == "" || name == "" {
		return NewInvalidParamsError("silo and name parameters are required")
	}
	if err := s.orch.SiloRename(id, name); err != nil {
		return MapError(err)
	}
	return nil
}

func (s *Server) handleActivityRecentTool(args map[string]any) ActivityRecentOutput {
	limit := 50
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}
	events := s.orch.ActivityRecent(limit)
	out := ActivityRecentOutput{Events: make([]ActivityEventOutput, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, ActivityEventOutput{
			Time:   e.Time,
			Silo:   e.SiloID,
			Kind:   e.Kind,
			Detail: e.Detail,
		})
	}
	return out
}

func (s *Server) handleServerStatusTool(ctx context.Context) ServerStatusOutput {
	status := s.orch.ServerStatus(ctx)
	return ServerStatusOutput{
		UptimeSeconds:     status.Uptime.Seconds(),
		SiloCount:         status.SiloCount,
		TotalIndexedFiles: status.TotalIndexedFiles,
	}
}

func toSiloStatusOutput(s orchestrator.SiloStatus) SiloStatusOutput {
	return SiloStatusOutput{
		ID:                 s.ID,
		Name:                s.Name,
		Directories:        s.Directories,
		DBPath:             s.DBPath,
		ModelID:            s.ModelID,
		IgnorePatterns:     s.IgnorePatterns,
		IgnoreFilePatterns: s.IgnoreFilePatterns,
		State:              string(s.State),
		IndexedFileCount:   s.IndexedFileCount,
		ChunkCount:         s.ChunkCount,
		LastUpdated:        s.LastUpdated,
		ErrorMessage:       s.ErrorMessage,
	}
}

func toSiloStatusOutputs(statuses []orchestrator.SiloStatus) []SiloStatusOutput {
	out := make([]SiloStatusOutput, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, toSiloStatusOutput(s))
	}
	return out
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	for _, t := range s.ListTools() {
		s.addTool(t)
	}

	s.logger.Info("MCP tools registered", slog.Int("count", len(s.ListTools())))
}

// addTool wires one ToolInfo entry to its MCP SDK handler. The handlers
// themselves are typed per tool (mcp.AddTool is generic over input/output
// structs), so this dispatches by name once rather than repeating the
// Tool{Name, Description} boilerplate at every call site.
func (s *Server) addTool(t ToolInfo) {
	def := &mcp.Tool{Name: t.Name, Description: t.Description}
	switch t.Name {
	case "search":
		mcp.AddTool(s.mcp, def, s.mcpSearchHandler)
	case "list_silos":
		mcp.AddTool(s.mcp, def, s.mcpListSilosHandler)
	case "silo_create":
		mcp.AddTool(s.mcp, def, s.mcpSiloCreateHandler)
	case "silo_delete":
		mcp.AddTool(s.mcp, def, s.mcpSiloIDHandler(s.orch.SiloDelete))
	case "silo_stop":
		mcp.AddTool(s.mcp, def, s.mcpSiloIDHandler(s.orch.SiloStop))
	case "silo_wake":
		mcp.AddTool(s.mcp, def, s.mcpSiloIDHandler(s.orch.SiloWake))
	case "silo_rebuild":
		mcp.AddTool(s.mcp, def, s.mcpSiloRebuildHandler)
	case "silo_update":
		mcp.AddTool(s.mcp, def, s.mcpSiloUpdateHandler)
	case "silo_rename":
		mcp.AddTool(s.mcp, def, s.mcpSiloRenameHandler)
	case "activity_recent":
		mcp.AddTool(s.mcp, def, s.mcpActivityRecentHandler)
	case "server_status":
		mcp.AddTool(s.mcp, def, s.mcpServerStatusHandler)
	}
	s.logger.Debug("Registered tool", slog.String("name", t.Name))
}

// mcpSearchHandler is the MCP SDK handler for the search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	req := orchestrator.SearchRequest{
		Query:      input.Query,
		Silo:       input.Silo,
		MaxResults: input.MaxResults,
		Preset:     search.HybridPreset(input.Preset),
	}

	results, err := s.orch.Search(ctx, req)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	output := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		if r != nil && r.Result != nil && r.Result.Chunk != nil {
			output.Results = append(output.Results, ToSearchResultOutput(r))
		}
	}

	return nil, output, nil
}

func (s *Server) mcpListSilosHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListSilosInput) (
	*mcp.CallToolResult,
	ListSilosOutput,
	error,
) {
	output, err := s.handleListSilosTool(ctx)
	if err != nil {
		return nil, ListSilosOutput{}, err
	}
	return nil, output, nil
}

func (s *Server) mcpSiloCreateHandler(_ context.Context, _ *mcp.CallToolRequest, input SiloCreateInput) (
	*mcp.CallToolResult,
	SiloStatusOutput,
	error,
) {
	if input.Name == "" {
		return nil, SiloStatusOutput{}, NewInvalidParamsError("name parameter is required")
	}
	if len(input.Directories) == 0 {
		return nil, SiloStatusOutput{}, NewInvalidParamsError("directories parameter is required and must be non-empty")
	}

	cfg := silo.Config{
		Name:               input.Name,
		Directories:        input.Directories,
		DBPath:             input.DBPath,
		ModelID:            input.ModelID,
		IgnorePatterns:     input.IgnorePatterns,
		IgnoreFilePatterns: input.IgnoreFilePatterns,
	}
	status, err := s.orch.SiloCreate(cfg)
	if err != nil {
		return nil, SiloStatusOutput{}, MapError(err)
	}
	return nil, toSiloStatusOutput(status), nil
}

// siloIDOutput is the empty-body output every silo-ID-only tool returns on
// success (silo_delete/stop/wake/rebuild don't otherwise produce a value).
type siloIDOutput struct {
	OK bool `json:"ok"`
}

// mcpSiloIDHandler builds an MCP handler for a tool that takes just a silo
// ID and calls fn with it.
func (s *Server) mcpSiloIDHandler(fn func(siloID string) error) func(context.Context, *mcp.CallToolRequest, SiloIDInput) (*mcp.CallToolResult, siloIDOutput, error) {
	return func(_ context.Context, _ *mcp.CallToolRequest, input SiloIDInput) (*mcp.CallToolResult, siloIDOutput, error) {
		if input.Silo == "" {
			return nil, siloIDOutput{}, NewInvalidParamsError("silo parameter is required")
		}
		if err := fn(input.Silo); err != nil {
			return nil, siloIDOutput{}, MapError(err)
		}
		return nil, siloIDOutput{OK: true}, nil
	}
}

func (s *Server) mcpSiloRebuildHandler(ctx context.Context, _ *mcp.CallToolRequest, input SiloIDInput) (
	*mcp.CallToolResult,
	siloIDOutput,
	error,
) {
	if input.Silo == "" {
		return nil, siloIDOutput{}, NewInvalidParamsError("silo parameter is required")
	}
	if err := s.orch.SiloRebuild(ctx, input.Silo); err != nil {
		return nil, siloIDOutput{}, MapError(err)
	}
	return nil, siloIDOutput{OK: true}, nil
}

func (s *Server) mcpSiloUpdateHandler(_ context.Context, _ *mcp.CallToolRequest, input SiloUpdateInput) (
	*mcp.CallToolResult,
	siloIDOutput,
	error,
) {
	if input.Silo == "" {
		return nil, siloIDOutput{}, NewInvalidParamsError("silo parameter is required")
	}
	req := orchestrator.SiloUpdateRequest{
		Directories:        input.Directories,
		IgnorePatterns:     input.IgnorePatterns,
		IgnoreFilePatterns: input.IgnoreFilePatterns,
	}
	if err := s.orch.SiloUpdate(input.Silo, req); err != nil {
		return nil, siloIDOutput{}, MapError(err)
	}
	return nil, siloIDOutput{OK: true}, nil
}

func (s *Server) mcpSiloRenameHandler(_ context.Context, _ *mcp.CallToolRequest, input SiloRenameInput) (
	*mcp.CallToolResult,
	siloIDOutput,
	error,
) {
	if input.Silo == "" || input.Name == "" {
		return nil, siloIDOutput{}, NewInvalidParamsError("silo and name parameters are required")
	}
	if err := s.orch.SiloRename(input.Silo, input.Name); err != nil {
		return nil, siloIDOutput{}, MapError(err)
	}
	return nil, siloIDOutput{OK: true}, nil
}

func (s *Server) mcpActivityRecentHandler(_ context.Context, _ *mcp.CallToolRequest, input ActivityRecentInput) (
	*mcp.CallToolResult,
	ActivityRecentOutput,
	error,
) {
	limit := input.Limit
	if limit == 0 {
		limit = 50
	}
	events := s.orch.ActivityRecent(limit)
	out := ActivityRecentOutput{Events: make([]ActivityEventOutput, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, ActivityEventOutput{
			Time:   e.Time,
			Silo:   e.SiloID,
			Kind:   e.Kind,
			Detail: e.Detail,
		})
	}
	return nil, out, nil
}

func (s *Server) mcpServerStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ServerStatusInput) (
	*mcp.CallToolResult,
	ServerStatusOutput,
	error,
) {
	return nil, s.handleServerStatusTool(ctx), nil
}

// ListResources returns resources across every registered silo, each URI
// namespaced by silo ID (silo://<silo-id>/file/<path>) since two silos may
// index files with the same relative path.
func (s *Server) ListResources(ctx context.Context, cursor string) ([]ResourceInfo, string, error) {
	statuses, err := s.orch.ListSilos(ctx)
	if err != nil {
		return nil, "", err
	}

	var resources []ResourceInfo
	for _, st := range statuses {
		files, err := s.orch.ListIndexedFiles(ctx, st.ID)
		if err != nil {
			continue
		}
		for _, f := range files {
			resources = append(resources, ResourceInfo{
				URI:      fmt.Sprintf("silo://%s/file/%s", st.ID, f.Path),
				Name:     fmt.Sprintf("%s: %s", st.Name, f.Path),
				MIMEType: MimeTypeForPath(f.Path),
			})
		}
	}

	return resources, "", nil // No pagination for now
}

// ReadResource reads a resource by URI (silo://<silo-id>/chunk/<chunk-id> or
// silo://<silo-id>/file/<path>; the latter is not yet backed by a direct
// file read and returns not-found, matching the teacher's own partial
// file:// support).
func (s *Server) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	siloID, kind, rest, ok := parseSiloResourceURI(uri)
	if !ok || kind != "chunk" {
		return nil, NewResourceNotFoundError(uri)
	}

	chunk, err := s.orch.GetChunk(ctx, siloID, rest)
	if err != nil {
		return nil, MapError(err)
	}
	if chunk == nil {
		return nil, NewResourceNotFoundError(uri)
	}

	return &ResourceContent{
		URI:      uri,
		Content:  chunk.Content,
		MIMEType: MimeTypeForPath(chunk.FilePath),
	}, nil
}

// parseSiloResourceURI splits a silo://<silo-id>/<kind>/<rest> URI.
func parseSiloResourceURI(uri string) (siloID, kind, rest string, ok bool) {
	const prefix = "silo://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, prefix), "/", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case "stdio":
		s.logger.Debug("Using stdio transport for JSON-RPC")
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	case "sse":
		return fmt.Errorf("SSE transport not yet implemented")
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	// The MCP server doesn't have a Close method - it stops when context is canceled
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

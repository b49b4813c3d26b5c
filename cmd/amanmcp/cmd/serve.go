package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/localcorpus/silod/internal/mcp"
	"github.com/localcorpus/silod/internal/orchestrator"
	"github.com/localcorpus/silod/internal/silo"
)

func newServeCmd() *cobra.Command {
	var transport string
	var port int
	var sessionName string
	var serveDebug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the always-on MCP search server",
		Long: `Serve starts silod's MCP server, exposing every registered silo
(corpus) to AI coding assistants over the Model Context Protocol.

silod keeps a shared home directory (SILOD_HOME, default ~/.silod) holding
the silo registry; each silo is indexed and watched continuously for the
life of the server, so multiple projects stay searchable from one process.

Examples:
  silod serve
  silod serve --transport stdio
  silod serve --session work-api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveDebug {
				debugMode = true
			}
			if sessionName != "" {
				cwd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("resolve working directory: %w", err)
				}
				return runServeWithSession(cmd.Context(), sessionName, cwd, transport, port)
			}
			return runServe(cmd.Context(), transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type (stdio|sse)")
	cmd.Flags().IntVar(&port, "port", 0, "Port for SSE transport")
	cmd.Flags().StringVar(&sessionName, "session", "", "Name this run as a saved session, indexing the current directory as a silo")
	cmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging to ~/.silod/logs/ for this invocation")

	return cmd
}

// defaultHomeDir returns the directory silod stores its silo registry and
// per-silo indexes under: $SILOD_HOME if set, otherwise ~/.silod.
func defaultHomeDir() (string, error) {
	if h := os.Getenv("SILOD_HOME"); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".silod"), nil
}

// verifyStdinForMCP checks that stdin looks like a pipe rather than an
// interactive terminal. The stdio transport expects JSON-RPC framing on
// stdin; a terminal never sends that, so failing here gives a clearer
// error than hanging on a handshake that will never arrive.
func verifyStdinForMCP() error {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("stdin is a terminal, not a pipe: the MCP stdio transport expects a client to pipe JSON-RPC into stdin, not an interactive session")
	}
	return nil
}

// runServe starts the orchestrator rooted at the default home directory and
// serves the MCP protocol over transport until ctx is cancelled.
func runServe(ctx context.Context, transport string, port int) error {
	home, err := defaultHomeDir()
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(home)
	if err != nil {
		return fmt.Errorf("failed to open orchestrator home %s: %w", home, err)
	}

	return serveOrchestrator(ctx, orch, transport, port)
}

// runServeWithSession ensures a silo backs projectPath under the shared
// home orchestrator (creating or waking one named after the session), then
// serves the MCP protocol exactly like runServe.
func runServeWithSession(ctx context.Context, name, projectPath, transport string, port int) error {
	home, err := defaultHomeDir()
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(home)
	if err != nil {
		return fmt.Errorf("failed to open orchestrator home %s: %w", home, err)
	}

	if err := ensureSessionSilo(orch, home, name, projectPath); err != nil {
		_ = orch.Close()
		return err
	}

	return serveOrchestrator(ctx, orch, transport, port)
}

// ensureSessionSilo finds the silo backing a named session's project,
// waking it if stopped, or creates one if this is the session's first run.
func ensureSessionSilo(orch *orchestrator.Orchestrator, home, name, projectPath string) error {
	silos, err := orch.ListSilos(context.Background())
	if err != nil {
		return fmt.Errorf("list silos: %w", err)
	}

	for _, s := range silos {
		if s.Name == name {
			if s.State == silo.StateStopped {
				return orch.SiloWake(s.ID)
			}
			return nil
		}
	}

	dbPath := filepath.Join(home, "sessions", name+".db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create session storage dir: %w", err)
	}

	if _, err := orch.SiloCreate(silo.Config{
		Name:        name,
		Directories: []string{projectPath},
		DBPath:      dbPath,
	}); err != nil {
		return fmt.Errorf("create silo for session %q: %w", name, err)
	}
	return nil
}

// serveOrchestrator starts every registered silo's watch/reconcile loop in
// the background and blocks serving the MCP protocol until ctx is done.
//
// BUG-035: the MCP handshake must complete well inside a client's timeout
// window, so Start runs in its own goroutine rather than being awaited -
// slow initial reconciliation (watcher setup, cold embedding backend) must
// never delay the first JSON-RPC response.
func serveOrchestrator(ctx context.Context, orch *orchestrator.Orchestrator, transport string, port int) error {
	defer func() { _ = orch.Close() }()

	if transport == "stdio" {
		if err := verifyStdinForMCP(); err != nil {
			slog.Warn("stdin validation failed, continuing anyway", slog.String("error", err.Error()))
		}
	}

	go orch.Start(ctx)

	srv, err := mcp.NewServer(orch)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	addr := ""
	if port > 0 {
		addr = fmt.Sprintf(":%d", port)
	}

	return srv.Serve(ctx, transport, addr)
}

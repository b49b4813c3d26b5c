package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/localcorpus/silod/internal/silo"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	home := t.TempDir()
	o, err := New(home)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
}

func TestOrchestrator_SiloCreate_ListSilos(t *testing.T) {
	o := newTestOrchestrator(t)
	srcDir := t.TempDir()
	writeTestFile(t, srcDir, "main.go", "package main\n\nfunc main() {}\n")

	status, err := o.SiloCreate(silo.Config{
		Name:        "demo",
		Directories: []string{srcDir},
		DBPath:      filepath.Join(t.TempDir(), "demo.db"),
	})
	if err != nil {
		t.Fatalf("SiloCreate: %v", err)
	}
	if status.ID == "" {
		t.Fatal("expected a generated silo ID")
	}

	silos, err := o.ListSilos(context.Background())
	if err != nil {
		t.Fatalf("ListSilos: %v", err)
	}
	if len(silos) != 1 || silos[0].Name != "demo" {
		t.Fatalf("expected one silo named demo, got %+v", silos)
	}
}

func TestOrchestrator_SiloCreate_ReconcileIndexesFiles(t *testing.T) {
	o := newTestOrchestrator(t)
	srcDir := t.TempDir()
	writeTestFile(t, srcDir, "notes.md", "# Widget handler\n\nHandles widget requests end to end.\n")

	status, err := o.SiloCreate(silo.Config{
		Name:        "docs",
		Directories: []string{srcDir},
		DBPath:      filepath.Join(t.TempDir(), "docs.db"),
	})
	if err != nil {
		t.Fatalf("SiloCreate: %v", err)
	}

	o.mu.RLock()
	e := o.silos[status.ID]
	o.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.silo.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	results, err := o.Search(ctx, SearchRequest{Query: "widget handler", Silo: status.ID})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one search result after reconcile")
	}
}

func TestOrchestrator_SiloDelete_RemovesFromRegistry(t *testing.T) {
	o := newTestOrchestrator(t)
	srcDir := t.TempDir()
	writeTestFile(t, srcDir, "a.txt", "hello world\n")

	status, err := o.SiloCreate(silo.Config{
		Name:        "temp",
		Directories: []string{srcDir},
		DBPath:      filepath.Join(t.TempDir(), "temp.db"),
	})
	if err != nil {
		t.Fatalf("SiloCreate: %v", err)
	}

	if err := o.SiloDelete(status.ID); err != nil {
		t.Fatalf("SiloDelete: %v", err)
	}

	silos, _ := o.ListSilos(context.Background())
	if len(silos) != 0 {
		t.Fatalf("expected no silos after delete, got %d", len(silos))
	}
}

func TestOrchestrator_SiloRename(t *testing.T) {
	o := newTestOrchestrator(t)
	srcDir := t.TempDir()
	writeTestFile(t, srcDir, "a.txt", "hello\n")

	status, err := o.SiloCreate(silo.Config{
		Name:        "old-name",
		Directories: []string{srcDir},
		DBPath:      filepath.Join(t.TempDir(), "rn.db"),
	})
	if err != nil {
		t.Fatalf("SiloCreate: %v", err)
	}

	if err := o.SiloRename(status.ID, "new-name"); err != nil {
		t.Fatalf("SiloRename: %v", err)
	}

	silos, _ := o.ListSilos(context.Background())
	if silos[0].Name != "new-name" {
		t.Fatalf("expected renamed silo, got %+v", silos[0])
	}
}

func TestOrchestrator_Search_UnknownSiloErrors(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.Search(context.Background(), SearchRequest{Query: "x", Silo: "nope"})
	if err == nil {
		t.Fatal("expected error for unknown silo")
	}
}

func TestOrchestrator_ActivityRecent_MergesAcrossSilos(t *testing.T) {
	o := newTestOrchestrator(t)
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeTestFile(t, dirA, "a.txt", "alpha\n")
	writeTestFile(t, dirB, "b.txt", "beta\n")

	sa, err := o.SiloCreate(silo.Config{Name: "a", Directories: []string{dirA}, DBPath: filepath.Join(t.TempDir(), "a.db")})
	if err != nil {
		t.Fatalf("SiloCreate a: %v", err)
	}
	sb, err := o.SiloCreate(silo.Config{Name: "b", Directories: []string{dirB}, DBPath: filepath.Join(t.TempDir(), "b.db")})
	if err != nil {
		t.Fatalf("SiloCreate b: %v", err)
	}

	o.mu.RLock()
	ea, eb := o.silos[sa.ID], o.silos[sb.ID]
	o.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ea.silo.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile a: %v", err)
	}
	if err := eb.silo.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile b: %v", err)
	}

	events := o.ActivityRecent(0)
	if len(events) == 0 {
		t.Fatal("expected merged activity from both silos")
	}
}

func TestOrchestrator_ServerStatus(t *testing.T) {
	o := newTestOrchestrator(t)
	status := o.ServerStatus(context.Background())
	if status.SiloCount != 0 {
		t.Fatalf("expected zero silos, got %d", status.SiloCount)
	}
	if status.Uptime <= 0 {
		t.Fatalf("expected positive uptime, got %v", status.Uptime)
	}
}

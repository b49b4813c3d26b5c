package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/localcorpus/silod/internal/scanner"
	"github.com/localcorpus/silod/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore("")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.SaveProject(context.Background(), &store.Project{ID: "p1", Name: "test"}); err != nil {
		t.Fatalf("failed to save project: %v", err)
	}
	return s
}

func newReconciler(t *testing.T, md store.MetadataStore) *Reconciler {
	t.Helper()
	sc, err := scanner.New()
	if err != nil {
		t.Fatalf("failed to create scanner: %v", err)
	}
	return New(sc, md)
}

func TestReconciler_DetectsAddedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a"), 0o644); err != nil {
		t.Fatal(err)
	}

	md := newTestStore(t)
	r := newReconciler(t, md)

	changes, err := r.Reconcile(context.Background(), "p1", []string{dir}, Options{})
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if len(changes) != 1 || changes[0].Kind != ChangeAdded {
		t.Fatalf("expected one added change, got %+v", changes)
	}
}

func TestReconciler_DetectsRemovedFile(t *testing.T) {
	dir := t.TempDir()
	absPath, _ := filepath.Abs(filepath.Join(dir, "gone.go"))

	md := newTestStore(t)
	if err := md.SaveFiles(context.Background(), []*store.File{{
		ID:        "gone",
		ProjectID: "p1",
		Path:      absPath,
		ModTime:   time.Now(),
	}}); err != nil {
		t.Fatal(err)
	}

	r := newReconciler(t, md)
	changes, err := r.Reconcile(context.Background(), "p1", []string{dir}, Options{})
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if len(changes) != 1 || changes[0].Kind != ChangeRemoved {
		t.Fatalf("expected one removed change, got %+v", changes)
	}
}

func TestReconciler_UnchangedFileProducesNoChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "same.go")
	if err := os.WriteFile(path, []byte("package same"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	absPath, _ := filepath.Abs(path)

	md := newTestStore(t)
	if err := md.SaveFiles(context.Background(), []*store.File{{
		ID:        "same",
		ProjectID: "p1",
		Path:      absPath,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
	}}); err != nil {
		t.Fatal(err)
	}

	r := newReconciler(t, md)
	changes, err := r.Reconcile(context.Background(), "p1", []string{dir}, Options{})
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected no changes for an unmodified file, got %+v", changes)
	}
}

func TestReconciler_RequiresAtLeastOneDirectory(t *testing.T) {
	md := newTestStore(t)
	r := newReconciler(t, md)
	if _, err := r.Reconcile(context.Background(), "p1", nil, Options{}); err == nil {
		t.Fatal("expected error for empty directory list")
	}
}

func TestReconciler_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		if err := os.WriteFile(filepath.Join(dir, "f"+string(rune('a'+i))+".go"), []byte("package f"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	md := newTestStore(t)
	r := newReconciler(t, md)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Reconcile(ctx, "p1", []string{dir}, Options{})
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.go")
	if err := os.WriteFile(path, []byte("package f"), 0o644); err != nil {
		t.Fatal(err)
	}

	h1, err := ContentHash(path)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ContentHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 || h1 == "" {
		t.Errorf("expected stable non-empty hash, got %q and %q", h1, h2)
	}
}

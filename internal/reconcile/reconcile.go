// Package reconcile diffs a silo's configured directories against its
// stored file metadata, the startup/periodic pass that decides which files
// need (re)indexing or removal without requiring a filesystem watcher.
package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/localcorpus/silod/internal/scanner"
	"github.com/localcorpus/silod/internal/store"
)

// ChangeKind classifies one file's reconciliation outcome.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change describes one file that needs indexing action.
type Change struct {
	// Path uniquely identifies the file across every directory a silo
	// watches. Since a silo's directories need not share a common root
	// (spec's `directories` attribute is an arbitrary list), Path is the
	// file's absolute path rather than a project-root-relative one.
	Path string
	Kind ChangeKind
	Info *scanner.FileInfo // nil for ChangeRemoved
}

// ProgressEvent reports reconciliation progress for a silo's activity feed.
type ProgressEvent struct {
	Directory string
	Scanned   int
	Path      string
}

// Reconciler walks a silo's directories and diffs them against stored file
// metadata. Grounded on the teacher's internal/scanner.Scanner (breadth-first
// walk with gitignore filtering, already streaming via a channel) and
// internal/store.MetadataStore.GetFilesForReconciliation (the existing
// startup-file-sync query), generalized from one project root to an
// arbitrary directory list.
type Reconciler struct {
	scanner  *scanner.Scanner
	metadata store.MetadataStore
}

// New creates a Reconciler.
func New(sc *scanner.Scanner, metadata store.MetadataStore) *Reconciler {
	return &Reconciler{scanner: sc, metadata: metadata}
}

// Options configures one reconciliation pass.
type Options struct {
	ExcludePatterns []string
	MaxFileSize     int64
	OnProgress      func(ProgressEvent)
}

// Reconcile walks every directory, streaming scanner results, and returns
// the set of adds/modifications/removals relative to projectID's stored
// file metadata. Cancellable via ctx: a cancelled context stops the walk
// and returns ctx.Err() along with whatever changes were found so far.
func (r *Reconciler) Reconcile(ctx context.Context, projectID string, directories []string, opts Options) ([]Change, error) {
	if len(directories) == 0 {
		return nil, fmt.Errorf("at least one directory is required")
	}

	existing, err := r.metadata.GetFilesForReconciliation(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing file metadata: %w", err)
	}

	seen := make(map[string]bool, len(existing))
	var changes []Change

	for _, dir := range directories {
		select {
		case <-ctx.Done():
			return changes, ctx.Err()
		default:
		}

		absDir, err := filepath.Abs(dir)
		if err != nil {
			return changes, fmt.Errorf("resolving directory %s: %w", dir, err)
		}

		results, err := r.scanner.Scan(ctx, &scanner.ScanOptions{
			RootDir:          absDir,
			ExcludePatterns:  opts.ExcludePatterns,
			RespectGitignore: true,
			MaxFileSize:      opts.MaxFileSize,
		})
		if err != nil {
			return changes, fmt.Errorf("scanning %s: %w", absDir, err)
		}

		scanned := 0
		for res := range results {
			select {
			case <-ctx.Done():
				return changes, ctx.Err()
			default:
			}

			if res.Error != nil || res.File == nil {
				continue
			}
			scanned++
			if opts.OnProgress != nil {
				opts.OnProgress(ProgressEvent{Directory: absDir, Scanned: scanned, Path: res.File.Path})
			}

			path := res.File.AbsPath
			seen[path] = true

			prior, ok := existing[path]
			if !ok {
				changes = append(changes, Change{Path: path, Kind: ChangeAdded, Info: res.File})
				continue
			}
			if !prior.ModTime.Equal(res.File.ModTime) || prior.Size != res.File.Size {
				changes = append(changes, Change{Path: path, Kind: ChangeModified, Info: res.File})
			}
		}
	}

	for path := range existing {
		if !seen[path] {
			changes = append(changes, Change{Path: path, Kind: ChangeRemoved})
		}
	}

	return changes, nil
}

// ContentHash computes the SHA256 content hash used to key chunk IDs and
// to detect content changes beyond what mtime/size catch (e.g. a file
// rewritten with the same size within the same filesystem mtime tick).
func ContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// StaleCheckpointAge is how long a reconciliation-in-progress checkpoint
// can go untouched before a silo considers it abandoned and restarts the
// pass from scratch rather than resuming it.
const StaleCheckpointAge = 10 * time.Minute

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// FilePathIndex is the fourth HybridSearch ranker: fuzzy matching of the
// query against tracked file paths, so a query like "srchndlr" or
// "search handler" surfaces search_handler.go even when neither BM25 nor
// the trigram index has indexed enough of its content to rank it highly.
//
// No fuzzy-matching library appears anywhere in the example pack (checked
// go.mod/go.sum across every retrieved repo), so this is one of the few
// pieces of silod built on the standard library rather than a third-party
// dependency: the subsequence-scoring approach below follows the same
// shape command-line fuzzy finders use (fzf, telescope.nvim), reimplemented
// directly rather than imported since nothing in the corpus supplies it.
type FilePathIndex struct {
	mu    sync.RWMutex
	paths map[string]string // docID (chunk ID or file ID) -> file path
}

// NewFilePathIndex creates an empty path index.
func NewFilePathIndex() *FilePathIndex {
	return &FilePathIndex{paths: make(map[string]string)}
}

// Index replaces the set of tracked (docID, filePath) pairs for the given
// IDs. Callers typically pass one entry per chunk, keyed by chunk ID, so
// ranker output lines up with the BM25/vector/trigram rankers' chunk IDs.
func (f *FilePathIndex) Index(entries map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, path := range entries {
		f.paths[id] = path
	}
}

// Delete removes entries by doc ID.
func (f *FilePathIndex) Delete(ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.paths, id)
	}
}

// Search scores every tracked path against query using fuzzy subsequence
// matching and returns the best limit matches, best first. A query matches
// a path if every rune in the (lowercased) query appears in order somewhere
// in the path; score rewards contiguous runs and matches near path
// separators (so "handler" scores higher against ".../search_handler.go"
// than a path with "handler" buried mid-word).
func (f *FilePathIndex) Search(ctx context.Context, query string, limit int) ([]*TrigramResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}

	var results []*TrigramResult
	for id, path := range f.paths {
		score, ok := fuzzyPathScore(q, strings.ToLower(path))
		if !ok {
			continue
		}
		results = append(results, &TrigramResult{DocID: id, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// fuzzyPathScore reports whether every rune of q occurs in path in order,
// and if so a score that rewards consecutive matches and matches
// immediately following a path separator or case boundary.
func fuzzyPathScore(q, path string) (float64, bool) {
	qr := []rune(q)
	pr := []rune(path)

	qi := 0
	score := 0.0
	consecutive := 0
	for pi := 0; pi < len(pr) && qi < len(qr); pi++ {
		if pr[pi] != qr[qi] {
			consecutive = 0
			continue
		}
		bonus := 1.0
		if pi == 0 || pr[pi-1] == '/' || pr[pi-1] == '_' || pr[pi-1] == '-' || pr[pi-1] == '.' {
			bonus += 1.5 // boundary match
		}
		consecutive++
		bonus += float64(consecutive-1) * 0.5 // reward runs
		score += bonus
		qi++
	}
	if qi < len(qr) {
		return 0, false // not every query rune matched, in order
	}
	// Normalize so shorter paths with the same match quality don't dominate
	// purely because len(path) is small; longer paths pay a mild penalty.
	return score / (1.0 + float64(len(pr))/64.0), true
}

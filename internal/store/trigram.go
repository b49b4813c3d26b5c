package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// TrigramResult is a single fuzzy substring match.
type TrigramResult struct {
	DocID string
	Score float64
}

// TrigramIndex provides fuzzy substring search (typo-tolerant filename and
// snippet matching) via SQLite's built-in FTS5 trigram tokenizer. It is one
// of the rankers HybridSearch fuses alongside BM25 and vector search.
type TrigramIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewTrigramIndex opens (or creates) a trigram index at path. An empty path
// creates an in-memory index for testing.
func NewTrigramIndex(path string) (*TrigramIndex, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS trigram_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='trigram'
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize trigram schema: %w", err)
	}

	return &TrigramIndex{db: db}, nil
}

// Index adds or replaces documents. Content is typically "filePath\ntext" so
// a single index backs both path-fuzzy and snippet-fuzzy matching.
func (t *TrigramIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("trigram index is closed")
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	del, err := tx.PrepareContext(ctx, `DELETE FROM trigram_content WHERE doc_id = ?`)
	if err != nil {
		return err
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx, `INSERT INTO trigram_content(doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer ins.Close()

	for _, doc := range docs {
		if _, err := del.ExecContext(ctx, doc.ID); err != nil {
			return err
		}
		if _, err := ins.ExecContext(ctx, doc.ID, doc.Content); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Search returns documents whose content fuzzily matches query, ranked by
// FTS5's bm25() weighting over trigram tokens (best proxy for edit-distance
// similarity without a dedicated fuzzy-matching library).
func (t *TrigramIndex) Search(ctx context.Context, query string, limit int) ([]*TrigramResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, fmt.Errorf("trigram index is closed")
	}
	if limit <= 0 {
		limit = 20
	}
	if len(strings.TrimSpace(query)) < 3 {
		// Trigram tokenizer needs at least 3 characters to produce a token.
		return nil, nil
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT doc_id, bm25(trigram_content) FROM trigram_content
		WHERE trigram_content MATCH ? ORDER BY bm25(trigram_content) LIMIT ?`,
		quoteFTSQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("trigram search failed: %w", err)
	}
	defer rows.Close()

	var results []*TrigramResult
	for rows.Next() {
		var docID string
		var rank float64
		if err := rows.Scan(&docID, &rank); err != nil {
			return nil, err
		}
		// bm25() returns negative scores, more negative = better; flip sign
		// so higher Score means a better match (consistent with BM25Result).
		results = append(results, &TrigramResult{DocID: docID, Score: -rank})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// Delete removes documents from the index.
func (t *TrigramIndex) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM trigram_content WHERE doc_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range docIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close releases the underlying database handle.
func (t *TrigramIndex) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.db.Close()
}

// quoteFTSQuery wraps the raw query in double quotes so FTS5 treats it as a
// literal phrase rather than parsing operators like AND/OR/NOT/- out of
// arbitrary user text.
func quoteFTSQuery(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}

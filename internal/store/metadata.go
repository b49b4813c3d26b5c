package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteStore implements MetadataStore on top of modernc.org/sqlite.
// One SQLiteStore backs one silo: projects, files, chunks, symbols and
// runtime state all live in a single database file under the silo's
// data directory.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ MetadataStore = (*SQLiteStore)(nil)

const metadataSchema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	root_path TEXT NOT NULL,
	project_type TEXT,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	file_count INTEGER NOT NULL DEFAULT 0,
	indexed_at INTEGER,
	version TEXT
);

CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	path TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	mod_time INTEGER,
	content_hash TEXT,
	language TEXT,
	content_type TEXT,
	indexed_at INTEGER,
	UNIQUE(project_id, path)
);
CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id);
CREATE INDEX IF NOT EXISTS idx_files_mtime ON files(project_id, mod_time);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	file_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	content TEXT NOT NULL,
	raw_content TEXT,
	context TEXT,
	content_type TEXT,
	language TEXT,
	start_line INTEGER,
	end_line INTEGER,
	metadata TEXT,
	created_at INTEGER,
	updated_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);

CREATE TABLE IF NOT EXISTS symbols (
	chunk_id TEXT NOT NULL,
	name TEXT NOT NULL,
	type TEXT,
	start_line INTEGER,
	end_line INTEGER,
	signature TEXT,
	doc_comment TEXT
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_chunk ON symbols(chunk_id);

CREATE TABLE IF NOT EXISTS chunk_embeddings (
	chunk_id TEXT PRIMARY KEY,
	embedding BLOB NOT NULL,
	model TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runtime_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS index_checkpoint (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	stage TEXT NOT NULL,
	total INTEGER NOT NULL,
	embedded_count INTEGER NOT NULL,
	embedder_model TEXT,
	updated_at INTEGER
);
`

// StoreConfig tunes the metadata database's SQLite page cache.
type StoreConfig struct {
	// CacheSizeMB is the SQLite page cache size in megabytes (default: 64).
	CacheSizeMB int
}

// DefaultStoreConfig returns the default metadata store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{CacheSizeMB: 64}
}

// NewSQLiteStore opens (creating if necessary) the metadata database at path
// using DefaultStoreConfig. An empty path creates an in-memory store, used by tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(path, DefaultStoreConfig())
}

// NewSQLiteStoreWithConfig opens the metadata database with a custom cache size.
func NewSQLiteStoreWithConfig(path string, cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.CacheSizeMB <= 0 {
		cfg.CacheSizeMB = DefaultStoreConfig().CacheSizeMB
	}

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
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA cache_size = -%d", cfg.CacheSizeMB*1024),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(metadataSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// DB returns the underlying *sql.DB for callers (like trigram search) that
// need to run ad hoc queries against the same connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- Project operations ---

func (s *SQLiteStore) SaveProject(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, root_path, project_type, chunk_count, file_count, indexed_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, root_path=excluded.root_path, project_type=excluded.project_type,
			chunk_count=excluded.chunk_count, file_count=excluded.file_count,
			indexed_at=excluded.indexed_at, version=excluded.version
	`, p.ID, p.Name, p.RootPath, p.ProjectType, p.ChunkCount, p.FileCount, unixOrNil(p.IndexedAt), p.Version)
	return err
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, root_path, project_type, chunk_count, file_count, indexed_at, version
		FROM projects WHERE id = ?`, id)

	p := &Project{}
	var indexedAt sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &p.RootPath, &p.ProjectType, &p.ChunkCount, &p.FileCount, &indexedAt, &p.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.IndexedAt = timeFromUnix(indexedAt)
	return p, nil
}

func (s *SQLiteStore) UpdateProjectStats(ctx context.Context, id string, fileCount, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET file_count = ?, chunk_count = ?, indexed_at = ? WHERE id = ?`,
		fileCount, chunkCount, time.Now().Unix(), id)
	return err
}

func (s *SQLiteStore) RefreshProjectStats(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fileCount, chunkCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE project_id = ?`, id).Scan(&fileCount); err != nil {
		return err
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks WHERE file_id IN (SELECT id FROM files WHERE project_id = ?)`, id).Scan(&chunkCount); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET file_count = ?, chunk_count = ?, indexed_at = ? WHERE id = ?`,
		fileCount, chunkCount, time.Now().Unix(), id)
	return err
}

// --- File operations ---

func (s *SQLiteStore) SaveFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, path) DO UPDATE SET
			id=excluded.id, size=excluded.size, mod_time=excluded.mod_time,
			content_hash=excluded.content_hash, language=excluded.language,
			content_type=excluded.content_type, indexed_at=excluded.indexed_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, f.ID, f.ProjectID, f.Path, f.Size, unixOrNil(f.ModTime),
			f.ContentHash, f.Language, f.ContentType, unixOrNil(f.IndexedAt)); err != nil {
			return fmt.Errorf("save file %s: %w", f.Path, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetFileByPath(ctx context.Context, projectID, path string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ? AND path = ?`, projectID, path)
	return scanFile(row)
}

func (s *SQLiteStore) GetChangedFiles(ctx context.Context, projectID string, since time.Time) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ? AND mod_time > ? ORDER BY path`, projectID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFiles(rows)
}

func (s *SQLiteStore) ListFiles(ctx context.Context, projectID string, cursor string, limit int) ([]*File, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	offset, err := decodeListCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ? ORDER BY path LIMIT ? OFFSET ?`, projectID, limit+1, offset)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	files, err := scanFiles(rows)
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(files) > limit {
		nextCursor = encodeListCursor(offset + limit)
		files = files[:limit]
	}
	return files, nextCursor, nil
}

// decodeListCursor decodes a base64 "offset:N" pagination cursor. An empty
// cursor means offset 0.
func decodeListCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}

	var offset int
	if _, err := fmt.Sscanf(string(decoded), "offset:%d", &offset); err != nil {
		return 0, fmt.Errorf("invalid cursor format: %w", err)
	}
	if offset < 0 {
		return 0, fmt.Errorf("invalid cursor: offset must be non-negative")
	}
	return offset, nil
}

func encodeListCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("offset:%d", offset)))
}

func (s *SQLiteStore) GetFilePathsByProject(ctx context.Context, projectID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) GetFilesForReconciliation(ctx context.Context, projectID string) (map[string]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files, err := scanFiles(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*File, len(files))
	for _, f := range files {
		out[f.Path] = f
	}
	return out, nil
}

func (s *SQLiteStore) ListFilePathsUnder(ctx context.Context, projectID, dirPrefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := strings.TrimSuffix(dirPrefix, "/") + "/"
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM files WHERE project_id = ? AND (path = ? OR path LIKE ? ESCAPE '\')`,
		projectID, strings.TrimSuffix(dirPrefix, "/"), escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM symbols WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id = ?)`, fileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunk_embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id = ?)`, fileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteFilesByProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM symbols WHERE chunk_id IN (
			SELECT c.id FROM chunks c JOIN files f ON c.file_id = f.id WHERE f.project_id = ?)`, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunk_embeddings WHERE chunk_id IN (
			SELECT c.id FROM chunks c JOIN files f ON c.file_id = f.id WHERE f.project_id = ?)`, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunks WHERE file_id IN (SELECT id FROM files WHERE project_id = ?)`, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Chunk operations ---

func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file_id, file_path, content, raw_content, context, content_type, language,
			start_line, end_line, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_id=excluded.file_id, file_path=excluded.file_path, content=excluded.content,
			raw_content=excluded.raw_content, context=excluded.context, content_type=excluded.content_type,
			language=excluded.language, start_line=excluded.start_line, end_line=excluded.end_line,
			metadata=excluded.metadata, updated_at=excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()

	symStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (chunk_id, name, type, start_line, end_line, signature, doc_comment)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer symStmt.Close()

	delSymStmt, err := tx.PrepareContext(ctx, `DELETE FROM symbols WHERE chunk_id = ?`)
	if err != nil {
		return err
	}
	defer delSymStmt.Close()

	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for chunk %s: %w", c.ID, err)
		}

		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		updatedAt := c.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}

		if _, err := chunkStmt.ExecContext(ctx, c.ID, c.FileID, c.FilePath, c.Content, c.RawContent, c.Context,
			string(c.ContentType), c.Language, c.StartLine, c.EndLine, string(metaJSON),
			createdAt.Unix(), updatedAt.Unix()); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}

		if _, err := delSymStmt.ExecContext(ctx, c.ID); err != nil {
			return err
		}
		for _, sym := range c.Symbols {
			if _, err := symStmt.ExecContext(ctx, c.ID, sym.Name, string(sym.Type), sym.StartLine, sym.EndLine,
				sym.Signature, sym.DocComment); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	chunks, err := s.GetChunks(ctx, []string{id})
	if err != nil || len(chunks) == 0 {
		return nil, err
	}
	return chunks[0], nil
}

func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, file_id, file_path, content, raw_content, context, content_type, language,
			start_line, end_line, metadata, created_at, updated_at
		FROM chunks WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachSymbols(ctx, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (s *SQLiteStore) GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, file_path, content, raw_content, context, content_type, language,
			start_line, end_line, metadata, created_at, updated_at
		FROM chunks WHERE file_id = ? ORDER BY start_line`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachSymbols(ctx, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (s *SQLiteStore) attachSymbols(ctx context.Context, chunks []*Chunk) error {
	for _, c := range chunks {
		rows, err := s.db.QueryContext(ctx, `
			SELECT name, type, start_line, end_line, signature, doc_comment FROM symbols WHERE chunk_id = ?`, c.ID)
		if err != nil {
			return err
		}
		var symbols []*Symbol
		for rows.Next() {
			sym := &Symbol{}
			var symType string
			if err := rows.Scan(&sym.Name, &symType, &sym.StartLine, &sym.EndLine, &sym.Signature, &sym.DocComment); err != nil {
				rows.Close()
				return err
			}
			sym.Type = SymbolType(symType)
			symbols = append(symbols, sym)
		}
		rows.Close()
		c.Symbols = symbols
	}
	return nil
}

func (s *SQLiteStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM symbols WHERE chunk_id IN (%s)`, placeholders), args...); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM chunk_embeddings WHERE chunk_id IN (%s)`, placeholders), args...); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM chunks WHERE id IN (%s)`, placeholders), args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteChunksByFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM symbols WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id = ?)`, fileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunk_embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id = ?)`, fileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Symbol operations ---

func (s *SQLiteStore) SearchSymbols(ctx context.Context, name string, limit int) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, start_line, end_line, signature, doc_comment
		FROM symbols WHERE name LIKE ? ESCAPE '\' ORDER BY length(name) LIMIT ?`,
		escapeLike(name)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []*Symbol
	for rows.Next() {
		sym := &Symbol{}
		var symType string
		if err := rows.Scan(&sym.Name, &symType, &sym.StartLine, &sym.EndLine, &sym.Signature, &sym.DocComment); err != nil {
			return nil, err
		}
		sym.Type = SymbolType(symType)
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// --- State operations ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM runtime_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runtime_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// --- Embedding operations ---

func (s *SQLiteStore) SaveChunkEmbeddings(ctx context.Context, chunkIDs []string, embeddings [][]float32, model string) error {
	if len(chunkIDs) != len(embeddings) {
		return fmt.Errorf("chunkIDs and embeddings length mismatch: %d vs %d", len(chunkIDs), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunk_embeddings (chunk_id, embedding, model) VALUES (?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET embedding = excluded.embedding, model = excluded.model`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, id, embeddingToBytes(embeddings[i]), model); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetAllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, embedding FROM chunk_embeddings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		out[id] = bytesToEmbedding(blob)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetEmbeddingStats(ctx context.Context) (withEmbedding, withoutEmbedding int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_embeddings`).Scan(&withEmbedding); err != nil {
		return 0, 0, err
	}
	var total int
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&total); err != nil {
		return 0, 0, err
	}
	withoutEmbedding = total - withEmbedding
	if withoutEmbedding < 0 {
		withoutEmbedding = 0
	}
	return withEmbedding, withoutEmbedding, nil
}

// --- Checkpoint operations ---

func (s *SQLiteStore) SaveIndexCheckpoint(ctx context.Context, stage string, total, embeddedCount int, embedderModel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_checkpoint (id, stage, total, embedded_count, embedder_model, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage=excluded.stage, total=excluded.total, embedded_count=excluded.embedded_count,
			embedder_model=excluded.embedder_model, updated_at=excluded.updated_at`,
		stage, total, embeddedCount, embedderModel, time.Now().Unix())
	return err
}

func (s *SQLiteStore) LoadIndexCheckpoint(ctx context.Context) (*IndexCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT stage, total, embedded_count, embedder_model, updated_at FROM index_checkpoint WHERE id = 1`)

	cp := &IndexCheckpoint{}
	var updatedAt sql.NullInt64
	err := row.Scan(&cp.Stage, &cp.Total, &cp.EmbeddedCount, &cp.EmbedderModel, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cp.Timestamp = timeFromUnix(updatedAt)
	return cp, nil
}

func (s *SQLiteStore) ClearIndexCheckpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM index_checkpoint WHERE id = 1`)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// --- helpers ---

func unixOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func timeFromUnix(n sql.NullInt64) time.Time {
	if !n.Valid || n.Int64 == 0 {
		return time.Time{}
	}
	return time.Unix(n.Int64, 0)
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

// embeddingToBytes encodes a float32 vector as little-endian bytes for BLOB storage.
func embeddingToBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

// bytesToEmbedding decodes a little-endian byte BLOB back into a float32 vector.
func bytesToEmbedding(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	n := len(buf) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFile(row scannable) (*File, error) {
	f := &File{}
	var modTime, indexedAt sql.NullInt64
	err := row.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Size, &modTime, &f.ContentHash, &f.Language, &f.ContentType, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.ModTime = timeFromUnix(modTime)
	f.IndexedAt = timeFromUnix(indexedAt)
	return f, nil
}

func scanFiles(rows *sql.Rows) ([]*File, error) {
	var files []*File
	for rows.Next() {
		f := &File{}
		var modTime, indexedAt sql.NullInt64
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Size, &modTime, &f.ContentHash, &f.Language, &f.ContentType, &indexedAt); err != nil {
			return nil, err
		}
		f.ModTime = timeFromUnix(modTime)
		f.IndexedAt = timeFromUnix(indexedAt)
		files = append(files, f)
	}
	return files, rows.Err()
}

func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		c := &Chunk{}
		var contentType, metaJSON sql.NullString
		var createdAt, updatedAt sql.NullInt64
		if err := rows.Scan(&c.ID, &c.FileID, &c.FilePath, &c.Content, &c.RawContent, &c.Context,
			&contentType, &c.Language, &c.StartLine, &c.EndLine, &metaJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.ContentType = ContentType(contentType.String)
		c.CreatedAt = timeFromUnix(createdAt)
		c.UpdatedAt = timeFromUnix(updatedAt)
		if metaJSON.String != "" {
			_ = json.Unmarshal([]byte(metaJSON.String), &c.Metadata)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunkIDFor derives the content-addressable chunk ID (ChunkIDVersionContent):
// SHA256(filePath + ":" + contentHash). Two chunks with identical content at
// the same path collapse onto the same ID, so re-chunking an unchanged file
// is a no-op upsert rather than a delete-and-reinsert.
func ChunkIDFor(filePath, contentHash string) string {
	sum := sha256.Sum256([]byte(filePath + ":" + contentHash))
	return hex.EncodeToString(sum[:])
}

package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/hnsw"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/satnambhatt/ai-engine/internal/errors"
)

// store_meta keys.
const (
	metaDimensions   = "dimensions"
	metaGraphNodes   = "graph_nodes"
	metaGraphOrphans = "graph_orphans"
)

const chunkColumns = `key, id, text, vector, file_path, extension, framework, repo_name,
	component_category, section_type, file_type, chunk_index, chunk_total,
	start_line, end_line, file_size, sha256`

// LibraryStore implements Store on SQLite rows and an in-memory HNSW graph.
//
// Replaced and deleted rows leave orphan nodes in the graph; results are
// resolved through the rows so orphans never surface. The graph is
// compacted on save once orphans outnumber a quarter of its nodes.
type LibraryStore struct {
	mu     sync.RWMutex
	opts   Options
	logger *slog.Logger

	db      *sql.DB
	graph   *hnsw.Graph[int64]
	dims    int
	orphans int
	closed  bool
}

// Verify interface implementation at compile time
var _ Store = (*LibraryStore)(nil)

// NewLibraryStore validates options. The database is opened by Init.
func NewLibraryStore(opts Options) (*LibraryStore, error) {
	if opts.Dir == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "store directory is required", nil)
	}
	if opts.Collection == "" {
		opts.Collection = "design_library"
	}
	if opts.M <= 0 {
		opts.M = DefaultM
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = DefaultEfSearch
	}
	if opts.Oversample <= 0 {
		opts.Oversample = DefaultOversample
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LibraryStore{opts: opts, logger: logger}, nil
}

// Init opens the database, creates the schema and loads the vector graph.
func (s *LibraryStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if s.db != nil {
		return nil
	}

	dbPath := s.opts.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return errors.New(errors.ErrCodeStoreWrite, "failed to create store directory", err).
			WithDetail("path", filepath.Dir(dbPath))
	}

	if err := validateIntegrity(dbPath); err != nil {
		return errors.New(errors.ErrCodeCorruptStore, "vector store is corrupted", err).
			WithDetail("path", dbPath).
			WithSuggestion("run 'design-indexer reset --yes' then 'design-indexer index --full'")
	}

	db, err := openDB(ctx, dbPath)
	if err != nil {
		return errors.New(errors.ErrCodeStoreWrite, "failed to open vector store", err).
			WithDetail("path", dbPath)
	}
	s.db = db

	if err := s.loadMeta(ctx); err != nil {
		_ = db.Close()
		s.db = nil
		return errors.New(errors.ErrCodeCorruptStore, "failed to read store metadata", err)
	}
	if err := s.loadOrRebuildGraph(ctx); err != nil {
		_ = db.Close()
		s.db = nil
		return errors.New(errors.ErrCodeCorruptStore, "failed to load vector graph", err)
	}
	return nil
}

// validateIntegrity checks an existing database before opening it.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		key                INTEGER PRIMARY KEY AUTOINCREMENT,
		id                 TEXT NOT NULL UNIQUE,
		text               TEXT NOT NULL,
		vector             BLOB NOT NULL,
		file_path          TEXT NOT NULL,
		extension          TEXT NOT NULL DEFAULT '',
		framework          TEXT NOT NULL DEFAULT '',
		repo_name          TEXT NOT NULL DEFAULT '',
		component_category TEXT NOT NULL DEFAULT '',
		section_type       TEXT NOT NULL DEFAULT '',
		file_type          TEXT NOT NULL DEFAULT '',
		chunk_index        INTEGER NOT NULL DEFAULT 0,
		chunk_total        INTEGER NOT NULL DEFAULT 0,
		start_line         INTEGER NOT NULL DEFAULT 0,
		end_line           INTEGER NOT NULL DEFAULT 0,
		file_size          INTEGER NOT NULL DEFAULT 0,
		sha256             TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_path);
	CREATE INDEX IF NOT EXISTS idx_chunks_framework ON chunks(framework);

	CREATE TABLE IF NOT EXISTS store_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func (s *LibraryStore) loadMeta(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM store_meta`)
	if err != nil {
		return err
	}
	defer rows.Close()

	s.dims, s.orphans = 0, 0
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", k, v, err)
		}
		switch k {
		case metaDimensions:
			s.dims = n
		case metaGraphOrphans:
			s.orphans = n
		}
	}
	return rows.Err()
}

func (s *LibraryStore) metaInt(ctx context.Context, key string) (int, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, key).Scan(&v)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(v)
	return n, err == nil, err
}

func setMeta(ctx context.Context, exec interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, key string, value int) error {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO store_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, strconv.Itoa(value))
	return err
}

// loadOrRebuildGraph loads the saved graph, or rebuilds it from the rows
// when the file is missing or its node counts disagree with the database.
func (s *LibraryStore) loadOrRebuildGraph(ctx context.Context) error {
	rowCount, err := s.countLocked(ctx)
	if err != nil {
		return err
	}

	graphPath := s.opts.GraphPath()
	g, err := loadGraph(graphPath, s.opts.M, s.opts.EfSearch)
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		if rowCount == 0 {
			s.graph = newGraph(s.opts.M, s.opts.EfSearch)
			s.orphans = 0
			return nil
		}
		s.logger.Info("vector_graph_missing", slog.String("path", graphPath), slog.Int("rows", rowCount))
		return s.rebuildGraph(ctx)
	case err != nil:
		s.logger.Warn("vector_graph_unreadable",
			slog.String("path", graphPath),
			slog.String("error", err.Error()))
		return s.rebuildGraph(ctx)
	}

	savedNodes, ok, err := s.metaInt(ctx, metaGraphNodes)
	if err != nil {
		return err
	}
	if !ok || g.Len() != savedNodes || rowCount != savedNodes-s.orphans {
		s.logger.Warn("vector_graph_inconsistent",
			slog.Int("graph_nodes", g.Len()),
			slog.Int("saved_nodes", savedNodes),
			slog.Int("orphans", s.orphans),
			slog.Int("rows", rowCount))
		return s.rebuildGraph(ctx)
	}

	s.graph = g
	s.logger.Debug("vector_graph_loaded", slog.Int("nodes", g.Len()), slog.Int("orphans", s.orphans))
	return nil
}

// rebuildGraph replaces the graph with one built from every stored row.
func (s *LibraryStore) rebuildGraph(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, vector FROM chunks ORDER BY key`)
	if err != nil {
		return fmt.Errorf("failed to read vectors: %w", err)
	}
	defer rows.Close()

	g := newGraph(s.opts.M, s.opts.EfSearch)
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var key int64
		var blob []byte
		if err := rows.Scan(&key, &blob); err != nil {
			return err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", key, err)
		}
		g.Add(hnsw.MakeNode(key, vec))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.graph = g
	s.orphans = 0
	s.logger.Info("vector_graph_rebuilt", slog.Int("nodes", g.Len()))
	return nil
}

func (s *LibraryStore) ready() error {
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if s.db == nil {
		return fmt.Errorf("store is not initialized")
	}
	return nil
}

// Upsert inserts records, replacing existing rows with the same ID.
func (s *LibraryStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}

	dims := s.dims
	for _, r := range records {
		if r.ID == "" {
			return errors.New(errors.ErrCodeInvalidInput, "record id is required", nil)
		}
		if len(r.Vector) == 0 {
			return errors.New(errors.ErrCodeInvalidInput, "record vector is empty", nil).WithDetail("id", r.ID)
		}
		if dims == 0 {
			dims = len(r.Vector)
		}
		if len(r.Vector) != dims {
			return errors.New(errors.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector dimension mismatch: expected %d, got %d", dims, len(r.Vector)), nil).
				WithDetail("id", r.ID).
				WithSuggestion("the embedding model changed; run 'design-indexer index --full'")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrCodeStoreWrite, "failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	replaced := 0
	nodes := make([]hnsw.Node[int64], 0, len(records))
	for _, r := range records {
		res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, r.ID)
		if err != nil {
			return errors.New(errors.ErrCodeStoreWrite, "failed to replace chunk", err).WithDetail("id", r.ID)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			replaced += int(n)
		}

		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		normalizeVectorInPlace(vec)

		m := r.Meta
		res, err = tx.ExecContext(ctx,
			`INSERT INTO chunks (id, text, vector, file_path, extension, framework, repo_name,
				component_category, section_type, file_type, chunk_index, chunk_total,
				start_line, end_line, file_size, sha256)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Text, encodeVector(vec), m.FilePath, m.Extension, m.Framework, m.RepoName,
			m.ComponentCategory, m.SectionType, m.FileType, m.ChunkIndex, m.ChunkTotal,
			m.StartLine, m.EndLine, m.FileSize, m.SHA256)
		if err != nil {
			return errors.New(errors.ErrCodeStoreWrite, "failed to insert chunk", err).WithDetail("id", r.ID)
		}
		key, err := res.LastInsertId()
		if err != nil {
			return errors.New(errors.ErrCodeStoreWrite, "failed to read chunk key", err).WithDetail("id", r.ID)
		}
		nodes = append(nodes, hnsw.MakeNode(key, vec))
	}

	if s.dims == 0 {
		if err := setMeta(ctx, tx, metaDimensions, dims); err != nil {
			return errors.New(errors.ErrCodeStoreWrite, "failed to record dimensions", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCodeStoreWrite, "failed to commit chunks", err)
	}

	s.dims = dims
	s.orphans += replaced
	s.graph.Add(nodes...)
	return nil
}

// DeleteByFile removes every chunk whose file_path equals filePath.
func (s *LibraryStore) DeleteByFile(ctx context.Context, filePath string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, filePath)
	if err != nil {
		return 0, errors.New(errors.ErrCodeStoreWrite, "failed to delete chunks", err).WithDetail("file_path", filePath)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.New(errors.ErrCodeStoreWrite, "failed to count deleted chunks", err)
	}
	s.orphans += int(n)
	return int(n), nil
}

// DeleteIDs removes chunks by ID.
func (s *LibraryStore) DeleteIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrCodeStoreWrite, "failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	removed := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id)
		if err != nil {
			return errors.New(errors.ErrCodeStoreWrite, "failed to delete chunk", err).WithDetail("id", id)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCodeStoreWrite, "failed to commit deletes", err)
	}
	s.orphans += removed
	return nil
}

// Count returns the number of stored chunks.
func (s *LibraryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.countLocked(ctx)
}

func (s *LibraryStore) countLocked(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Summary counts frameworks and categories over up to sample chunks.
func (s *LibraryStore) Summary(ctx context.Context, sample int) (Summary, error) {
	if sample <= 0 {
		sample = DefaultSummarySize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return Summary{}, err
	}

	total, err := s.countLocked(ctx)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		TotalChunks: total,
		Frameworks:  make(map[string]int),
		Categories:  make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT framework, component_category FROM chunks ORDER BY key LIMIT ?`, sample)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to sample chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var framework, category string
		if err := rows.Scan(&framework, &category); err != nil {
			return Summary{}, err
		}
		sum.Frameworks[labelOrUnknown(framework)]++
		sum.Categories[labelOrUnknown(category)]++
	}
	return sum, rows.Err()
}

func labelOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// Reset removes every chunk and the saved graph.
func (s *LibraryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrCodeStoreWrite, "failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, stmt := range []string{
		`DELETE FROM chunks`,
		`DELETE FROM store_meta`,
		`DELETE FROM sqlite_sequence WHERE name = 'chunks'`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.New(errors.ErrCodeStoreWrite, "failed to reset store", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCodeStoreWrite, "failed to commit reset", err)
	}

	if err := os.Remove(s.opts.GraphPath()); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("vector_graph_remove_failed", slog.String("error", err.Error()))
	}
	s.graph = newGraph(s.opts.M, s.opts.EfSearch)
	s.dims = 0
	s.orphans = 0
	s.logger.Info("store_reset", slog.String("collection", s.opts.Collection))
	return nil
}

// Close saves the graph, compacting it first when orphans dominate,
// and closes the database.
func (s *LibraryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}

	ctx := context.Background()
	var errs []error
	if err := s.persistGraph(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	s.db = nil
	s.graph = nil
	return stderrors.Join(errs...)
}

func (s *LibraryStore) persistGraph(ctx context.Context) error {
	if s.orphans > 0 && s.orphans*compactOrphanFactor > s.graph.Len() {
		if err := s.rebuildGraph(ctx); err != nil {
			return fmt.Errorf("failed to compact vector graph: %w", err)
		}
	}

	if s.graph.Len() == 0 {
		if err := os.Remove(s.opts.GraphPath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove graph file: %w", err)
		}
	} else if err := saveGraph(s.graph, s.opts.GraphPath()); err != nil {
		return err
	}
	if err := setMeta(ctx, s.db, metaGraphNodes, s.graph.Len()); err != nil {
		return fmt.Errorf("failed to record graph size: %w", err)
	}
	if err := setMeta(ctx, s.db, metaGraphOrphans, s.orphans); err != nil {
		return fmt.Errorf("failed to record graph orphans: %w", err)
	}
	s.logger.Debug("vector_graph_saved", slog.Int("nodes", s.graph.Len()), slog.Int("orphans", s.orphans))
	return nil
}

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

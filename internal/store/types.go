// Package store persists embedded chunks for similarity search.
//
// Chunk rows, including their vectors, live in SQLite. An HNSW graph over
// the same vectors is held in memory and saved beside the database; it is
// rebuilt from the rows whenever it is missing or out of step with them.
package store

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/satnambhatt/ai-engine/internal/config"
)

// Store is the vector store used by the indexing engine and the search command.
type Store interface {
	// Init opens or creates the collection. Safe to call more than once.
	Init(ctx context.Context) error
	// Upsert inserts records, replacing any with the same ID.
	Upsert(ctx context.Context, records []Record) error
	// DeleteByFile removes every chunk of a file and reports how many were removed.
	DeleteByFile(ctx context.Context, filePath string) (int, error)
	// DeleteIDs removes chunks by ID. Unknown IDs are ignored.
	DeleteIDs(ctx context.Context, ids []string) error
	// Query returns the chunks closest to vec that satisfy q.
	Query(ctx context.Context, vec []float32, q Query) ([]Result, error)
	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)
	// Summary describes up to sample chunks.
	Summary(ctx context.Context, sample int) (Summary, error)
	// Reset removes every chunk.
	Reset(ctx context.Context) error
	// Close persists the vector graph and releases the database.
	Close() error
}

// Metadata is stored alongside every chunk.
type Metadata struct {
	FilePath          string `json:"file_path"`
	Extension         string `json:"extension"`
	Framework         string `json:"framework"`
	RepoName          string `json:"repo_name"`
	ComponentCategory string `json:"component_category"`
	SectionType       string `json:"section_type"`
	FileType          string `json:"file_type"`
	ChunkIndex        int    `json:"chunk_index"`
	ChunkTotal        int    `json:"chunk_total"`
	StartLine         int    `json:"start_line"`
	EndLine           int    `json:"end_line"`
	FileSize          int64  `json:"file_size"`
	SHA256            string `json:"sha256"`
}

// Record is one embedded chunk.
type Record struct {
	ID     string
	Text   string
	Vector []float32
	Meta   Metadata
}

// Query narrows a similarity search. Empty fields do not filter.
type Query struct {
	Limit     int
	Framework string
	Category  string
	Section   string
	Repo      string
	// ExcludeSections drops chunks with these section types.
	ExcludeSections []string
}

// Result is a matched chunk. Score is the cosine similarity to the query.
type Result struct {
	ID    string
	Text  string
	Meta  Metadata
	Score float32
}

// Summary describes the stored chunks.
type Summary struct {
	TotalChunks int            `json:"total_chunks"`
	Frameworks  map[string]int `json:"framework_distribution"`
	Categories  map[string]int `json:"component_categories"`
}

// Default tuning.
const (
	DefaultLimit        = 10
	DefaultSummarySize  = 1000
	DefaultM            = 16
	DefaultEfSearch     = 64
	DefaultOversample   = 4
	filteredOversample  = 10
	compactOrphanFactor = 4
)

// Options configures a LibraryStore.
type Options struct {
	// Dir holds one subdirectory per collection.
	Dir        string
	Collection string

	// M and EfSearch tune the HNSW graph.
	M        int
	EfSearch int
	// Oversample multiplies the graph candidates fetched per requested result.
	Oversample int

	Logger *slog.Logger
}

// OptionsFromConfig maps the store configuration onto options.
func OptionsFromConfig(cfg config.StoreConfig) Options {
	return Options{Dir: cfg.Dir, Collection: cfg.Collection}
}

func (o Options) collectionDir() string { return filepath.Join(o.Dir, o.Collection) }

// DBPath returns the SQLite database path.
func (o Options) DBPath() string { return filepath.Join(o.collectionDir(), "chunks.db") }

// GraphPath returns the saved HNSW graph path.
func (o Options) GraphPath() string { return filepath.Join(o.collectionDir(), "vectors.hnsw") }

// Package integration exercises the indexer end to end: a library on
// disk, the Ollama HTTP client against a fake server, the SQLite/HNSW
// store and the engine.
package integration

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/satnambhatt/ai-engine/internal/autotune"
	"github.com/satnambhatt/ai-engine/internal/chunk"
	"github.com/satnambhatt/ai-engine/internal/config"
	"github.com/satnambhatt/ai-engine/internal/embed"
	"github.com/satnambhatt/ai-engine/internal/engine"
	"github.com/satnambhatt/ai-engine/internal/store"
	"github.com/satnambhatt/ai-engine/internal/ui"
)

const dims = 64

// fakeOllama serves /api/tags and /api/embed with bag-of-words vectors,
// so texts sharing words land close together.
type fakeOllama struct {
	*httptest.Server
	embeds atomic.Int64
}

func newFakeOllama(t *testing.T, model string) *fakeOllama {
	t.Helper()
	f := &fakeOllama{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(embed.OllamaModelListResponse{
			Models: []embed.OllamaModelInfo{{Name: model + ":latest"}},
		})
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req embed.OllamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.embeds.Add(1)
		_ = json.NewEncoder(w).Encode(embed.OllamaEmbedResponse{
			Model:      req.Model,
			Embeddings: [][]float64{bagOfWords(req.Input)},
		})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func bagOfWords(text string) []float64 {
	vec := make([]float64, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%dims]++
	}
	vec[0] += 0.01
	return vec
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// library is a design library on disk with a wired engine.
type library struct {
	root   string
	cfg    *config.Config
	ollama *fakeOllama
	store  *store.LibraryStore
	engine *engine.Engine
}

func newLibrary(t *testing.T) *library {
	t.Helper()

	lib := &library{root: t.TempDir()}
	lib.cfg = config.NewConfig()
	lib.cfg.Library.Root = lib.root
	lib.cfg.Library.MetadataDir = t.TempDir()
	lib.cfg.Store.Dir = t.TempDir()
	lib.ollama = newFakeOllama(t, lib.cfg.Embedding.Model)
	lib.cfg.Embedding.BaseURL = lib.ollama.URL

	client, err := embed.NewOllamaClient(embed.OllamaConfigFromConfig(lib.cfg.Embedding))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	lib.store, err = store.NewLibraryStore(store.OptionsFromConfig(lib.cfg.Store))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.store.Close() })

	chunker, err := chunk.New(chunk.OptionsFromConfig(lib.cfg.Chunking))
	require.NoError(t, err)

	lib.engine, err = engine.New(engine.ConfigFromConfig(lib.cfg), engine.Dependencies{
		Embedder:   client,
		Store:      lib.store,
		Chunker:    chunker,
		Controller: autotune.NewController(autotune.PolicyFromConfig(lib.cfg.Workers), &autotune.StaticSampler{}, quietLogger()),
		StateDir:   lib.cfg.MetadataDir(),
		Renderer:   ui.NopRenderer{},
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	return lib
}

func (l *library) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(l.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// search embeds query through the fake server and queries the store.
func (l *library) search(t *testing.T, query string, q store.Query) []store.Result {
	t.Helper()
	vec := bagOfWords(query)
	v32 := make([]float32, len(vec))
	for i, x := range vec {
		v32[i] = float32(x)
	}
	results, err := l.store.Query(context.Background(), v32, q)
	require.NoError(t, err)
	return results
}

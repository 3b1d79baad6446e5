package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/satnambhatt/ai-engine/internal/autotune"
	"github.com/satnambhatt/ai-engine/internal/chunk"
	"github.com/satnambhatt/ai-engine/internal/config"
	"github.com/satnambhatt/ai-engine/internal/embed"
	"github.com/satnambhatt/ai-engine/internal/engine"
	"github.com/satnambhatt/ai-engine/internal/store"
	"github.com/satnambhatt/ai-engine/internal/ui"
)

// newEmbedder builds the Ollama client, cached when a cache size is set.
func newEmbedder(cfg *config.Config, logger *slog.Logger) (embed.Embedder, io.Closer, error) {
	ocfg := embed.OllamaConfigFromConfig(cfg.Embedding)
	ocfg.Logger = logger
	client, err := embed.NewOllamaClient(ocfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	if cfg.Embedding.CacheSize <= 0 {
		return client, client, nil
	}

	cached, err := embed.NewCachedEmbedder(client, cfg.Embedding.CacheSize)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return cached, client, nil
}

// newStore opens the vector store without initializing it.
func newStore(cfg *config.Config, logger *slog.Logger) (*store.LibraryStore, error) {
	opts := store.OptionsFromConfig(cfg.Store)
	opts.Logger = logger
	return store.NewLibraryStore(opts)
}

// indexer is an engine with the resources it owns.
type indexer struct {
	*engine.Engine
	embedder embed.Embedder
	closers  []io.Closer
}

func (ix *indexer) Close() error {
	var first error
	for i := len(ix.closers) - 1; i >= 0; i-- {
		if err := ix.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newIndexer wires the engine from configuration.
func newIndexer(a *app, renderer ui.Renderer) (*indexer, error) {
	cfg := a.cfg

	chunker, err := chunk.New(chunk.Options{
		TargetChars: cfg.Chunking.TargetChars,
		MaxChars:    cfg.Chunking.MaxChars,
		MinChars:    cfg.Chunking.MinChars,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, err
	}

	embedder, embedCloser, err := newEmbedder(cfg, a.logger)
	if err != nil {
		return nil, err
	}
	st, err := newStore(cfg, a.logger)
	if err != nil {
		_ = embedCloser.Close()
		return nil, err
	}

	controller := autotune.NewController(
		autotune.PolicyFromConfig(cfg.Workers),
		autotune.NewProcSampler(a.logger),
		a.logger,
	)

	eng, err := engine.New(engine.ConfigFromConfig(cfg), engine.Dependencies{
		Embedder:   embedder,
		Store:      st,
		Chunker:    chunker,
		Controller: controller,
		StateDir:   cfg.MetadataDir(),
		Renderer:   renderer,
		Logger:     a.logger,
	})
	if err != nil {
		_ = st.Close()
		_ = embedCloser.Close()
		return nil, err
	}

	return &indexer{Engine: eng, embedder: embedder, closers: []io.Closer{embedCloser, st}}, nil
}

package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder wraps an Embedder with an LRU cache keyed by the
// SHA-256 of model and text. The embedded text carries the file path, so
// hits come from one file re-embedding chunks it already produced in this
// process: in watch mode an edit to one section re-embeds only that
// section. Identical files at different paths do not share entries.
type CachedEmbedder struct {
	inner  Embedder
	cache  *lru.Cache[string, []float32]
	hits   atomic.Int64
	misses atomic.Int64
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder creates a cached embedder wrapping inner.
func NewCachedEmbedder(inner Embedder, cacheSize int) (*CachedEmbedder, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(c.inner.Model() + "\x00" + text))
	return hex.EncodeToString(hash[:])
}

// Embed returns the cached embedding if present, otherwise computes and caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (Result, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return Result{Vector: vec, Cached: true}, nil
	}

	c.misses.Add(1)
	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return Result{}, err
	}
	c.cache.Add(key, res.Vector)
	return res, nil
}

// Health passes through to the inner embedder.
func (c *CachedEmbedder) Health(ctx context.Context) error {
	return c.inner.Health(ctx)
}

// Model passes through to the inner embedder.
func (c *CachedEmbedder) Model() string {
	return c.inner.Model()
}

// Stats returns cache hits and misses since creation.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

package embed

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder is a test double that counts calls.
type countingEmbedder struct {
	calls atomic.Int64
	fail  bool
}

func (m *countingEmbedder) Health(context.Context) error { return nil }

func (m *countingEmbedder) Model() string { return "mock-model" }

func (m *countingEmbedder) Embed(_ context.Context, text string) (Result, error) {
	m.calls.Add(1)
	if m.fail {
		return Result{}, fmt.Errorf("embed failed")
	}
	return Result{Vector: []float32{float32(len(text)), 1}}, nil
}

func TestCachedEmbedder_HitSkipsInner(t *testing.T) {
	// Given: a cache over a counting embedder
	inner := &countingEmbedder{}
	c, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	// When: the same text is embedded twice
	first, err := c.Embed(context.Background(), "<header>same</header>")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "<header>same</header>")
	require.NoError(t, err)

	// Then: one inner call, second result marked cached
	assert.Equal(t, int64(1), inner.calls.Load())
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Vector, second.Vector)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachedEmbedder_DistinctTexts(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	_, _ = c.Embed(context.Background(), "a")
	_, _ = c.Embed(context.Background(), "b")

	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedEmbedder_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{fail: true}
	c, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "x")
	assert.Error(t, err)
	_, err = c.Embed(context.Background(), "x")
	assert.Error(t, err)

	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedEmbedder_Eviction(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCachedEmbedder(inner, 1)
	require.NoError(t, err)

	_, _ = c.Embed(context.Background(), "a")
	_, _ = c.Embed(context.Background(), "b")
	_, _ = c.Embed(context.Background(), "a")

	assert.Equal(t, int64(3), inner.calls.Load())
	assert.Equal(t, "mock-model", c.Model())
	assert.NoError(t, c.Health(context.Background()))
}

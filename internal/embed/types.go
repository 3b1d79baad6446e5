// Package embed turns chunk text into vectors through a local Ollama server.
package embed

import (
	"context"
	"math"
	"time"
)

// Embedding defaults for a Pi-class host running Ollama on CPU.
const (
	// DefaultTimeout bounds one embedding request. CPU inference of a
	// large chunk with a cold model takes minutes.
	DefaultTimeout = 600 * time.Second

	// DefaultHealthTimeout bounds the startup reachability check.
	DefaultHealthTimeout = 5 * time.Second

	// DefaultMaxInputChars truncates embedding input, in runes.
	DefaultMaxInputChars = 30000

	// DefaultMaxAttempts is the number of tries per text, including the first.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the wait before the first retry; it doubles after.
	DefaultRetryDelay = 1 * time.Second

	// DefaultCacheSize is the number of embeddings memoized per process.
	DefaultCacheSize = 2048
)

// Result is one embedding.
type Result struct {
	Vector   []float32
	Duration time.Duration // Wall time of the request, zero when cached
	Cached   bool
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Health checks that the service is reachable and the model installed.
	Health(ctx context.Context) error

	// Embed returns the embedding for one text.
	Embed(ctx context.Context, text string) (Result, error)

	// Model returns the model identifier.
	Model() string
}

// normalizeVector scales v to unit length. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// truncateRunes cuts s to at most n runes. n <= 0 disables truncation.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Package embed generates vector embeddings for chunk and query text.
package embed

import (
	"context"
	"math"
)

// Embedding shape and batching constants.
const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize caps batch size to bound memory use.
	MaxBatchSize = 256

	// DefaultBatchSize is used when config doesn't specify one.
	DefaultBatchSize = 32

	// DefaultDimensions is the dimension used when a provider doesn't
	// report one and auto-detection fails.
	DefaultDimensions = 768

	// StaticDimensions is the fixed output size of StaticEmbedder.
	StaticDimensions = 256

	// DefaultMaxRetries bounds transient-failure retries against a
	// remote embedding provider.
	DefaultMaxRetries = 3
)

// Embedder generates vector embeddings for text. Implementations
// normalize their output to unit length.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases resources held by the embedder.
	Close() error
}

// normalizeVector scales v to unit length; a zero vector is returned
// unchanged since it has no direction to normalize.
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

// Package embed defines the embedding-provider contract and the
// deterministic hash-based provider used for tests and offline operation.
//
// Provider internals (HTTP transports, retries, request batching) live
// outside this subsystem; backends only rely on the narrow EmbedTexts
// contract and normalize vectors themselves before any cosine math.
package embed

import (
	"context"
	"math"
)

// StaticDimensions is the embedding dimension for the hash embedder.
const StaticDimensions = 256

// Embedder maps text batches to fixed-dimension float vectors.
type Embedder interface {
	// EmbedTexts generates one vector per input text, in input order.
	// Empty input returns an empty matrix, never an error.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// NormalizeVector normalizes a vector to unit length in place and
// returns it. Zero vectors are returned unchanged.
func NormalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	for i, val := range v {
		v[i] = float32(float64(val) / magnitude)
	}
	return v
}

// Dot returns the dot product of two equal-length vectors. For
// L2-normalized inputs this is the cosine similarity.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

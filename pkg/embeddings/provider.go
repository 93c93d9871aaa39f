// Package embeddings defines the contract for the text-embedding collaborator
// and the cosine similarity used throughout the pipeline.
package embeddings

import (
	"context"
	"math"
)

// Provider is the abstraction over any text-embedding backend. All vectors
// returned by one Provider instance share the same dimensionality.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed computes the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in one provider call.
	// The i-th result corresponds to texts[i]; on error the whole slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector this provider produces.
	Dimensions() int

	// ModelID returns the provider-specific embedding model identifier.
	ModelID() string
}

// Cosine returns the cosine similarity of two vectors, in [-1, 1]. Vectors of
// mismatched or zero length yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// MaxCosine returns the highest cosine similarity between query and any of
// the candidate vectors, along with the winning index. With no candidates the
// index is -1.
func MaxCosine(query []float32, candidates [][]float32) (float64, int) {
	best := math.Inf(-1)
	bestIdx := -1
	for i, c := range candidates {
		if sim := Cosine(query, c); sim > best {
			best = sim
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return 0, -1
	}
	return best, bestIdx
}

// Package embedding provides the semantic similarity backend used by the
// NLP matching layer. The backend is injected and optional: when absent or
// failing, callers fall back to token-overlap similarity.
package embedding

import (
	"context"
	"fmt"
	"math"

	"ome/internal/logging"
)

// SimilarityBackend scores semantic similarity between two texts in [0,1].
type SimilarityBackend interface {
	// Similarity returns a score in [0,1]; 1 means semantically identical.
	Similarity(ctx context.Context, a, b string) (float64, error)

	// Name returns the backend name for provenance records.
	Name() string

	// Close releases backend resources.
	Close() error
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i] * b[i])
		aMag += float64(a[i] * a[i])
		bMag += float64(b[i] * b[i])
	}
	if aMag == 0 || bMag == 0 {
		logging.EmbeddingWarn("cosine similarity: zero magnitude vector")
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}

// ClampUnit clamps a cosine score into [0,1]. Negative similarity carries no
// signal for capability matching.
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

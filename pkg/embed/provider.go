// Package embed defines the Provider interface for text-embedding backends.
//
// Embeddings produced through this package are unit vectors: every provider
// must return L2-normalized output (or callers normalize via [Normalize]), so
// cosine similarity between two embeddings reduces to a dot product. Inputs
// longer than [MaxInputChars] are truncated before encoding.
//
// Implementors must be safe for concurrent use.
package embed

import (
	"context"
	"math"
)

// MaxInputChars is the maximum input length passed to the encoder. Longer
// texts are truncated; embedding quality degrades past this point anyway for
// the small sentence-transformer models this pipeline targets.
const MaxInputChars = 512

// DefaultDimensions is the vector dimension the pipeline uses by default
// (all-MiniLM-class models). The store bakes this into its vector columns.
const DefaultDimensions = 384

// Provider is the abstraction over any embedding backend.
type Provider interface {
	// Embed computes the unit embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes unit embedding vectors for a slice of texts.
	// result[i] corresponds to texts[i]. On any error, nil is returned;
	// partial results are not exposed. An empty texts slice returns (nil, nil)
	// without issuing any request.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length produced by this provider.
	Dimensions() int

	// ModelID returns the backend model identifier.
	ModelID() string
}

// Truncate caps text at MaxInputChars.
func Truncate(text string) string {
	if len(text) > MaxInputChars {
		return text[:MaxInputChars]
	}
	return text
}

// Normalize scales v in place to unit L2 norm and returns it. A zero vector
// is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Cosine returns the cosine similarity of a and b. For unit vectors this is
// exactly their dot product. Mismatched lengths yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

package rerank

import (
	"context"
	"fmt"
	"math"

	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

// EmbeddingReranker scores documents by cosine similarity of embeddings.
// It needs no extra service but costs one embedding call per turn.
type EmbeddingReranker struct {
	embedder interfaces.Embedder
}

func NewEmbeddingReranker(embedder interfaces.Embedder) *EmbeddingReranker {
	return &EmbeddingReranker{embedder: embedder}
}

func (r *EmbeddingReranker) ModelName() string {
	return "embedding:" + r.embedder.ModelName()
}

func (r *EmbeddingReranker) Rerank(ctx context.Context, query string, documents []string) ([]types.RankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	vecs, err := r.embedder.Embed(ctx, append([]string{query}, documents...))
	if err != nil {
		return nil, fmt.Errorf("failed to embed for rerank: %w", err)
	}
	if len(vecs) != len(documents)+1 {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(documents)+1, len(vecs))
	}
	out := make([]types.RankResult, len(documents))
	for i := range documents {
		out[i] = types.RankResult{Index: i, Score: Cosine(vecs[0], vecs[i+1])}
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b, 0 when either is empty
// or the lengths differ
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

// Package rerank scores retrieved segments against the live utterance.
package rerank

import (
	"fmt"
	"strings"
	"time"

	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

// Config selects the rerank provider
type Config struct {
	Provider          string
	BaseURL           string
	APIKey            string
	Model             string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// NewReranker returns nil for provider "none"; the selector then keeps
// retrieval scores
func NewReranker(cfg Config, embedder interfaces.Embedder) (interfaces.Reranker, error) {
	switch strings.ToLower(cfg.Provider) {
	case "none", "":
		return nil, nil
	case "voyage":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("voyage reranker requires an api key")
		}
		return NewVoyageReranker(cfg), nil
	case "embedding":
		if embedder == nil {
			return nil, fmt.Errorf("embedding reranker requires an embedder")
		}
		return NewEmbeddingReranker(embedder), nil
	default:
		return nil, fmt.Errorf("unsupported rerank provider: %s", cfg.Provider)
	}
}

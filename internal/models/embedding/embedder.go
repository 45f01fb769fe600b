// Package embedding provides text embedding clients.
package embedding

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

const defaultBatchSize = 64

// Config selects the provider and model
type Config struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
}

// NewEmbedder creates an embedder for the configured provider
func NewEmbedder(cfg Config) (interfaces.Embedder, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai", "openrouter", "":
		return NewOpenAIEmbedder(cfg), nil
	case "ollama":
		base := cfg.BaseURL
		if base == "" {
			base = "http://localhost:11434"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama base url: %w", err)
		}
		return NewOllamaEmbedder(api.NewClient(u, http.DefaultClient), cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

func batches(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

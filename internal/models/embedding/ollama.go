package embedding

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"

	"github.com/anishgillella/serene-sub003/internal/logger"
)

// OllamaEmbedder embeds with a local Ollama server
type OllamaEmbedder struct {
	client    *api.Client
	model     string
	batchSize int
}

func NewOllamaEmbedder(client *api.Client, cfg Config) *OllamaEmbedder {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &OllamaEmbedder{client: client, model: cfg.Model, batchSize: batch}
}

func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, b := range batches(len(texts), e.batchSize) {
		req := &api.EmbedRequest{
			Model: e.model,
			Input: texts[b[0]:b[1]],
		}
		resp, err := e.client.Embed(ctx, req)
		if err != nil {
			logger.Errorf(ctx, "[OllamaEmbedder] Embedding request failed: %v", err)
			return nil, fmt.Errorf("failed to embed with ollama: %w", err)
		}
		if len(resp.Embeddings) != b[1]-b[0] {
			return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", b[1]-b[0], len(resp.Embeddings))
		}
		out = append(out, resp.Embeddings...)
	}
	return out, nil
}

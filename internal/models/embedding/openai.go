package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/anishgillella/serene-sub003/internal/logger"
)

// OpenAIEmbedder calls an OpenAI compatible /embeddings endpoint
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
}

// NewOpenAIEmbedder creates an embedder; BaseURL switches to a compatible gateway
func NewOpenAIEmbedder(cfg Config) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  batch,
	}
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Embed returns one vector per text in input order
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for _, b := range batches(len(texts), e.batchSize) {
		req := openai.EmbeddingRequest{
			Input: texts[b[0]:b[1]],
			Model: openai.EmbeddingModel(e.model),
		}
		if e.dimensions > 0 {
			req.Dimensions = e.dimensions
		}
		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			logger.Errorf(ctx, "[OpenAIEmbedder] Embedding request failed: %v", err)
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(resp.Data) != b[1]-b[0] {
			return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", b[1]-b[0], len(resp.Data))
		}
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= b[1]-b[0] {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			out[b[0]+d.Index] = d.Embedding
		}
	}
	return out, nil
}

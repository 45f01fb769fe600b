package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
)

const defaultVoyageURL = "https://api.voyageai.com/v1"

// VoyageReranker calls the Voyage AI /rerank endpoint
type VoyageReranker struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	limiter *rate.Limiter
}

type voyageRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	// truncation lets the service cut documents past the model context
	Truncation bool `json:"truncation"`
}

type voyageResponse struct {
	Data []types.RankResult `json:"data"`
}

func NewVoyageReranker(cfg Config) *VoyageReranker {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultVoyageURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &VoyageReranker{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (r *VoyageReranker) ModelName() string {
	return r.model
}

func (r *VoyageReranker) Rerank(ctx context.Context, query string, documents []string) ([]types.RankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rerank rate limit: %w", err)
	}
	body, err := json.Marshal(voyageRequest{Query: query, Documents: documents, Model: r.model, Truncation: true})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out voyageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	valid := out.Data[:0]
	for _, rr := range out.Data {
		if rr.Index >= 0 && rr.Index < len(documents) {
			valid = append(valid, rr)
		}
	}
	logger.Debugf(ctx, "[VoyageReranker] Scored %d documents in %v", len(valid), time.Since(start))
	return valid, nil
}

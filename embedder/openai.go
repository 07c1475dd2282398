// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/kadirpekel/lodestone/httpx"
	"github.com/kadirpekel/lodestone/tokens"
)

// OpenAIEmbedder implements Embedder against an OpenAI-compatible
// embeddings endpoint.
type OpenAIEmbedder struct {
	client  *http.Client
	retryer *httpx.Retryer

	apiKey    string
	baseURL   string
	model     string
	dimension int

	batchTokenCap  int
	batchSizeCap   int
	interBatchWait time.Duration

	onBatch      func()
	onZeroVector func()
}

// OpenAIConfig configures the embedder.
type OpenAIConfig struct {
	// APIKey for the embeddings API (required).
	APIKey string

	// BaseURL of the API (default: https://api.openai.com/v1).
	BaseURL string

	// Model name (default: text-embedding-3-small).
	Model string

	// Dimension of the returned vectors (default: 1536).
	Dimension int

	// Timeout for one API request (default: 30s).
	Timeout time.Duration

	// BatchTokenCap bounds the estimated token total per request
	// (default: 8000).
	BatchTokenCap int

	// BatchSizeCap bounds the item count per request (default: 16).
	BatchSizeCap int

	// InterBatchWait spaces consecutive requests apart (default: 100ms).
	InterBatchWait time.Duration

	// Retry overrides the shared retry defaults.
	Retry httpx.RetryConfig

	// OnBatch is called once per API request, if set.
	OnBatch func()

	// OnZeroVector is called for each item that falls back to the zero
	// vector, if set.
	OnZeroVector func()
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewOpenAIEmbedder creates a new embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI embedder")
	}

	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchTokenCap <= 0 {
		cfg.BatchTokenCap = 8000
	}
	if cfg.BatchSizeCap <= 0 {
		cfg.BatchSizeCap = 16
	}
	if cfg.InterBatchWait <= 0 {
		cfg.InterBatchWait = 100 * time.Millisecond
	}

	return &OpenAIEmbedder{
		client:         &http.Client{Timeout: cfg.Timeout},
		retryer:        httpx.NewRetryer(cfg.Retry),
		apiKey:         cfg.APIKey,
		baseURL:        cfg.BaseURL,
		model:          cfg.Model,
		dimension:      cfg.Dimension,
		batchTokenCap:  cfg.BatchTokenCap,
		batchSizeCap:   cfg.BatchSizeCap,
		interBatchWait: cfg.InterBatchWait,
		onBatch:        cfg.OnBatch,
		onZeroVector:   cfg.OnZeroVector,
	}, nil
}

// Embed converts one text to a vector. Failure yields the zero vector.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) []float32 {
	return e.EmbedBatch(ctx, []string{text})[0]
}

// EmbedBatch converts texts to vectors, one per input, in input order.
//
// Batch boundaries fall whenever the estimated token total would exceed the
// cap or the batch hits the provider's item cap. Oversized single texts are
// truncated to the token cap before embedding. Failed batches are resolved
// item by item; items that still fail become zero vectors so downstream
// length contracts hold.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	results := make([][]float32, 0, len(texts))
	if len(texts) == 0 {
		return results
	}

	for _, batch := range e.splitBatches(texts) {
		if len(results) > 0 {
			// Space batches out so retries against a rate-limited
			// provider do not cluster.
			select {
			case <-ctx.Done():
			case <-time.After(e.interBatchWait):
			}
		}
		results = append(results, e.embedOneBatch(ctx, batch)...)
	}

	return results
}

// Dimension returns the configured vector dimension.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

func (e *OpenAIEmbedder) splitBatches(texts []string) [][]string {
	var batches [][]string
	var current []string
	currentTokens := 0

	for _, text := range texts {
		cost := tokens.Estimate(text)
		if cost > e.batchTokenCap {
			// Truncate the oversized item in place; chars/4 inverts to
			// four chars per token.
			text = truncateBytes(text, e.batchTokenCap*4)
			cost = e.batchTokenCap
		}

		if len(current) > 0 && (currentTokens+cost > e.batchTokenCap || len(current) >= e.batchSizeCap) {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, text)
		currentTokens += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// truncateBytes cuts text to at most n bytes without splitting a rune.
func truncateBytes(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}

func (e *OpenAIEmbedder) embedOneBatch(ctx context.Context, batch []string) [][]float32 {
	vectors, err := e.requestWithRetry(ctx, batch)
	if err == nil {
		return vectors
	}

	slog.Warn("Batch embedding failed after retries, falling back to per-item requests",
		"batch_size", len(batch), "error", err)

	// Per-item fallback: isolate the poisoned item(s).
	out := make([][]float32, len(batch))
	for i, text := range batch {
		single, err := e.requestWithRetry(ctx, []string{text})
		if err != nil || len(single) != 1 {
			slog.Warn("Embedding failed for item, using zero vector", "error", err)
			if e.onZeroVector != nil {
				e.onZeroVector()
			}
			out[i] = ZeroVector(e.dimension)
			continue
		}
		out[i] = single[0]
	}
	return out
}

func (e *OpenAIEmbedder) requestWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32
	err := e.retryer.Do(ctx, "embed batch", func() error {
		var err error
		vectors, err = e.request(ctx, batch)
		return err
	})
	return vectors, err
}

func (e *OpenAIEmbedder) request(ctx context.Context, batch []string) ([][]float32, error) {
	if e.onBatch != nil {
		e.onBatch()
	}
	req := embedRequest{
		Model:      e.model,
		Input:      batch,
		Dimensions: &e.dimension,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("embeddings API error (status %d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("embeddings API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Data) != len(batch) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(parsed.Data), len(batch))
	}

	// Order by index to match input order.
	vectors := make([][]float32, len(batch))
	for _, item := range parsed.Data {
		if item.Index >= 0 && item.Index < len(vectors) {
			vectors[item.Index] = item.Embedding
		}
	}
	return vectors, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)

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

// Package rerank scores (query, document) pairs with a cross-encoder model
// served by a scoring sidecar. The model is loaded on first use; when it is
// unavailable every pair scores a neutral 0.5 so result ordering survives.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// NeutralScore is returned for every pair when the scorer is unavailable.
const NeutralScore = 0.5

// Pair is one (query, document) scoring input.
type Pair struct {
	Query    string `json:"query"`
	Document string `json:"document"`
}

// CrossEncoder scores pairs against an HTTP scoring service hosting the
// cross-encoder model.
//
// The first Predict call initializes the client: it probes the service,
// which loads the model and reports the device it selected (GPU when
// available, CPU otherwise). Initialization happens once per process.
type CrossEncoder struct {
	endpoint string
	model    string
	client   *http.Client

	once      sync.Once
	available bool
	device    string
}

// Config configures the cross-encoder client.
type Config struct {
	// Endpoint of the scoring service (required).
	Endpoint string

	// Model name the service should load
	// (default: cross-encoder/ms-marco-MiniLM-L-6-v2).
	Model string

	// Timeout for one scoring request (default: 30s).
	Timeout time.Duration
}

// NewCrossEncoder creates the client. No network traffic happens until the
// first Predict call.
func NewCrossEncoder(cfg Config) *CrossEncoder {
	if cfg.Model == "" {
		cfg.Model = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CrossEncoder{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Predict returns one relevance score per pair, in input order. Scores are
// NeutralScore for every pair when the model cannot be loaded or the
// request fails; Predict never returns an error.
func (ce *CrossEncoder) Predict(ctx context.Context, pairs []Pair) []float64 {
	scores := make([]float64, len(pairs))
	for i := range scores {
		scores[i] = NeutralScore
	}
	if len(pairs) == 0 {
		return scores
	}

	ce.once.Do(func() { ce.initialize(ctx) })
	if !ce.available {
		return scores
	}

	got, err := ce.score(ctx, pairs)
	if err != nil || len(got) != len(pairs) {
		slog.Warn("Cross-encoder scoring failed, using neutral scores", "error", err)
		return scores
	}
	return got
}

// Device reports which device the scorer selected ("" before first use).
func (ce *CrossEncoder) Device() string { return ce.device }

func (ce *CrossEncoder) initialize(ctx context.Context) {
	if ce.endpoint == "" {
		slog.Debug("Cross-encoder endpoint not configured")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ce.endpoint+"/health", nil)
	if err != nil {
		return
	}
	resp, err := ce.client.Do(req)
	if err != nil {
		slog.Warn("Cross-encoder unavailable, reranking will use neutral scores", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Cross-encoder health check failed", "status", resp.StatusCode)
		return
	}

	var health struct {
		Device string `json:"device"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err == nil {
		ce.device = health.Device
	}
	if ce.device == "" {
		ce.device = "cpu"
	}

	ce.available = true
	slog.Info("Cross-encoder model loaded", "model", ce.model, "device", ce.device)
}

func (ce *CrossEncoder) score(ctx context.Context, pairs []Pair) ([]float64, error) {
	payload := struct {
		Model string `json:"model"`
		Pairs []Pair `json:"pairs"`
	}{Model: ce.model, Pairs: pairs}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ce.endpoint+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ce.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scorer returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return parsed.Scores, nil
}

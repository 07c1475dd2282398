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

// Package embedder converts text to vectors through an OpenAI-compatible
// embeddings API with token-aware batching and degraded-success semantics:
// a batch that cannot be embedded after retries yields zero vectors for its
// items instead of failing the caller.
package embedder

import "context"

// Embedder is the contract the ingestion and retrieval pipelines depend on.
//
// EmbedBatch always returns exactly one vector per input text. Items that
// could not be embedded carry a zero vector of the configured dimension;
// callers that care can detect the sentinel with IsZero.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
	EmbedBatch(ctx context.Context, texts []string) [][]float32
	Dimension() int
}

// IsZero reports whether a vector is the all-zeros failure sentinel.
func IsZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return len(vec) > 0
}

// ZeroVector returns the failure sentinel for the given dimension.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

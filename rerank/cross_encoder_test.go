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

package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func fakeScorer(t *testing.T, scores []float64) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var healthCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		healthCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"device": "cuda"})
	})
	mux.HandleFunc("/score", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"scores": scores})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &healthCalls
}

func TestPredict(t *testing.T) {
	srv, _ := fakeScorer(t, []float64{0.9, 0.1})
	ce := NewCrossEncoder(Config{Endpoint: srv.URL})

	scores := ce.Predict(context.Background(), []Pair{
		{Query: "q", Document: "relevant"},
		{Query: "q", Document: "irrelevant"},
	})
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(scores))
	}
	if scores[0] != 0.9 || scores[1] != 0.1 {
		t.Errorf("scores = %v", scores)
	}
	if ce.Device() != "cuda" {
		t.Errorf("device = %q, want cuda", ce.Device())
	}
}

func TestPredict_LazySingleInit(t *testing.T) {
	srv, healthCalls := fakeScorer(t, []float64{0.5})
	ce := NewCrossEncoder(Config{Endpoint: srv.URL})

	if healthCalls.Load() != 0 {
		t.Fatal("construction must not touch the network")
	}

	pairs := []Pair{{Query: "q", Document: "d"}}
	ce.Predict(context.Background(), pairs)
	ce.Predict(context.Background(), pairs)
	ce.Predict(context.Background(), pairs)

	if healthCalls.Load() != 1 {
		t.Errorf("expected a single lazy initialization, got %d", healthCalls.Load())
	}
}

func TestPredict_NeutralOnUnavailable(t *testing.T) {
	ce := NewCrossEncoder(Config{Endpoint: "http://127.0.0.1:1"})

	scores := ce.Predict(context.Background(), []Pair{{Query: "q", Document: "a"}, {Query: "q", Document: "b"}})
	for i, s := range scores {
		if s != NeutralScore {
			t.Errorf("score %d = %v, want neutral %v", i, s, NeutralScore)
		}
	}
}

func TestPredict_NeutralOnNoEndpoint(t *testing.T) {
	ce := NewCrossEncoder(Config{})
	scores := ce.Predict(context.Background(), []Pair{{Query: "q", Document: "d"}})
	if scores[0] != NeutralScore {
		t.Errorf("score = %v, want %v", scores[0], NeutralScore)
	}
}

func TestPredict_EmptyPairs(t *testing.T) {
	srv, healthCalls := fakeScorer(t, nil)
	ce := NewCrossEncoder(Config{Endpoint: srv.URL})
	if got := ce.Predict(context.Background(), nil); len(got) != 0 {
		t.Errorf("expected no scores, got %v", got)
	}
	if healthCalls.Load() != 0 {
		t.Error("empty input should not trigger initialization")
	}
}

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

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kadirpekel/lodestone/httpx"
)

func fakeChatServer(t *testing.T, reply string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": reply}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: url,
		Retry: httpx.RetryConfig{
			MaxRetries:     1,
			BaseDelay:      time.Millisecond,
			RateLimitDelay: time.Millisecond,
			MaxDelay:       time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestComplete(t *testing.T) {
	srv := fakeChatServer(t, "hello there", http.StatusOK)
	c := newTestClient(t, srv.URL)

	out, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello there" {
		t.Errorf("got %q", out)
	}
}

func TestSourceSummary_Fallback(t *testing.T) {
	srv := fakeChatServer(t, "", http.StatusBadRequest)
	s := NewSummarizer(newTestClient(t, srv.URL))

	got := s.SourceSummary(context.Background(), "docs.example.com", "some content")
	if got != "Content from docs.example.com" {
		t.Errorf("expected deterministic placeholder, got %q", got)
	}
}

func TestSourceSummary_NilClient(t *testing.T) {
	s := NewSummarizer(nil)
	got := s.SourceSummary(context.Background(), "docs.example.com", "content")
	if got != "Content from docs.example.com" {
		t.Errorf("got %q", got)
	}
}

func TestCodeExampleSummary(t *testing.T) {
	srv := fakeChatServer(t, "Demonstrates opening a file.", http.StatusOK)
	s := NewSummarizer(newTestClient(t, srv.URL))

	got := s.CodeExampleSummary(context.Background(), "f = open('x')", "before", "after")
	if got != "Demonstrates opening a file." {
		t.Errorf("got %q", got)
	}
}

func TestChunkContext_EmptyFallback(t *testing.T) {
	srv := fakeChatServer(t, "", http.StatusInternalServerError)
	s := NewSummarizer(newTestClient(t, srv.URL))

	if got := s.ChunkContext(context.Background(), "doc", "chunk"); got != "" {
		t.Errorf("expected empty fallback, got %q", got)
	}
}

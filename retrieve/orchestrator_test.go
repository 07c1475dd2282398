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

package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kadirpekel/lodestone/graphstore"
	"github.com/kadirpekel/lodestone/llm"
	"github.com/kadirpekel/lodestone/rerank"
	"github.com/kadirpekel/lodestone/vectorstore"
)

type fakeSearcher struct {
	vector  []vectorstore.Row
	keyword []vectorstore.Row
	code    []vectorstore.Row
}

func (f *fakeSearcher) SearchDocuments(ctx context.Context, query string, matchCount int, sourceID string) ([]vectorstore.Row, error) {
	return f.vector, nil
}

func (f *fakeSearcher) SearchCodeExamples(ctx context.Context, query string, matchCount int, sourceID string) ([]vectorstore.Row, error) {
	return f.code, nil
}

func (f *fakeSearcher) KeywordDocuments(ctx context.Context, query string, limit int, sourceID string) ([]vectorstore.Row, error) {
	return f.keyword, nil
}

func (f *fakeSearcher) KeywordCodeExamples(ctx context.Context, query string, limit int, sourceID string) ([]vectorstore.Row, error) {
	return nil, nil
}

type fakeReranker struct {
	scores map[string]float64
}

func (f *fakeReranker) Predict(ctx context.Context, pairs []rerank.Pair) []float64 {
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = f.scores[p.Document]
	}
	return out
}

type fakeEnricher struct {
	enrichment *graphstore.Enrichment
	gotIDs     []string
}

func (f *fakeEnricher) EnrichDocuments(ctx context.Context, ids []string, maxEntities int) (*graphstore.Enrichment, error) {
	f.gotIDs = ids
	return f.enrichment, nil
}

func row(id, url, content string, similarity float64) vectorstore.Row {
	return vectorstore.Row{ID: id, URL: url, Content: content, Similarity: similarity, Metadata: map[string]any{}}
}

func TestMergeHybrid(t *testing.T) {
	vector := []vectorstore.Row{
		row("a", "u/a", "A", 0.9),
		row("b", "u/b", "B", 0.7),
		row("c", "u/c", "C", 0.6),
	}
	keyword := []vectorstore.Row{
		row("b", "u/b", "B", 0),
		row("d", "u/d", "D", 0),
	}

	merged := MergeHybrid(vector, keyword, 10)
	if len(merged) != 4 {
		t.Fatalf("got %d rows, want 4", len(merged))
	}

	// Both-sets row first, boosted.
	if merged[0].ID != "b" {
		t.Errorf("first = %s, want boosted b", merged[0].ID)
	}
	if diff := merged[0].Similarity - 0.84; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("boosted similarity = %v, want 0.84", merged[0].Similarity)
	}

	// Vector-only rows preserve order.
	if merged[1].ID != "a" || merged[2].ID != "c" {
		t.Errorf("vector rows out of order: %s, %s", merged[1].ID, merged[2].ID)
	}

	// Keyword-only rows pad at 0.5.
	if merged[3].ID != "d" || merged[3].Similarity != 0.5 {
		t.Errorf("keyword row = %s sim %v, want d at 0.5", merged[3].ID, merged[3].Similarity)
	}
}

func TestMergeHybrid_BoostCapped(t *testing.T) {
	merged := MergeHybrid(
		[]vectorstore.Row{row("a", "u", "A", 0.95)},
		[]vectorstore.Row{row("a", "u", "A", 0)},
		10)
	if merged[0].Similarity != 1.0 {
		t.Errorf("similarity = %v, want capped 1.0", merged[0].Similarity)
	}
}

func TestMergeHybrid_StopsAtLimit(t *testing.T) {
	var vector []vectorstore.Row
	for i := 0; i < 10; i++ {
		vector = append(vector, row(fmt.Sprintf("v%d", i), "u", "x", 0.9))
	}
	merged := MergeHybrid(vector, nil, 3)
	if len(merged) != 3 {
		t.Errorf("got %d rows, want 3", len(merged))
	}
}

func TestRAGQuery_VectorMode(t *testing.T) {
	store := &fakeSearcher{vector: []vectorstore.Row{
		row("a", "u/a", "alpha content", 0.9),
		row("b", "u/b", "beta content", 0.8),
	}}
	o, err := New(Config{Store: store})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := o.RAGQuery(context.Background(), Request{Query: "q", IncludeFullContent: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.SearchMode != "vector" {
		t.Errorf("mode = %q", resp.SearchMode)
	}
	if resp.RerankingApplied {
		t.Error("reranking must be off by default")
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
	if resp.Pagination.HasMore {
		t.Error("has_more should be false")
	}
}

func TestRAGQuery_Pagination(t *testing.T) {
	var rows []vectorstore.Row
	for i := 0; i < 8; i++ {
		rows = append(rows, row(fmt.Sprintf("r%d", i), "u", "content", 0.9))
	}
	o, _ := New(Config{Store: &fakeSearcher{vector: rows}})

	resp, err := o.RAGQuery(context.Background(), Request{Query: "q", MatchCount: 3, Offset: 3, IncludeFullContent: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Count != 3 {
		t.Errorf("count = %d, want 3", resp.Count)
	}
	if !resp.Pagination.HasMore {
		t.Error("has_more should be true with 8 rows and offset 3 count 3")
	}
	if resp.Pagination.Offset != 3 || resp.Pagination.RequestedCount != 3 {
		t.Errorf("pagination = %+v", resp.Pagination)
	}
}

func TestRAGQuery_RerankOrderIsAuthoritative(t *testing.T) {
	store := &fakeSearcher{vector: []vectorstore.Row{
		row("a", "u/a", "weak match", 0.9),
		row("b", "u/b", "strong match", 0.6),
	}}
	o, _ := New(Config{
		Store:    store,
		Reranker: &fakeReranker{scores: map[string]float64{"weak match": 0.2, "strong match": 0.95}},
		Rerank:   true,
	})

	resp, err := o.RAGQuery(context.Background(), Request{Query: "q", IncludeFullContent: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.RerankingApplied {
		t.Fatal("reranking_applied should be true")
	}
	if resp.Results[0]["content"] != "strong match" {
		t.Errorf("first result = %v, want the higher rerank score", resp.Results[0]["content"])
	}
	if resp.Results[0]["rerank_score"] != 0.95 {
		t.Errorf("rerank_score = %v", resp.Results[0]["rerank_score"])
	}
}

func TestRAGQuery_HybridMode(t *testing.T) {
	store := &fakeSearcher{
		vector:  []vectorstore.Row{row("a", "u/a", "A", 0.9)},
		keyword: []vectorstore.Row{row("k", "u/k", "K", 0)},
	}
	o, _ := New(Config{Store: store, Hybrid: true})

	resp, err := o.RAGQuery(context.Background(), Request{Query: "q", IncludeFullContent: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.SearchMode != "hybrid" {
		t.Errorf("mode = %q", resp.SearchMode)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want vector + keyword rows", resp.Count)
	}
}

func fakeLLM(t *testing.T, answer string) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": answer}}},
		})
	}))
	t.Cleanup(srv.Close)
	client, err := llm.NewClient(llm.Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("failed to create llm client: %v", err)
	}
	return client
}

func TestGraphRAGQuery_EnrichmentUsed(t *testing.T) {
	store := &fakeSearcher{vector: []vectorstore.Row{
		{ID: "a", URL: "u/a", Content: "doc", Similarity: 0.9, Metadata: map[string]any{"document_id": "abc123"}},
	}}
	enricher := &fakeEnricher{enrichment: &graphstore.Enrichment{
		Entities: []graphstore.EnrichedEntity{{Name: "Go", Type: "Technology", MentionCount: 3}},
		Block:    "## Knowledge Graph Context\n- Go",
	}}
	o, _ := New(Config{Store: store, Graph: enricher, LLM: fakeLLM(t, "the answer")})

	resp, err := o.GraphRAGQuery(context.Background(), GraphRequest{
		Request:            Request{Query: "q"},
		UseGraphEnrichment: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.GraphEnrichmentUsed {
		t.Error("graph_enrichment_used should be true")
	}
	if len(enricher.gotIDs) != 1 || enricher.gotIDs[0] != "abc123" {
		t.Errorf("enricher got ids %v", enricher.gotIDs)
	}
	if resp.Answer != "the answer" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.GraphEnrichment["entities_found"] != 1 {
		t.Errorf("graph_enrichment = %v", resp.GraphEnrichment)
	}
}

func TestGraphRAGQuery_NoDocumentIDs(t *testing.T) {
	store := &fakeSearcher{vector: []vectorstore.Row{
		row("a", "u/a", "doc without graph metadata", 0.9),
	}}
	enricher := &fakeEnricher{}
	o, _ := New(Config{Store: store, Graph: enricher, LLM: fakeLLM(t, "still an answer")})

	resp, err := o.GraphRAGQuery(context.Background(), GraphRequest{
		Request:            Request{Query: "q"},
		UseGraphEnrichment: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.GraphEnrichmentUsed {
		t.Error("enrichment must be off without document ids")
	}
	if len(resp.Warnings) == 0 {
		t.Error("expected a warning advising re-ingest")
	}
	if resp.Answer != "still an answer" {
		t.Errorf("answer = %q, answer must still be produced", resp.Answer)
	}
	if enricher.gotIDs != nil {
		t.Error("enricher must not be called without document ids")
	}
}

func TestGraphRAGQuery_RequiresLLM(t *testing.T) {
	o, _ := New(Config{Store: &fakeSearcher{}})
	if _, err := o.GraphRAGQuery(context.Background(), GraphRequest{Request: Request{Query: "q"}}); err == nil {
		t.Fatal("expected error without an LLM client")
	}
}

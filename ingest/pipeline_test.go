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

package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/kadirpekel/lodestone/chunk"
	"github.com/kadirpekel/lodestone/crawl"
	"github.com/kadirpekel/lodestone/extract"
	"github.com/kadirpekel/lodestone/graphstore"
	"github.com/kadirpekel/lodestone/vectorstore"
)

type fakeStore struct {
	ops     []string
	docReq  vectorstore.ReplaceDocumentsRequest
	codeReq vectorstore.ReplaceCodeExamplesRequest
	sources map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sources: map[string]int{}}
}

func (f *fakeStore) UpsertSource(ctx context.Context, sourceID, summary string, totalWords int) error {
	f.ops = append(f.ops, "source:"+sourceID)
	f.sources[sourceID] += totalWords
	return nil
}

func (f *fakeStore) ReplaceDocuments(ctx context.Context, req vectorstore.ReplaceDocumentsRequest) (int, error) {
	f.ops = append(f.ops, "documents")
	f.docReq = req
	return len(req.Chunks), nil
}

func (f *fakeStore) ReplaceCodeExamples(ctx context.Context, req vectorstore.ReplaceCodeExamplesRequest) (int, error) {
	f.ops = append(f.ops, "code")
	f.codeReq = req
	return len(req.Codes), nil
}

type fakeGraph struct {
	documents     []graphstore.Document
	entities      int
	relationships int
}

func (f *fakeGraph) StoreDocument(ctx context.Context, doc graphstore.Document) bool {
	f.documents = append(f.documents, doc)
	return true
}

func (f *fakeGraph) StoreEntities(ctx context.Context, documentID string, entities []graphstore.Entity) int {
	f.entities += len(entities)
	return len(entities)
}

func (f *fakeGraph) StoreRelationships(ctx context.Context, rels []graphstore.Relationship) int {
	f.relationships += len(rels)
	return len(rels)
}

type fakeExtractor struct{}

func (fakeExtractor) ExtractDocument(ctx context.Context, chunks []string) extract.Result {
	return extract.Result{
		Entities:      []graphstore.Entity{{Type: "Technology", Name: "Go", Mentions: 2}},
		Relationships: []graphstore.Relationship{{FromEntity: "Go", ToEntity: "Concurrency", RelationshipType: "ENABLES"}},
	}
}

func newPipeline(t *testing.T, store VectorStore, graph GraphStore, extractor Entitizer) *Pipeline {
	t.Helper()
	p, err := New(Config{
		Store:     store,
		Graph:     graph,
		Extractor: extractor,
		Chunker:   chunk.NewChunker(5000),
	})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	return p
}

func TestIngest_SourcesBeforeChunks(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(t, store, nil, nil)

	stats, err := p.Ingest(context.Background(), []crawl.Document{
		{URL: "https://example.com/a", Markdown: "hello world content"},
	}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.ChunksStored != 1 || stats.SourcesUpdated != 1 {
		t.Errorf("stats = %+v", stats)
	}

	var sourceIdx, docIdx int = -1, -1
	for i, op := range store.ops {
		if strings.HasPrefix(op, "source:") {
			sourceIdx = i
		}
		if op == "documents" {
			docIdx = i
		}
	}
	if sourceIdx == -1 || docIdx == -1 || sourceIdx > docIdx {
		t.Errorf("sources must be upserted before chunks: ops = %v", store.ops)
	}
}

func TestIngest_ChunkMetadata(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(t, store, nil, nil)

	_, err := p.Ingest(context.Background(), []crawl.Document{
		{URL: "https://example.com/a", Markdown: "content"},
	}, Options{Metadata: map[string]any{"crawl_type": "single"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	meta := store.docReq.Metadatas[0]
	if meta["source"] != "example.com" {
		t.Errorf("source = %v", meta["source"])
	}
	if meta["crawl_type"] != "single" {
		t.Errorf("extra metadata missing: %v", meta)
	}
	if _, ok := meta["document_id"]; ok {
		t.Error("document_id must only be set on the graph path")
	}
	if store.docReq.FullDocuments["https://example.com/a"] != "content" {
		t.Error("full document missing for contextual embedding")
	}
}

func TestIngest_WordCountsAggregatePerSource(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(t, store, nil, nil)

	_, err := p.Ingest(context.Background(), []crawl.Document{
		{URL: "https://example.com/a", Markdown: "one two three"},
		{URL: "https://example.com/b", Markdown: "four five"},
	}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.sources["example.com"] != 5 {
		t.Errorf("word count = %d, want 5", store.sources["example.com"])
	}
}

func TestIngest_GraphPath(t *testing.T) {
	store := newFakeStore()
	graph := &fakeGraph{}
	p := newPipeline(t, store, graph, fakeExtractor{})

	stats, err := p.Ingest(context.Background(), []crawl.Document{
		{URL: "https://example.com/a", Markdown: "Go makes concurrency simple."},
	}, Options{ExtractEntities: true, ExtractRelationships: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.DocumentsStored != 1 || stats.EntitiesStored != 1 || stats.RelationshipsStored != 1 {
		t.Errorf("stats = %+v", stats)
	}

	meta := store.docReq.Metadatas[0]
	docID, ok := meta["document_id"].(string)
	if !ok || len(docID) != 32 {
		t.Fatalf("document_id = %v, want 32-char hash", meta["document_id"])
	}
	if graph.documents[0].ID != docID {
		t.Error("chunk metadata document_id must match the graph document node id")
	}
}

func TestIngest_EntitiesWithoutRelationships(t *testing.T) {
	store := newFakeStore()
	graph := &fakeGraph{}
	p := newPipeline(t, store, graph, fakeExtractor{})

	stats, err := p.Ingest(context.Background(), []crawl.Document{
		{URL: "https://example.com/a", Markdown: "content"},
	}, Options{ExtractEntities: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.RelationshipsStored != 0 {
		t.Errorf("relationships stored = %d, want 0", stats.RelationshipsStored)
	}
	if stats.EntitiesStored != 1 {
		t.Errorf("entities stored = %d, want 1", stats.EntitiesStored)
	}
}

func TestIngest_CodeExamples(t *testing.T) {
	store := newFakeStore()
	p, err := New(Config{
		Store:              store,
		Chunker:            chunk.NewChunker(5000),
		MinCodeBlockLength: 10,
	})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	markdown := "Intro text.\n\n```go\nfunc main() { fmt.Println(\"hello\") }\n```\n\nOutro."
	stats, err := p.Ingest(context.Background(), []crawl.Document{
		{URL: "https://example.com/a", Markdown: markdown},
	}, Options{ExtractCode: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.CodeExamplesStored != 1 {
		t.Fatalf("code examples stored = %d, want 1", stats.CodeExamplesStored)
	}
	if store.codeReq.Metadatas[0]["language"] != "go" {
		t.Errorf("language = %v", store.codeReq.Metadatas[0]["language"])
	}
	if store.codeReq.Summaries[0] == "" {
		t.Error("summary must have a fallback without an LLM")
	}
}

func TestIngest_PerRunChunkSize(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(t, store, nil, nil) // configured at 5000

	text := strings.Repeat("word ", 400) // 2000 chars, one chunk at 5000
	_, err := p.Ingest(context.Background(), []crawl.Document{
		{URL: "https://example.com/a", Markdown: text},
	}, Options{ChunkSize: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.docReq.Chunks) < 2 {
		t.Errorf("chunk size override ignored: got %d chunks", len(store.docReq.Chunks))
	}
	for i, c := range store.docReq.Chunks {
		if len(c) > 500 {
			t.Errorf("chunk %d has %d chars, over the per-run size", i, len(c))
		}
	}
}

func TestIngest_Empty(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(t, store, nil, nil)
	stats, err := p.Ingest(context.Background(), nil, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats != (Stats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

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

// Package ingest turns crawled documents into stored chunks, code
// examples, and graph nodes. Sources are always upserted before any chunk
// referencing them is inserted.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/lodestone/chunk"
	"github.com/kadirpekel/lodestone/crawl"
	"github.com/kadirpekel/lodestone/extract"
	"github.com/kadirpekel/lodestone/graphstore"
	"github.com/kadirpekel/lodestone/observability"
	"github.com/kadirpekel/lodestone/urlutil"
	"github.com/kadirpekel/lodestone/vectorstore"
)

// DefaultMinCodeBlockLength filters trivial snippets from code extraction.
const DefaultMinCodeBlockLength = 1000

// DefaultSummaryWorkers bounds concurrent code example summarizations.
const DefaultSummaryWorkers = 10

// VectorStore is the chunk and code example sink.
type VectorStore interface {
	UpsertSource(ctx context.Context, sourceID, summary string, totalWords int) error
	ReplaceDocuments(ctx context.Context, req vectorstore.ReplaceDocumentsRequest) (int, error)
	ReplaceCodeExamples(ctx context.Context, req vectorstore.ReplaceCodeExamplesRequest) (int, error)
}

// GraphStore is the knowledge graph sink.
type GraphStore interface {
	StoreDocument(ctx context.Context, doc graphstore.Document) bool
	StoreEntities(ctx context.Context, documentID string, entities []graphstore.Entity) int
	StoreRelationships(ctx context.Context, relationships []graphstore.Relationship) int
}

// Summarizer produces source and code example summaries.
type Summarizer interface {
	SourceSummary(ctx context.Context, sourceID, content string) string
	CodeExampleSummary(ctx context.Context, code, before, after string) string
}

// Entitizer extracts graph entities from document chunks.
type Entitizer interface {
	ExtractDocument(ctx context.Context, chunks []string) extract.Result
}

// Pipeline coordinates one ingest.
type Pipeline struct {
	store      VectorStore
	graph      GraphStore
	summarizer Summarizer
	extractor  Entitizer
	chunker    *chunk.Chunker

	minCodeBlockLength int
	summaryWorkers     int
}

// Config configures the pipeline. Graph and Extractor may be nil when the
// graph path is disabled; Summarizer may be nil when no LLM is configured.
type Config struct {
	Store      VectorStore
	Graph      GraphStore
	Summarizer Summarizer
	Extractor  Entitizer
	Chunker    *chunk.Chunker

	// MinCodeBlockLength filters code blocks (default: 1000).
	MinCodeBlockLength int

	// SummaryWorkers bounds concurrent summarizations (default: 10).
	SummaryWorkers int
}

// Options select the paths for one ingest run.
type Options struct {
	// ExtractCode stores fenced code blocks as searchable code examples.
	ExtractCode bool

	// ExtractEntities writes documents and entities to the graph.
	ExtractEntities bool

	// ExtractRelationships additionally writes typed entity edges.
	// Implies ExtractEntities.
	ExtractRelationships bool

	// ChunkSize overrides the pipeline's chunk size for this run when
	// positive.
	ChunkSize int

	// Extra metadata merged into every chunk's metadata.
	Metadata map[string]any
}

// Stats aggregates one ingest run.
type Stats struct {
	ChunksStored        int `json:"chunks_stored"`
	CodeExamplesStored  int `json:"code_examples_stored"`
	SourcesUpdated      int `json:"sources_updated"`
	DocumentsStored     int `json:"graph_documents_stored"`
	EntitiesStored      int `json:"entities_stored"`
	RelationshipsStored int `json:"relationships_stored"`
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if cfg.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if cfg.MinCodeBlockLength <= 0 {
		cfg.MinCodeBlockLength = DefaultMinCodeBlockLength
	}
	if cfg.SummaryWorkers <= 0 {
		cfg.SummaryWorkers = DefaultSummaryWorkers
	}
	return &Pipeline{
		store:              cfg.Store,
		graph:              cfg.Graph,
		summarizer:         cfg.Summarizer,
		extractor:          cfg.Extractor,
		chunker:            cfg.Chunker,
		minCodeBlockLength: cfg.MinCodeBlockLength,
		summaryWorkers:     cfg.SummaryWorkers,
	}, nil
}

// Ingest stores the crawled documents. Order per the storage contract:
// sources first, then chunks, then the optional code and graph paths.
func (p *Pipeline) Ingest(ctx context.Context, docs []crawl.Document, opts Options) (Stats, error) {
	var stats Stats
	if len(docs) == 0 {
		return stats, nil
	}

	ctx, span := observability.GetTracer("lodestone.ingest").Start(ctx, "ingest",
		trace.WithAttributes(attribute.Int("documents", len(docs))))
	defer span.End()

	chunked := p.chunkDocuments(docs, p.chunkerFor(opts))

	updated, err := p.upsertSources(ctx, docs)
	if err != nil {
		return stats, err
	}
	stats.SourcesUpdated = updated

	useGraph := p.graph != nil && p.extractor != nil && (opts.ExtractEntities || opts.ExtractRelationships)

	req := vectorstore.ReplaceDocumentsRequest{FullDocuments: map[string]string{}}
	for _, cd := range chunked {
		documentID := urlutil.DocumentID(cd.doc.URL)
		req.FullDocuments[cd.doc.URL] = cd.doc.Markdown
		for _, c := range cd.chunks {
			meta := map[string]any{"source": urlutil.SourceID(cd.doc.URL)}
			for k, v := range opts.Metadata {
				meta[k] = v
			}
			if useGraph {
				meta["document_id"] = documentID
			}
			req.URLs = append(req.URLs, cd.doc.URL)
			req.Chunks = append(req.Chunks, c)
			req.Metadatas = append(req.Metadatas, meta)
		}
	}

	stored, err := p.store.ReplaceDocuments(ctx, req)
	if err != nil {
		return stats, fmt.Errorf("failed to store document chunks: %w", err)
	}
	stats.ChunksStored = stored

	if opts.ExtractCode {
		stats.CodeExamplesStored = p.ingestCodeExamples(ctx, docs)
	}
	if useGraph {
		p.ingestGraph(ctx, chunked, opts, &stats)
	}
	return stats, nil
}

type chunkedDoc struct {
	doc    crawl.Document
	chunks []string
}

func (p *Pipeline) chunkDocuments(docs []crawl.Document, chunker *chunk.Chunker) []chunkedDoc {
	out := make([]chunkedDoc, 0, len(docs))
	for _, doc := range docs {
		out = append(out, chunkedDoc{doc: doc, chunks: chunker.Split(doc.Markdown)})
	}
	return out
}

func (p *Pipeline) chunkerFor(opts Options) *chunk.Chunker {
	if opts.ChunkSize > 0 && opts.ChunkSize != p.chunker.Size() {
		return chunk.NewChunker(opts.ChunkSize)
	}
	return p.chunker
}

// upsertSources aggregates word counts per source and upserts each source
// once, with an LLM summary of its longest document.
func (p *Pipeline) upsertSources(ctx context.Context, docs []crawl.Document) (int, error) {
	words := map[string]int{}
	sample := map[string]string{}
	for _, doc := range docs {
		sourceID := urlutil.SourceID(doc.URL)
		if sourceID == "" {
			continue
		}
		words[sourceID] += crawl.WordCount(doc.Markdown)
		if len(doc.Markdown) > len(sample[sourceID]) {
			sample[sourceID] = doc.Markdown
		}
	}

	updated := 0
	for sourceID, count := range words {
		summary := "Content from " + sourceID
		if p.summarizer != nil {
			summary = p.summarizer.SourceSummary(ctx, sourceID, sample[sourceID])
		}
		if err := p.store.UpsertSource(ctx, sourceID, summary, count); err != nil {
			return updated, fmt.Errorf("failed to upsert source %s: %w", sourceID, err)
		}
		updated++
	}
	return updated, nil
}

// ingestCodeExamples extracts fenced code blocks and stores them with
// generated summaries. Summarization fans out over a bounded worker pool.
func (p *Pipeline) ingestCodeExamples(ctx context.Context, docs []crawl.Document) int {
	type item struct {
		url   string
		block chunk.CodeBlock
	}
	var items []item
	for _, doc := range docs {
		for _, block := range chunk.ExtractCodeBlocks(doc.Markdown, p.minCodeBlockLength) {
			items = append(items, item{url: doc.URL, block: block})
		}
	}
	if len(items) == 0 {
		return 0
	}

	summaries := make([]string, len(items))
	sem := make(chan struct{}, p.summaryWorkers)
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() { wg.Done(); <-sem }()
			it := items[i]
			if p.summarizer != nil {
				summaries[i] = p.summarizer.CodeExampleSummary(ctx, it.block.Code, it.block.ContextBefore, it.block.ContextAfter)
			} else {
				summaries[i] = "Code example for demonstration purposes."
			}
		}()
	}
	wg.Wait()

	req := vectorstore.ReplaceCodeExamplesRequest{}
	for i, it := range items {
		req.URLs = append(req.URLs, it.url)
		req.Codes = append(req.Codes, it.block.Code)
		req.Summaries = append(req.Summaries, summaries[i])
		req.Metadatas = append(req.Metadatas, map[string]any{
			"source":   urlutil.SourceID(it.url),
			"language": it.block.Language,
		})
	}

	stored, err := p.store.ReplaceCodeExamples(ctx, req)
	if err != nil {
		slog.Warn("Failed to store code examples", "error", err)
		return 0
	}
	return stored
}

// ingestGraph writes documents, entities, and optionally relationships.
// Graph failures never fail the ingest; counts reflect what stuck.
func (p *Pipeline) ingestGraph(ctx context.Context, chunked []chunkedDoc, opts Options, stats *Stats) {
	for _, cd := range chunked {
		documentID := urlutil.DocumentID(cd.doc.URL)

		ok := p.graph.StoreDocument(ctx, graphstore.Document{
			ID:       documentID,
			SourceID: urlutil.SourceID(cd.doc.URL),
			URL:      cd.doc.URL,
			Title:    cd.doc.Title,
		})
		if !ok {
			continue
		}
		stats.DocumentsStored++

		result := p.extractor.ExtractDocument(ctx, cd.chunks)
		stats.EntitiesStored += p.graph.StoreEntities(ctx, documentID, result.Entities)
		if opts.ExtractRelationships {
			stats.RelationshipsStored += p.graph.StoreRelationships(ctx, result.Relationships)
		}
	}
}

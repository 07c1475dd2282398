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

// Package retrieve composes vector search, keyword search, reranking,
// pagination, response size fitting, and optional graph enrichment into
// the two query entry points.
package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kadirpekel/lodestone/graphstore"
	"github.com/kadirpekel/lodestone/llm"
	"github.com/kadirpekel/lodestone/observability"
	"github.com/kadirpekel/lodestone/rerank"
	"github.com/kadirpekel/lodestone/sizer"
	"github.com/kadirpekel/lodestone/vectorstore"
)

// searchBuffer is fetched beyond offset+count so hybrid merge and rerank
// have headroom.
const searchBuffer = 10

// Searcher is the vector store surface retrieval needs.
type Searcher interface {
	SearchDocuments(ctx context.Context, query string, matchCount int, sourceID string) ([]vectorstore.Row, error)
	SearchCodeExamples(ctx context.Context, query string, matchCount int, sourceID string) ([]vectorstore.Row, error)
	KeywordDocuments(ctx context.Context, query string, limit int, sourceID string) ([]vectorstore.Row, error)
	KeywordCodeExamples(ctx context.Context, query string, limit int, sourceID string) ([]vectorstore.Row, error)
}

// Reranker scores (query, document) pairs.
type Reranker interface {
	Predict(ctx context.Context, pairs []rerank.Pair) []float64
}

// Enricher supplies graph context for documents.
type Enricher interface {
	EnrichDocuments(ctx context.Context, documentIDs []string, maxEntities int) (*graphstore.Enrichment, error)
}

// Orchestrator runs retrieval requests.
type Orchestrator struct {
	store    Searcher
	reranker Reranker
	graph    Enricher
	llm      *llm.Client

	hybrid       bool
	rerankScores bool
}

// Config configures the orchestrator. Reranker, Graph, and LLM may be nil
// when the corresponding features are disabled.
type Config struct {
	Store    Searcher
	Reranker Reranker
	Graph    Enricher
	LLM      *llm.Client

	// Hybrid merges keyword results into vector results.
	Hybrid bool

	// Rerank sorts merged results by cross-encoder score.
	Rerank bool
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("search store is required")
	}
	return &Orchestrator{
		store:        cfg.Store,
		reranker:     cfg.Reranker,
		graph:        cfg.Graph,
		llm:          cfg.LLM,
		hybrid:       cfg.Hybrid,
		rerankScores: cfg.Rerank && cfg.Reranker != nil,
	}, nil
}

// Request is one retrieval query.
type Request struct {
	Query        string
	SourceFilter string
	MatchCount   int
	Offset       int

	MaxContentLength   int
	IncludeFullContent bool
	MaxResponseTokens  int
}

func (r *Request) setDefaults() {
	if r.MatchCount <= 0 {
		r.MatchCount = 5
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
	if r.MaxContentLength <= 0 {
		r.MaxContentLength = 1000
	}
}

// Pagination describes one page of results.
type Pagination struct {
	Offset         int  `json:"offset"`
	RequestedCount int  `json:"requested_count"`
	ReturnedCount  int  `json:"returned_count"`
	HasMore        bool `json:"has_more"`
}

// Response is the rag_query result envelope.
type Response struct {
	Success          bool               `json:"success"`
	Query            string             `json:"query"`
	SearchMode       string             `json:"search_mode"`
	RerankingApplied bool               `json:"reranking_applied"`
	Results          []map[string]any   `json:"results"`
	Count            int                `json:"count"`
	Pagination       Pagination         `json:"pagination"`
	Warning          string             `json:"warning,omitempty"`
	TruncationInfo   *sizer.Diagnostics `json:"truncation_info,omitempty"`
}

// RAGQuery runs the document retrieval pipeline: embed, vector search,
// optional keyword merge, optional rerank, paginate, size-fit.
func (o *Orchestrator) RAGQuery(ctx context.Context, req Request) (*Response, error) {
	ctx, span := observability.GetTracer("lodestone.retrieve").Start(ctx, "rag_query")
	defer span.End()
	return o.query(ctx, req, o.store.SearchDocuments, o.store.KeywordDocuments)
}

// CodeQuery runs the same pipeline over code examples.
func (o *Orchestrator) CodeQuery(ctx context.Context, req Request) (*Response, error) {
	ctx, span := observability.GetTracer("lodestone.retrieve").Start(ctx, "code_query")
	defer span.End()
	return o.query(ctx, req, o.store.SearchCodeExamples, o.store.KeywordCodeExamples)
}

type searchFn func(ctx context.Context, query string, matchCount int, sourceID string) ([]vectorstore.Row, error)

func (o *Orchestrator) query(ctx context.Context, req Request, semantic, keyword searchFn) (*Response, error) {
	req.setDefaults()
	fetchCount := req.MatchCount + req.Offset + searchBuffer

	rows, err := semantic(ctx, req.Query, fetchCount, req.SourceFilter)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	mode := "vector"
	if o.hybrid {
		mode = "hybrid"
		keywordRows, err := keyword(ctx, req.Query, fetchCount, req.SourceFilter)
		if err != nil {
			return nil, fmt.Errorf("keyword search failed: %w", err)
		}
		rows = MergeHybrid(rows, keywordRows, fetchCount)
	}

	results := rowsToRecords(rows)

	if o.rerankScores && len(results) > 0 {
		pairs := make([]rerank.Pair, len(results))
		for i, r := range results {
			content, _ := r["content"].(string)
			pairs[i] = rerank.Pair{Query: req.Query, Document: content}
		}
		scores := o.reranker.Predict(ctx, pairs)
		for i := range results {
			results[i]["rerank_score"] = scores[i]
		}
		sort.SliceStable(results, func(a, b int) bool {
			return results[a]["rerank_score"].(float64) > results[b]["rerank_score"].(float64)
		})
	}

	page, hasMore := paginate(results, req.Offset, req.MatchCount)

	fitted, diag, warning := sizer.Fit(page, "content", sizer.Constraints{
		MaxResponseTokens:  req.MaxResponseTokens,
		MaxContentLength:   req.MaxContentLength,
		IncludeFullContent: req.IncludeFullContent,
	})

	resp := &Response{
		Success:          true,
		Query:            req.Query,
		SearchMode:       mode,
		RerankingApplied: o.rerankScores,
		Results:          fitted,
		Count:            len(fitted),
		Pagination: Pagination{
			Offset:         req.Offset,
			RequestedCount: req.MatchCount,
			ReturnedCount:  len(fitted),
			HasMore:        hasMore || diag.Truncated,
		},
		Warning: warning,
	}
	if diag.Truncated || diag.ContentTruncatedCount > 0 {
		resp.TruncationInfo = &diag
	}
	return resp, nil
}

func paginate(results []map[string]any, offset, count int) ([]map[string]any, bool) {
	if offset >= len(results) {
		return nil, false
	}
	end := offset + count
	hasMore := end < len(results)
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end], hasMore
}

func rowsToRecords(rows []vectorstore.Row) []map[string]any {
	records := make([]map[string]any, len(rows))
	for i, r := range rows {
		record := map[string]any{
			"url":        r.URL,
			"content":    r.Content,
			"metadata":   r.Metadata,
			"similarity": r.Similarity,
		}
		if r.Summary != "" {
			record["summary"] = r.Summary
		}
		records[i] = record
	}
	return records
}

// GraphRequest is one GraphRAG query.
type GraphRequest struct {
	Request

	UseGraphEnrichment bool
	MaxEntities        int
}

// GraphResponse is the graphrag_query result envelope.
type GraphResponse struct {
	Success              bool           `json:"success"`
	Query                string         `json:"query"`
	Answer               string         `json:"answer"`
	GraphEnrichmentUsed  bool           `json:"graph_enrichment_used"`
	GraphEnrichment      map[string]any `json:"graph_enrichment,omitempty"`
	Pagination           Pagination     `json:"pagination"`
	Sources              []string       `json:"sources"`
	Warnings             []string       `json:"warnings,omitempty"`
}

// snippetLimit truncates document snippets spliced into the answer prompt.
const snippetLimit = 1500

// GraphRAGQuery retrieves documents, enriches them with graph context when
// their chunks carry document ids, and asks the LLM for a grounded answer.
func (o *Orchestrator) GraphRAGQuery(ctx context.Context, req GraphRequest) (*GraphResponse, error) {
	if o.llm == nil {
		return nil, fmt.Errorf("graphrag requires an LLM client")
	}
	ctx, span := observability.GetTracer("lodestone.retrieve").Start(ctx, "graphrag_query")
	defer span.End()
	req.setDefaults()
	if req.MaxEntities <= 0 {
		req.MaxEntities = 10
	}

	rows, err := o.store.SearchDocuments(ctx, req.Query, req.MatchCount+req.Offset+searchBuffer, req.SourceFilter)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	page, hasMore := paginateRows(rows, req.Offset, req.MatchCount)

	resp := &GraphResponse{
		Success: true,
		Query:   req.Query,
		Pagination: Pagination{
			Offset:         req.Offset,
			RequestedCount: req.MatchCount,
			ReturnedCount:  len(page),
			HasMore:        hasMore,
		},
	}

	var enrichmentBlock string
	if req.UseGraphEnrichment && o.graph != nil {
		documentIDs := collectDocumentIDs(page)
		if len(documentIDs) == 0 {
			resp.Warnings = append(resp.Warnings,
				"no document ids found in result metadata; content was likely ingested without graph extraction, re-crawl with crawl_with_graph_extraction to enable enrichment")
		} else {
			enrichment, err := o.graph.EnrichDocuments(ctx, documentIDs, req.MaxEntities)
			if err != nil {
				resp.Warnings = append(resp.Warnings, "graph enrichment unavailable: "+err.Error())
			} else if len(enrichment.Entities) > 0 {
				enrichmentBlock = enrichment.Block
				resp.GraphEnrichmentUsed = true
				resp.GraphEnrichment = summarizeEnrichment(enrichment)
			}
		}
	}

	answer, err := o.answer(ctx, req.Query, enrichmentBlock, page)
	if err != nil {
		return nil, err
	}
	resp.Answer = answer

	seen := map[string]bool{}
	for _, r := range page {
		if !seen[r.URL] {
			seen[r.URL] = true
			resp.Sources = append(resp.Sources, r.URL)
		}
	}
	return resp, nil
}

func paginateRows(rows []vectorstore.Row, offset, count int) ([]vectorstore.Row, bool) {
	if offset >= len(rows) {
		return nil, false
	}
	end := offset + count
	hasMore := end < len(rows)
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], hasMore
}

func collectDocumentIDs(rows []vectorstore.Row) []string {
	seen := map[string]bool{}
	var ids []string
	for _, r := range rows {
		id, _ := r.Metadata["document_id"].(string)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func summarizeEnrichment(e *graphstore.Enrichment) map[string]any {
	var concepts, dependencies []string
	for _, entity := range e.Entities {
		if entity.Type == "Concept" {
			concepts = append(concepts, entity.Name)
		}
		for _, rel := range entity.Relationships {
			if rel.RelationshipType == "DEPENDS_ON" || rel.RelationshipType == "REQUIRES" {
				dependencies = append(dependencies, entity.Name+" "+rel.RelationshipType+" "+rel.Name)
			}
		}
	}
	return map[string]any{
		"entities_found": len(e.Entities),
		"concepts":       concepts,
		"dependencies":   dependencies,
	}
}

func (o *Orchestrator) answer(ctx context.Context, query, enrichmentBlock string, rows []vectorstore.Row) (string, error) {
	var b strings.Builder
	if enrichmentBlock != "" {
		b.WriteString(enrichmentBlock)
		b.WriteString("\n")
	}
	b.WriteString("## Retrieved Documents\n\n")
	for i, r := range rows {
		if i >= 5 {
			break
		}
		snippet := r.Content
		if len(snippet) > snippetLimit {
			snippet = snippet[:snippetLimit] + " ..."
		}
		fmt.Fprintf(&b, "### %s\n%s\n\n", r.URL, snippet)
	}

	answer, err := o.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "Answer the question using only the provided context. Cite the source URLs you used. If the context is insufficient, say so."},
			{Role: "user", Content: b.String() + "\nQuestion: " + query},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	return answer, nil
}

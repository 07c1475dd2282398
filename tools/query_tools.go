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

package tools

import (
	"context"
	"time"

	"github.com/kadirpekel/lodestone/retrieve"
)

// GetAvailableSources lists every ingested source with its summary.
func (s *Service) GetAvailableSources(ctx context.Context) map[string]any {
	sources, err := s.sources.ListSources(ctx)
	if err != nil {
		return ErrorEnvelope(err)
	}
	return Envelope(map[string]any{
		"sources": sources,
		"count":   len(sources),
	})
}

// RAGQueryArgs are the perform_rag_query and search_code_examples inputs.
type RAGQueryArgs struct {
	Query              string
	Source             string
	MatchCount         int
	Offset             int
	MaxContentLength   int
	IncludeFullContent bool
	MaxResponseTokens  int
}

func (a RAGQueryArgs) toRequest() retrieve.Request {
	return retrieve.Request{
		Query:              a.Query,
		SourceFilter:       a.Source,
		MatchCount:         a.MatchCount,
		Offset:             a.Offset,
		MaxContentLength:   a.MaxContentLength,
		IncludeFullContent: a.IncludeFullContent,
		MaxResponseTokens:  a.MaxResponseTokens,
	}
}

// PerformRAGQuery runs the document retrieval pipeline.
func (s *Service) PerformRAGQuery(ctx context.Context, args RAGQueryArgs) map[string]any {
	if args.Query == "" {
		return ErrorEnvelope(NewValidationError("query", "query is required"))
	}
	start := time.Now()
	resp, err := s.retriever.RAGQuery(ctx, args.toRequest())
	s.observeQuery("rag", start, err != nil)
	if err != nil {
		return ErrorEnvelope(err)
	}
	return responseEnvelope(resp)
}

// SearchCodeExamples runs retrieval over extracted code examples.
// Requires the agentic RAG feature.
func (s *Service) SearchCodeExamples(ctx context.Context, args RAGQueryArgs) map[string]any {
	if err := s.requireAgenticRAG(); err != nil {
		return ErrorEnvelope(err)
	}
	if args.Query == "" {
		return ErrorEnvelope(NewValidationError("query", "query is required"))
	}
	start := time.Now()
	resp, err := s.retriever.CodeQuery(ctx, args.toRequest())
	s.observeQuery("code", start, err != nil)
	if err != nil {
		return ErrorEnvelope(err)
	}
	return responseEnvelope(resp)
}

func responseEnvelope(resp *retrieve.Response) map[string]any {
	envelope := Envelope(map[string]any{
		"query":             resp.Query,
		"search_mode":       resp.SearchMode,
		"reranking_applied": resp.RerankingApplied,
		"results":           resp.Results,
		"count":             resp.Count,
		"pagination":        resp.Pagination,
	})
	if resp.Warning != "" {
		envelope["warning"] = resp.Warning
	}
	if resp.TruncationInfo != nil {
		envelope["truncation_info"] = resp.TruncationInfo
	}
	return envelope
}

// GraphRAGArgs are the graphrag_query inputs.
type GraphRAGArgs struct {
	Query              string
	UseGraphEnrichment bool
	MaxEntities        int
	Source             string
	MatchCount         int
	Offset             int
}

// GraphRAGQuery answers a question with retrieved documents and graph
// context.
func (s *Service) GraphRAGQuery(ctx context.Context, args GraphRAGArgs) map[string]any {
	if err := s.requireGraph(); err != nil {
		return ErrorEnvelope(err)
	}
	if args.Query == "" {
		return ErrorEnvelope(NewValidationError("query", "query is required"))
	}

	start := time.Now()
	resp, err := s.retriever.GraphRAGQuery(ctx, retrieve.GraphRequest{
		Request: retrieve.Request{
			Query:        args.Query,
			SourceFilter: args.Source,
			MatchCount:   args.MatchCount,
			Offset:       args.Offset,
		},
		UseGraphEnrichment: args.UseGraphEnrichment,
		MaxEntities:        args.MaxEntities,
	})
	s.observeQuery("graphrag", start, err != nil)
	if err != nil {
		return ErrorEnvelope(err)
	}

	envelope := Envelope(map[string]any{
		"query":                 resp.Query,
		"answer":                resp.Answer,
		"graph_enrichment_used": resp.GraphEnrichmentUsed,
		"pagination":            resp.Pagination,
		"sources":               resp.Sources,
	})
	if resp.GraphEnrichment != nil {
		envelope["graph_enrichment"] = resp.GraphEnrichment
	}
	if len(resp.Warnings) > 0 {
		envelope["warnings"] = resp.Warnings
	}
	return envelope
}

// QueryDocumentGraph runs a read-only Cypher query against the graph.
func (s *Service) QueryDocumentGraph(ctx context.Context, cypher string) map[string]any {
	if err := s.requireGraph(); err != nil {
		return ErrorEnvelope(err)
	}
	if cypher == "" {
		return ErrorEnvelope(NewValidationError("cypher_query", "query is required"))
	}

	rows, err := s.graph.RunReadQuery(ctx, cypher, nil)
	if err != nil {
		return ErrorEnvelope(err)
	}
	return Envelope(map[string]any{
		"rows":  rows,
		"count": len(rows),
	})
}

// GetEntityContext returns one entity's neighborhood.
func (s *Service) GetEntityContext(ctx context.Context, name string, maxHops, maxRelated int) map[string]any {
	if err := s.requireGraph(); err != nil {
		return ErrorEnvelope(err)
	}
	if name == "" {
		return ErrorEnvelope(NewValidationError("entity_name", "entity name is required"))
	}

	ec, err := s.graph.GetEntityContext(ctx, name, maxHops, maxRelated)
	if err != nil {
		return ErrorEnvelope(err)
	}
	if ec == nil {
		return Envelope(map[string]any{
			"found":  false,
			"entity": nil,
		})
	}
	return Envelope(map[string]any{
		"found":  true,
		"entity": ec,
	})
}

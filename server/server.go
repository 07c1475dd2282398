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

// Package server exposes the tool surface over the Model Context Protocol,
// on stdio or streamable HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kadirpekel/lodestone/tools"
)

// Server hosts the MCP tool surface.
type Server struct {
	mcp *server.MCPServer
	svc *tools.Service
}

// New creates the server and registers every tool.
func New(svc *tools.Service, version string) *Server {
	s := &Server{
		mcp: server.NewMCPServer("lodestone", version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		svc: svc,
	}
	s.registerCrawlTools()
	s.registerQueryTools()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// ServeHTTP blocks serving MCP over streamable HTTP on addr.
func (s *Server) ServeHTTP(addr string) error {
	return server.NewStreamableHTTPServer(s.mcp).Start(addr)
}

// envelopeResult renders a tool envelope as a JSON text result. MCP
// transports errors inside the payload, not as protocol errors.
func envelopeResult(envelope map[string]any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) registerCrawlTools() {
	s.mcp.AddTool(mcp.NewTool("crawl_single_page",
		mcp.WithDescription("Crawl a single web page and store its content for retrieval."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL of the page to crawl")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return envelopeResult(s.svc.CrawlSinglePage(ctx, tools.CrawlSinglePageArgs{URL: url}))
	})

	s.mcp.AddTool(mcp.NewTool("smart_crawl_url",
		mcp.WithDescription("Crawl a URL picking the right strategy: sitemaps expand to their pages, text files fetch directly, webpages crawl recursively."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Seed URL")),
		mcp.WithNumber("max_depth", mcp.Description("Recursion depth for webpage crawls (default 3)")),
		mcp.WithNumber("max_concurrent", mcp.Description("Concurrent page fetches per batch (default 10)")),
		mcp.WithNumber("chunk_size", mcp.Description("Chunk size in characters (default 5000)")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return envelopeResult(s.svc.SmartCrawlURL(ctx, tools.SmartCrawlArgs{
			URL:           url,
			MaxDepth:      request.GetInt("max_depth", 0),
			MaxConcurrent: request.GetInt("max_concurrent", 0),
			ChunkSize:     request.GetInt("chunk_size", 0),
		}))
	})

	s.mcp.AddTool(mcp.NewTool("crawl_with_stealth_mode",
		mcp.WithDescription("Crawl with an anti-automation browser profile for sites that block headless browsers."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL to crawl")),
		mcp.WithString("wait_for_selector", mcp.Description("CSS selector to wait for after navigation")),
		mcp.WithNumber("extra_delay_seconds", mcp.Description("Additional wait after page load")),
		mcp.WithNumber("max_depth", mcp.Description("Recursion depth (default 3)")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return envelopeResult(s.svc.CrawlWithStealthMode(ctx, tools.StealthCrawlArgs{
			URL:             url,
			WaitForSelector: request.GetString("wait_for_selector", ""),
			ExtraDelay:      time.Duration(request.GetFloat("extra_delay_seconds", 0) * float64(time.Second)),
			MaxDepth:        request.GetInt("max_depth", 0),
		}))
	})

	s.mcp.AddTool(mcp.NewTool("crawl_with_multi_url_config",
		mcp.WithDescription("Crawl several URLs, each with a content extraction profile picked from its shape (documentation, article, general)."),
		mcp.WithArray("urls", mcp.Required(), mcp.Description("URLs to crawl"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("max_concurrent", mcp.Description("Concurrent fetches per batch (default 10)")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls := request.GetStringSlice("urls", nil)
		return envelopeResult(s.svc.CrawlWithMultiURLConfig(ctx, tools.MultiURLArgs{
			URLs:          urls,
			MaxConcurrent: request.GetInt("max_concurrent", 0),
		}))
	})

	s.mcp.AddTool(mcp.NewTool("crawl_with_memory_monitoring",
		mcp.WithDescription("Crawl with adaptive concurrency that halves when resident memory crosses the threshold; reports memory statistics."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Seed URL")),
		mcp.WithNumber("memory_threshold_mb", mcp.Description("Resident memory threshold in MB (default 512)")),
		mcp.WithNumber("max_depth", mcp.Description("Recursion depth (default 3)")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return envelopeResult(s.svc.CrawlWithMemoryMonitoring(ctx, tools.MonitoredCrawlArgs{
			URL:               url,
			MemoryThresholdMB: uint64(request.GetInt("memory_threshold_mb", 0)),
			MaxDepth:          request.GetInt("max_depth", 0),
		}))
	})

	s.mcp.AddTool(mcp.NewTool("crawl_with_graph_extraction",
		mcp.WithDescription("Crawl and dual-write: chunks to the vector store, entities and relationships to the knowledge graph."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL to crawl")),
		mcp.WithBoolean("extract_entities", mcp.Description("Extract entities into the graph (default true)")),
		mcp.WithBoolean("extract_relationships", mcp.Description("Also extract typed relationships")),
		mcp.WithNumber("chunk_size", mcp.Description("Chunk size in characters (default 5000)")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return envelopeResult(s.svc.CrawlWithGraphExtraction(ctx, tools.GraphCrawlArgs{
			URL:                  url,
			ExtractEntities:      request.GetBool("extract_entities", true),
			ExtractRelationships: request.GetBool("extract_relationships", false),
			ChunkSize:            request.GetInt("chunk_size", 0),
		}))
	})
}

func (s *Server) registerQueryTools() {
	s.mcp.AddTool(mcp.NewTool("get_available_sources",
		mcp.WithDescription("List every ingested source with its summary and word count."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return envelopeResult(s.svc.GetAvailableSources(ctx))
	})

	s.mcp.AddTool(mcp.NewTool("perform_rag_query",
		mcp.WithDescription("Semantic search over crawled content, with optional hybrid keyword merge and reranking."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithString("source", mcp.Description("Restrict to one source id, e.g. example.com")),
		mcp.WithNumber("match_count", mcp.Description("Results to return (default 5)")),
		mcp.WithNumber("offset", mcp.Description("Pagination offset")),
		mcp.WithNumber("max_content_length", mcp.Description("Per-result content cap in characters (default 1000)")),
		mcp.WithBoolean("include_full_content", mcp.Description("Return full content per result; set false to truncate to max_content_length (default true)")),
		mcp.WithNumber("max_response_tokens", mcp.Description("Response token budget, capped at 20000")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return envelopeResult(s.svc.PerformRAGQuery(ctx, ragArgs(query, request)))
	})

	s.mcp.AddTool(mcp.NewTool("search_code_examples",
		mcp.WithDescription("Search extracted code examples by intent. Requires USE_AGENTIC_RAG."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What the code should do")),
		mcp.WithString("source", mcp.Description("Restrict to one source id")),
		mcp.WithNumber("match_count", mcp.Description("Results to return (default 5)")),
		mcp.WithNumber("offset", mcp.Description("Pagination offset")),
		mcp.WithNumber("max_content_length", mcp.Description("Per-result content cap in characters")),
		mcp.WithBoolean("include_full_content", mcp.Description("Return full content per result; set false to truncate to max_content_length (default true)")),
		mcp.WithNumber("max_response_tokens", mcp.Description("Response token budget, capped at 20000")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return envelopeResult(s.svc.SearchCodeExamples(ctx, ragArgs(query, request)))
	})

	s.mcp.AddTool(mcp.NewTool("graphrag_query",
		mcp.WithDescription("Answer a question using retrieved documents enriched with knowledge graph context. Requires USE_GRAPHRAG."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question to answer")),
		mcp.WithBoolean("use_graph_enrichment", mcp.Description("Splice graph context into the answer prompt (default true)")),
		mcp.WithNumber("max_entities", mcp.Description("Entities to include in enrichment (default 10)")),
		mcp.WithString("source", mcp.Description("Restrict to one source id")),
		mcp.WithNumber("match_count", mcp.Description("Documents to retrieve (default 5)")),
		mcp.WithNumber("offset", mcp.Description("Pagination offset")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return envelopeResult(s.svc.GraphRAGQuery(ctx, tools.GraphRAGArgs{
			Query:              query,
			UseGraphEnrichment: request.GetBool("use_graph_enrichment", true),
			MaxEntities:        request.GetInt("max_entities", 0),
			Source:             request.GetString("source", ""),
			MatchCount:         request.GetInt("match_count", 0),
			Offset:             request.GetInt("offset", 0),
		}))
	})

	s.mcp.AddTool(mcp.NewTool("query_document_graph",
		mcp.WithDescription("Run a read-only Cypher query against the knowledge graph. Requires USE_GRAPHRAG."),
		mcp.WithString("cypher_query", mcp.Required(), mcp.Description("Cypher query; write clauses are rejected")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cypher, err := request.RequireString("cypher_query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return envelopeResult(s.svc.QueryDocumentGraph(ctx, cypher))
	})

	s.mcp.AddTool(mcp.NewTool("get_entity_context",
		mcp.WithDescription("Return one entity with its related entities and mentioning documents. Requires USE_GRAPHRAG."),
		mcp.WithString("entity_name", mcp.Required(), mcp.Description("Entity name, exact match")),
		mcp.WithNumber("max_hops", mcp.Description("Relationship hops to traverse (default 2, max 3)")),
		mcp.WithNumber("max_related", mcp.Description("Related entities to include (default 10)")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("entity_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return envelopeResult(s.svc.GetEntityContext(ctx, name,
			request.GetInt("max_hops", 0), request.GetInt("max_related", 0)))
	})
}

func ragArgs(query string, request mcp.CallToolRequest) tools.RAGQueryArgs {
	return tools.RAGQueryArgs{
		Query:              query,
		Source:             request.GetString("source", ""),
		MatchCount:         request.GetInt("match_count", 0),
		Offset:             request.GetInt("offset", 0),
		MaxContentLength:   request.GetInt("max_content_length", 0),
		// Full content is the documented default; truncation is opt-in via
		// an explicit false.
		IncludeFullContent: request.GetBool("include_full_content", true),
		MaxResponseTokens:  request.GetInt("max_response_tokens", 0),
	}
}

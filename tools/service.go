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

// Package tools implements the tool surface of the retrieval service.
// Every tool returns a JSON-shaped envelope with a success flag; failures
// are reported inside the envelope rather than as transport errors.
package tools

import (
	"context"
	"time"

	"github.com/kadirpekel/lodestone/crawl"
	"github.com/kadirpekel/lodestone/graphstore"
	"github.com/kadirpekel/lodestone/ingest"
	"github.com/kadirpekel/lodestone/observability"
	"github.com/kadirpekel/lodestone/retrieve"
	"github.com/kadirpekel/lodestone/vectorstore"
)

// Crawler is the crawl orchestrator surface the tools need.
type Crawler interface {
	Crawl(ctx context.Context, url string, opts crawl.Options) (*crawl.Result, error)
	CrawlRecursive(ctx context.Context, url string, opts crawl.Options) (*crawl.Result, error)
	CrawlStealth(ctx context.Context, url string, opts crawl.Options, waitFor string, delay time.Duration) (*crawl.Result, error)
	CrawlMonitored(ctx context.Context, url string, opts crawl.Options, thresholdMB uint64) (*crawl.Result, error)
	CrawlMulti(ctx context.Context, urls []string, opts crawl.Options) []crawl.MultiURLOutcome
}

// Ingestor stores crawled documents.
type Ingestor interface {
	Ingest(ctx context.Context, docs []crawl.Document, opts ingest.Options) (ingest.Stats, error)
}

// Retriever runs retrieval queries.
type Retriever interface {
	RAGQuery(ctx context.Context, req retrieve.Request) (*retrieve.Response, error)
	CodeQuery(ctx context.Context, req retrieve.Request) (*retrieve.Response, error)
	GraphRAGQuery(ctx context.Context, req retrieve.GraphRequest) (*retrieve.GraphResponse, error)
}

// SourceLister lists ingested sources.
type SourceLister interface {
	ListSources(ctx context.Context) ([]vectorstore.Source, error)
}

// GraphReader serves graph read tools.
type GraphReader interface {
	RunReadQuery(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	GetEntityContext(ctx context.Context, name string, maxHops, maxRelated int) (*graphstore.EntityContext, error)
}

// Features mirrors the feature flags the tools gate on.
type Features struct {
	AgenticRAG bool
	GraphRAG   bool
}

// CrawlDefaults apply when a tool call leaves the knob unset.
type CrawlDefaults struct {
	MaxDepth          int
	MaxConcurrent     int
	MemoryThresholdMB uint64
}

// Service implements the tool surface.
type Service struct {
	crawler   Crawler
	ingestor  Ingestor
	retriever Retriever
	sources   SourceLister
	graph     GraphReader
	features  Features
	defaults  CrawlDefaults
	metrics   *observability.Metrics
}

// Config wires the service. Graph may be nil when GraphRAG is disabled and
// Metrics may be nil when metrics are off.
type Config struct {
	Crawler   Crawler
	Ingestor  Ingestor
	Retriever Retriever
	Sources   SourceLister
	Graph     GraphReader
	Features  Features
	Defaults  CrawlDefaults
	Metrics   *observability.Metrics
}

// NewService creates the tool service.
func NewService(cfg Config) *Service {
	return &Service{
		crawler:   cfg.Crawler,
		ingestor:  cfg.Ingestor,
		retriever: cfg.Retriever,
		sources:   cfg.Sources,
		graph:     cfg.Graph,
		features:  cfg.Features,
		defaults:  cfg.Defaults,
		metrics:   cfg.Metrics,
	}
}

// crawlOptions merges per-call knobs with the configured defaults. Zero
// values fall through to the crawl package defaults.
func (s *Service) crawlOptions(maxDepth, maxConcurrent int) crawl.Options {
	if maxDepth <= 0 {
		maxDepth = s.defaults.MaxDepth
	}
	if maxConcurrent <= 0 {
		maxConcurrent = s.defaults.MaxConcurrent
	}
	return crawl.Options{MaxDepth: maxDepth, MaxConcurrent: maxConcurrent}
}

func (s *Service) observeIngest(strategy string, pages int, stats ingest.Stats) {
	if s.metrics == nil {
		return
	}
	s.metrics.PagesCrawled.WithLabelValues(strategy).Add(float64(pages))
	s.metrics.ChunksStored.Add(float64(stats.ChunksStored))
	s.metrics.CodeExamples.Add(float64(stats.CodeExamplesStored))
	s.metrics.EntitiesStored.Add(float64(stats.EntitiesStored))
}

func (s *Service) observeQuery(kind string, start time.Time, failed bool) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if failed {
		outcome = "error"
	}
	s.metrics.QueriesTotal.WithLabelValues(kind, outcome).Inc()
	s.metrics.QueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (s *Service) requireGraph() error {
	if !s.features.GraphRAG || s.graph == nil {
		return NewConfigurationError("knowledge graph",
			"set USE_GRAPHRAG=true and configure NEO4J_URI to enable graph tools")
	}
	return nil
}

func (s *Service) requireAgenticRAG() error {
	if !s.features.AgenticRAG {
		return NewConfigurationError("code example search",
			"set USE_AGENTIC_RAG=true to extract and search code examples")
	}
	return nil
}

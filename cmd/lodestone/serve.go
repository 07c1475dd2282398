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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	lodestone "github.com/kadirpekel/lodestone"
	"github.com/kadirpekel/lodestone/chunk"
	"github.com/kadirpekel/lodestone/config"
	"github.com/kadirpekel/lodestone/crawl"
	"github.com/kadirpekel/lodestone/embedder"
	"github.com/kadirpekel/lodestone/extract"
	"github.com/kadirpekel/lodestone/graphstore"
	"github.com/kadirpekel/lodestone/httpx"
	"github.com/kadirpekel/lodestone/ingest"
	"github.com/kadirpekel/lodestone/llm"
	"github.com/kadirpekel/lodestone/logger"
	"github.com/kadirpekel/lodestone/observability"
	"github.com/kadirpekel/lodestone/rerank"
	"github.com/kadirpekel/lodestone/retrieve"
	"github.com/kadirpekel/lodestone/server"
	"github.com/kadirpekel/lodestone/tools"
	"github.com/kadirpekel/lodestone/vectorstore"
)

// ServeCmd starts the MCP tool server.
type ServeCmd struct {
	Transport string `help:"Serve transport (http or stdio)." enum:"http,stdio" default:"http"`
	Port      int    `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, cleanup, err := initRuntime(cli)
	if err != nil {
		return err
	}
	defer cleanup()
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	tracer, err := observability.NewTracer(ctx, observability.TracerConfig{
		Enabled:        cfg.Telemetry.TracingEnabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceVersion: lodestone.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if tracer != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracer.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Tracer shutdown failed", "error", err)
			}
		}()
	}

	var metrics *observability.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics = startMetricsServer(cfg.Telemetry.MetricsAddr)
	}

	svc, closers, err := buildService(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer closers.close()

	srv := server.New(svc, lodestone.Version)

	if c.Transport == "stdio" {
		slog.Info("Serving MCP over stdio")
		return srv.ServeStdio()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ServeHTTP(addr)
	}()
	slog.Info("Lodestone server ready", "addr", addr, "transport", "http")

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func loadEnvFile(path string) error {
	if path != "" {
		return config.LoadDotEnv(path)
	}
	return config.LoadDotEnv()
}

func initLogging(cfg config.LoggingConfig) (func(), error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	cleanup := func() {}
	if cfg.File != "" {
		f, closeFile, err := logger.OpenLogFile(cfg.File)
		if err != nil {
			return nil, err
		}
		output = f
		cleanup = closeFile
	}
	logger.Init(level, output, cfg.Format)
	return cleanup, nil
}

// startMetricsServer registers the collectors and serves them on addr.
func startMetricsServer(addr string) *observability.Metrics {
	m, registry := observability.NewMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(registry))
	go func() {
		slog.Info("Metrics server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	return m
}

// closerList collects shutdown hooks in construction order.
type closerList []func()

func (c closerList) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// buildService constructs the full component graph from configuration.
func buildService(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (*tools.Service, closerList, error) {
	var closers closerList

	emb, err := newEmbedder(cfg, metrics)
	if err != nil {
		return nil, closers, err
	}

	llmClient, err := llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
		Timeout: cfg.Timeouts.API,
	})
	if err != nil {
		return nil, closers, fmt.Errorf("failed to create LLM client: %w", err)
	}
	summarizer := llm.NewSummarizer(llmClient)

	storeCfg := vectorstore.Config{
		DSN:      cfg.Database.DSN,
		Embedder: emb,
		MaxConns: cfg.Database.MaxConns,
		Timeout:  cfg.Timeouts.Database,
	}
	if cfg.Features.ContextualEmbeddings {
		storeCfg.Contextualizer = summarizer
	}
	store, err := vectorstore.New(ctx, storeCfg)
	if err != nil {
		return nil, closers, fmt.Errorf("failed to connect to vector store: %w", err)
	}
	closers = append(closers, store.Close)

	var graph *graphstore.Store
	if cfg.Features.GraphEnabled() {
		graph, err = graphstore.New(ctx, graphstore.Config{
			URI:      cfg.Graph.URI,
			Username: cfg.Graph.Username,
			Password: cfg.Graph.Password,
			Database: cfg.Graph.Database,
			Timeout:  cfg.Timeouts.Database,
		})
		if err != nil {
			closers.close()
			return nil, nil, fmt.Errorf("failed to connect to knowledge graph: %w", err)
		}
		closers = append(closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := graph.Close(closeCtx); err != nil {
				slog.Warn("Graph store close failed", "error", err)
			}
		})
	}

	ingestCfg := ingest.Config{
		Store:      store,
		Summarizer: summarizer,
		Chunker:    chunk.NewChunker(cfg.Crawler.ChunkSize),
	}
	if graph != nil {
		ingestCfg.Graph = graph
		ingestCfg.Extractor = extract.New(extract.Config{Client: llmClient})
	}
	pipeline, err := ingest.New(ingestCfg)
	if err != nil {
		closers.close()
		return nil, nil, fmt.Errorf("failed to create ingest pipeline: %w", err)
	}

	crawler := crawl.NewOrchestrator(
		httpx.NewClient(30*time.Second, httpx.RetryConfig{}),
		crawl.BrowserConfig{
			PageTimeout: cfg.Crawler.PageTimeout,
			MaxSessions: cfg.Crawler.MaxSessions,
		},
	)

	retrieveCfg := retrieve.Config{
		Store:  store,
		LLM:    llmClient,
		Hybrid: cfg.Features.HybridSearch,
		Rerank: cfg.Features.Reranking && cfg.Reranker.Endpoint != "",
	}
	if retrieveCfg.Rerank {
		retrieveCfg.Reranker = rerank.NewCrossEncoder(rerank.Config{
			Endpoint: cfg.Reranker.Endpoint,
			Model:    cfg.Reranker.Model,
		})
	}
	if graph != nil {
		retrieveCfg.Graph = graph
	}
	retriever, err := retrieve.New(retrieveCfg)
	if err != nil {
		closers.close()
		return nil, nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	svcCfg := tools.Config{
		Crawler:   crawler,
		Ingestor:  pipeline,
		Retriever: retriever,
		Sources:   store,
		Features: tools.Features{
			AgenticRAG: cfg.Features.AgenticRAG,
			GraphRAG:   cfg.Features.GraphEnabled(),
		},
		Defaults: tools.CrawlDefaults{
			MaxDepth:          cfg.Crawler.MaxDepth,
			MaxConcurrent:     cfg.Crawler.MaxConcurrent,
			MemoryThresholdMB: cfg.Crawler.MemoryThresholdMB,
		},
		Metrics: metrics,
	}
	if graph != nil {
		svcCfg.Graph = graph
	}
	return tools.NewService(svcCfg), closers, nil
}

func newEmbedder(cfg *config.Config, metrics *observability.Metrics) (*embedder.OpenAIEmbedder, error) {
	embCfg := embedder.OpenAIConfig{
		APIKey:    cfg.OpenAI.APIKey,
		BaseURL:   cfg.OpenAI.BaseURL,
		Model:     cfg.OpenAI.EmbeddingModel,
		Dimension: cfg.OpenAI.EmbeddingDimension,
		Timeout:   cfg.Timeouts.API,
	}
	if metrics != nil {
		embCfg.OnBatch = metrics.EmbeddingBatches.Inc
		embCfg.OnZeroVector = metrics.ZeroVectors.Inc
	}
	emb, err := embedder.NewOpenAIEmbedder(embCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return emb, nil
}

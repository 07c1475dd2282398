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

// Package config loads service configuration from YAML with environment
// variable expansion and .env support. Environment variables override file
// values for secrets and feature flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Database  DatabaseConfig  `yaml:"database"`
	Graph     GraphConfig     `yaml:"graph"`
	Reranker  RerankerConfig  `yaml:"reranker"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Features  FeatureFlags    `yaml:"features"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the tool server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// OpenAIConfig configures the embedding and completion clients.
type OpenAIConfig struct {
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"`
	Model              string `yaml:"model"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`
}

// DatabaseConfig configures the vector store.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// GraphConfig configures the knowledge graph store.
type GraphConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RerankerConfig configures the cross-encoder scoring service.
type RerankerConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// CrawlerConfig tunes crawling and chunking.
type CrawlerConfig struct {
	ChunkSize         int           `yaml:"chunk_size"`
	MaxDepth          int           `yaml:"max_depth"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	MaxSessions       int           `yaml:"max_sessions"`
	MemoryThresholdMB uint64        `yaml:"memory_threshold_mb"`
	PageTimeout       time.Duration `yaml:"page_timeout"`
}

// FeatureFlags gate the optional retrieval paths.
type FeatureFlags struct {
	ContextualEmbeddings bool `yaml:"contextual_embeddings"`
	HybridSearch         bool `yaml:"hybrid_search"`
	AgenticRAG           bool `yaml:"agentic_rag"`
	Reranking            bool `yaml:"reranking"`
	GraphRAG             bool `yaml:"graphrag"`
	KnowledgeGraph       bool `yaml:"knowledge_graph"`
}

// GraphEnabled reports whether any graph-backed path is on.
func (f FeatureFlags) GraphEnabled() bool {
	return f.GraphRAG || f.KnowledgeGraph
}

// TimeoutsConfig bounds external calls per backend.
type TimeoutsConfig struct {
	API      time.Duration `yaml:"api"`
	Database time.Duration `yaml:"database"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	TracingEnabled bool   `yaml:"tracing_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8051},
		OpenAI: OpenAIConfig{
			Model:              "gpt-4o-mini",
			EmbeddingModel:     "text-embedding-3-small",
			EmbeddingDimension: 1536,
		},
		Crawler: CrawlerConfig{
			ChunkSize:     5000,
			MaxDepth:      3,
			MaxConcurrent: 10,
			MaxSessions:   10,
			PageTimeout:   60 * time.Second,
		},
		Timeouts:  TimeoutsConfig{API: 60 * time.Second, Database: 30 * time.Second},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{MetricsAddr: ":9090"},
	}
}

// Load reads the YAML config at path (optional), expands environment
// variables inside it, and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides config fields from the environment. Secrets and flags
// are commonly supplied this way in container deployments.
func (c *Config) applyEnv() {
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.OpenAI.Model, "MODEL_CHOICE")
	setString(&c.OpenAI.EmbeddingModel, "EMBEDDING_MODEL")

	setString(&c.Database.DSN, "DATABASE_URL")

	setString(&c.Graph.URI, "NEO4J_URI")
	setString(&c.Graph.Username, "NEO4J_USER")
	setString(&c.Graph.Password, "NEO4J_PASSWORD")

	setString(&c.Reranker.Endpoint, "RERANKER_ENDPOINT")

	setString(&c.Server.Host, "HOST")
	setInt(&c.Server.Port, "PORT")

	setBool(&c.Features.ContextualEmbeddings, "USE_CONTEXTUAL_EMBEDDINGS")
	setBool(&c.Features.HybridSearch, "USE_HYBRID_SEARCH")
	setBool(&c.Features.AgenticRAG, "USE_AGENTIC_RAG")
	setBool(&c.Features.Reranking, "USE_RERANKING")
	setBool(&c.Features.GraphRAG, "USE_GRAPHRAG")
	setBool(&c.Features.KnowledgeGraph, "USE_KNOWLEDGE_GRAPH")

	setDuration(&c.Timeouts.API, "API_TIMEOUT")
	setDuration(&c.Timeouts.Database, "DATABASE_TIMEOUT")
	setDuration(&c.Crawler.PageTimeout, "CRAWLER_TIMEOUT")

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
	setString(&c.Logging.File, "LOG_FILE")
}

// Validate checks the configuration is runnable.
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api key is required (OPENAI_API_KEY)")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required (DATABASE_URL)")
	}
	if c.OpenAI.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if c.Features.GraphEnabled() && c.Graph.URI == "" {
		return fmt.Errorf("graphrag is enabled but no graph uri is configured (NEO4J_URI)")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1" || v == "yes"
	}
}

// setDuration accepts a Go duration string or a bare number of seconds.
func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
	}
}

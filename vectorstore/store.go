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

// Package vectorstore is the single writer for document chunks, code
// examples, and source records in Postgres/pgvector. Re-ingesting a URL
// replaces its rows (delete then insert); sources are upserted.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kadirpekel/lodestone/embedder"
)

// DefaultInsertBatchSize is the row count per insert batch.
const DefaultInsertBatchSize = 20

// Contextualizer produces the short context string prepended to a chunk
// before embedding. The LLM summarizer satisfies this.
type Contextualizer interface {
	ChunkContext(ctx context.Context, fullDocument, chunk string) string
}

// Store is the vector store gateway.
type Store struct {
	pool      *pgxpool.Pool
	embedder  embedder.Embedder
	dimension int

	contextualizer   Contextualizer
	contextualWorker int

	batchSize int
	timeout   time.Duration
}

// Config configures the store.
type Config struct {
	// DSN is the Postgres connection string (required).
	DSN string

	// Embedder generates chunk embeddings (required).
	Embedder embedder.Embedder

	// Contextualizer enables contextual embedding when non-nil.
	Contextualizer Contextualizer

	// ContextualWorkers bounds concurrent chunk-context generation
	// (default: 10).
	ContextualWorkers int

	// BatchSize for row inserts (default: 20).
	BatchSize int

	// MaxConns for the connection pool (default: pool default).
	MaxConns int32

	// Timeout wraps each database operation (default: 30s).
	Timeout time.Duration
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultInsertBatchSize
	}
	if cfg.ContextualWorkers <= 0 {
		cfg.ContextualWorkers = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{
		pool:             pool,
		embedder:         cfg.Embedder,
		dimension:        cfg.Embedder.Dimension(),
		contextualizer:   cfg.Contextualizer,
		contextualWorker: cfg.ContextualWorkers,
		batchSize:        cfg.BatchSize,
		timeout:          cfg.Timeout,
	}

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	ddl := fmt.Sprintf(schemaDDL, s.dimension)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// schemaDDL bootstraps tables and the two stored search procedures. The
// %d placeholder is the embedding dimension.
const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS sources (
	source_id TEXT PRIMARY KEY,
	summary TEXT,
	total_word_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS crawled_pages (
	id UUID PRIMARY KEY,
	url TEXT NOT NULL,
	chunk_number INT NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	source_id TEXT NOT NULL REFERENCES sources(source_id),
	embedding vector(%[1]d) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(url, chunk_number)
);

CREATE INDEX IF NOT EXISTS crawled_pages_source_idx ON crawled_pages (source_id);

CREATE TABLE IF NOT EXISTS code_examples (
	id UUID PRIMARY KEY,
	url TEXT NOT NULL,
	chunk_number INT NOT NULL,
	content TEXT NOT NULL,
	summary TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	source_id TEXT NOT NULL REFERENCES sources(source_id),
	embedding vector(%[1]d) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(url, chunk_number)
);

CREATE INDEX IF NOT EXISTS code_examples_source_idx ON code_examples (source_id);

CREATE OR REPLACE FUNCTION match_crawled_pages(
	query_embedding vector(%[1]d),
	match_count INT DEFAULT 10,
	filter JSONB DEFAULT '{}'
) RETURNS TABLE (
	id UUID,
	url TEXT,
	chunk_number INT,
	content TEXT,
	metadata JSONB,
	source_id TEXT,
	similarity FLOAT
) LANGUAGE sql STABLE AS $$
	SELECT
		cp.id, cp.url, cp.chunk_number, cp.content, cp.metadata, cp.source_id,
		1 - (cp.embedding <=> query_embedding) AS similarity
	FROM crawled_pages cp
	WHERE filter = '{}'::jsonb OR cp.metadata @> filter
	ORDER BY cp.embedding <=> query_embedding
	LIMIT match_count;
$$;

CREATE OR REPLACE FUNCTION match_code_examples(
	query_embedding vector(%[1]d),
	match_count INT DEFAULT 10,
	filter JSONB DEFAULT '{}',
	source_filter TEXT DEFAULT NULL
) RETURNS TABLE (
	id UUID,
	url TEXT,
	chunk_number INT,
	content TEXT,
	summary TEXT,
	metadata JSONB,
	source_id TEXT,
	similarity FLOAT
) LANGUAGE sql STABLE AS $$
	SELECT
		ce.id, ce.url, ce.chunk_number, ce.content, ce.summary, ce.metadata, ce.source_id,
		1 - (ce.embedding <=> query_embedding) AS similarity
	FROM code_examples ce
	WHERE (filter = '{}'::jsonb OR ce.metadata @> filter)
		AND (source_filter IS NULL OR ce.source_id = source_filter)
	ORDER BY ce.embedding <=> query_embedding
	LIMIT match_count;
$$;
`

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

// Package graphstore is the single writer for the knowledge graph: Document
// and Source nodes, typed Entity nodes, MENTIONS edges with accumulating
// counts, and typed entity-to-entity relationships. All writes use MERGE
// semantics so re-ingesting a URL accumulates knowledge instead of
// replacing it.
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Store is the graph store gateway.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
}

// Config configures the graph store connection.
type Config struct {
	// URI of the graph database, e.g. bolt://localhost:7687 (required).
	URI string

	// Username and Password for basic auth.
	Username string
	Password string

	// Database name (default: the server default database).
	Database string

	// Timeout wraps each graph operation (default: 30s).
	Timeout time.Duration
}

// New connects to the graph database, verifies connectivity, and ensures
// the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("graph database URI is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to graph database: %w", err)
	}

	s := &Store{
		driver:   driver,
		database: cfg.Database,
		timeout:  cfg.Timeout,
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// ensureSchema creates uniqueness constraints and indexes. All statements
// are idempotent.
func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT document_id IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE`,
		`CREATE CONSTRAINT source_id IF NOT EXISTS FOR (s:Source) REQUIRE s.id IS UNIQUE`,
		`CREATE INDEX document_source IF NOT EXISTS FOR (d:Document) ON (d.source_id)`,
		`CREATE INDEX document_url IF NOT EXISTS FOR (d:Document) ON (d.url)`,
	}
	for _, label := range EntityLabels {
		statements = append(statements, fmt.Sprintf(
			`CREATE CONSTRAINT %s_name IF NOT EXISTS FOR (e:%s) REQUIRE e.name IS UNIQUE`,
			lowerLabel(label), label))
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	session := s.session(opCtx)
	defer session.Close(opCtx)

	for _, stmt := range statements {
		if _, err := session.Run(opCtx, stmt, nil); err != nil {
			return fmt.Errorf("failed to ensure graph schema: %w", err)
		}
	}
	return nil
}

func lowerLabel(label string) string {
	b := []byte(label)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

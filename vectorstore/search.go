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

package vectorstore

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// Row is one search hit from either table. Summary is only set for code
// example rows; Similarity is only set for semantic hits.
type Row struct {
	ID          string         `json:"id"`
	URL         string         `json:"url"`
	ChunkNumber int            `json:"chunk_number"`
	Content     string         `json:"content"`
	Summary     string         `json:"summary,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	SourceID    string         `json:"source_id"`
	Similarity  float64        `json:"similarity"`
}

// SearchDocuments runs semantic search over document chunks, optionally
// constrained to one source. The query is embedded here; an embedding
// failure yields the zero vector and the search proceeds.
func (s *Store) SearchDocuments(ctx context.Context, query string, matchCount int, sourceID string) ([]Row, error) {
	vec := s.embedder.Embed(ctx, query)

	filter := map[string]any{}
	if sourceID != "" {
		filter["source"] = sourceID
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(opCtx,
		`SELECT id, url, chunk_number, content, metadata, source_id, similarity
		 FROM match_crawled_pages($1, $2, $3)`,
		pgvector.NewVector(vec), matchCount, filter)
	if err != nil {
		return nil, fmt.Errorf("document search failed: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.URL, &r.ChunkNumber, &r.Content, &r.Metadata, &r.SourceID, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan document hit: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SearchCodeExamples runs semantic search over code examples. The query is
// rewritten to bias the embedding toward code before embedding.
func (s *Store) SearchCodeExamples(ctx context.Context, query string, matchCount int, sourceID string) ([]Row, error) {
	enhanced := "Code example for " + query + "\n\nSummary: Example code showing " + query
	vec := s.embedder.Embed(ctx, enhanced)

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	var srcFilter any
	if sourceID != "" {
		srcFilter = sourceID
	}

	rows, err := s.pool.Query(opCtx,
		`SELECT id, url, chunk_number, content, summary, metadata, source_id, similarity
		 FROM match_code_examples($1, $2, '{}'::jsonb, $3)`,
		pgvector.NewVector(vec), matchCount, srcFilter)
	if err != nil {
		return nil, fmt.Errorf("code example search failed: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.URL, &r.ChunkNumber, &r.Content, &r.Summary, &r.Metadata, &r.SourceID, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan code example hit: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// KeywordDocuments runs a case-insensitive substring search over document
// chunk content. Used as the keyword leg of hybrid search.
func (s *Store) KeywordDocuments(ctx context.Context, query string, limit int, sourceID string) ([]Row, error) {
	return s.keywordSearch(ctx, "crawled_pages", false, query, limit, sourceID)
}

// KeywordCodeExamples matches query against code example content or summary.
func (s *Store) KeywordCodeExamples(ctx context.Context, query string, limit int, sourceID string) ([]Row, error) {
	return s.keywordSearch(ctx, "code_examples", true, query, limit, sourceID)
}

func (s *Store) keywordSearch(ctx context.Context, table string, withSummary bool, query string, limit int, sourceID string) ([]Row, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	cols := "id, url, chunk_number, content, metadata, source_id"
	match := "content ILIKE '%' || $1 || '%'"
	if withSummary {
		cols = "id, url, chunk_number, content, summary, metadata, source_id"
		match = "(content ILIKE '%' || $1 || '%' OR summary ILIKE '%' || $1 || '%')"
	}

	sql := fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, cols, table, match)
	args := []any{query}
	if sourceID != "" {
		sql += fmt.Sprintf(` AND source_id = $%d`, len(args)+1)
		args = append(args, sourceID)
	}
	sql += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(opCtx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var scanErr error
		if withSummary {
			scanErr = rows.Scan(&r.ID, &r.URL, &r.ChunkNumber, &r.Content, &r.Summary, &r.Metadata, &r.SourceID)
		} else {
			scanErr = rows.Scan(&r.ID, &r.URL, &r.ChunkNumber, &r.Content, &r.Metadata, &r.SourceID)
		}
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan keyword hit: %w", scanErr)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

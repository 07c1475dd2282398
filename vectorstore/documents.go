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
	"log/slog"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/lodestone/urlutil"
)

// ReplaceDocumentsRequest carries one ingest batch. URLs, Chunks and
// Metadatas are parallel slices: element i is one chunk row.
type ReplaceDocumentsRequest struct {
	URLs      []string
	Chunks    []string
	Metadatas []map[string]any

	// FullDocuments maps url to the complete markdown, used for
	// contextual embedding.
	FullDocuments map[string]string
}

// ReplaceDocuments replaces all chunks for the request's URLs.
//
// The pass: validate URLs, delete existing rows per URL, optionally apply
// contextual embedding, embed, insert in batches. A failed batch insert
// degrades to per-row inserts. Returns the number of rows stored.
func (s *Store) ReplaceDocuments(ctx context.Context, req ReplaceDocumentsRequest) (int, error) {
	if len(req.URLs) != len(req.Chunks) || len(req.Chunks) != len(req.Metadatas) {
		return 0, fmt.Errorf("urls, chunks and metadatas must have equal length")
	}
	if len(req.Chunks) == 0 {
		return 0, nil
	}

	// Unsafe URLs are dropped, not errored.
	rows := make([]docRow, 0, len(req.Chunks))
	chunkNumbers := make(map[string]int)
	for i, url := range req.URLs {
		if !urlutil.IsSafeForStorage(url) {
			slog.Warn("Dropping chunk with unsafe URL", "url", url)
			continue
		}
		n := chunkNumbers[url]
		chunkNumbers[url] = n + 1

		meta := make(map[string]any, len(req.Metadatas[i])+1)
		for k, v := range req.Metadatas[i] {
			meta[k] = v
		}
		meta["chunk_size"] = len(req.Chunks[i])

		rows = append(rows, docRow{
			url:         url,
			chunkNumber: n,
			content:     req.Chunks[i],
			metadata:    meta,
			sourceID:    urlutil.SourceID(url),
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := s.deleteByURL(ctx, "crawled_pages", uniqueURLs(rows)); err != nil {
		return 0, err
	}

	texts := s.embeddingTexts(ctx, rows, req.FullDocuments)
	vectors := s.embedder.EmbedBatch(ctx, texts)

	return s.insertDocRows(ctx, rows, vectors), nil
}

type docRow struct {
	url         string
	chunkNumber int
	content     string
	metadata    map[string]any
	sourceID    string
}

func uniqueURLs(rows []docRow) []string {
	seen := make(map[string]bool, len(rows))
	var urls []string
	for _, r := range rows {
		if !seen[r.url] {
			seen[r.url] = true
			urls = append(urls, r.url)
		}
	}
	return urls
}

// deleteByURL removes existing rows for the URLs. The batch delete
// degrades to per-URL deletes on failure.
func (s *Store) deleteByURL(ctx context.Context, table string, urls []string) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.pool.Exec(opCtx, fmt.Sprintf(`DELETE FROM %s WHERE url = ANY($1)`, table), urls)
	if err == nil {
		return nil
	}
	slog.Warn("Batch delete failed, retrying per URL", "table", table, "error", err)

	for _, url := range urls {
		oneCtx, oneCancel := s.opCtx(ctx)
		_, err := s.pool.Exec(oneCtx, fmt.Sprintf(`DELETE FROM %s WHERE url = $1`, table), url)
		oneCancel()
		if err != nil {
			return fmt.Errorf("failed to delete rows for %s: %w", url, err)
		}
	}
	return nil
}

// embeddingTexts returns the text to embed per row. With a contextualizer
// configured, each chunk is prefixed by its generated context; generation
// runs on a bounded worker pool.
func (s *Store) embeddingTexts(ctx context.Context, rows []docRow, fullDocs map[string]string) []string {
	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.content
	}
	if s.contextualizer == nil || len(fullDocs) == 0 {
		return texts
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.contextualWorker)
	for i := range rows {
		full, ok := fullDocs[rows[i].url]
		if !ok || full == "" {
			continue
		}
		g.Go(func() error {
			prefix := s.contextualizer.ChunkContext(gctx, full, rows[i].content)
			if prefix != "" {
				texts[i] = prefix + "\n---\n" + rows[i].content
				rows[i].metadata["contextual_embedding"] = true
			}
			return nil
		})
	}
	// Workers only annotate; they never fail the batch.
	_ = g.Wait()
	return texts
}

func (s *Store) insertDocRows(ctx context.Context, rows []docRow, vectors [][]float32) int {
	stored := 0
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		stored += s.insertDocBatch(ctx, rows[start:end], vectors[start:end])
	}
	return stored
}

const insertDocSQL = `
	INSERT INTO crawled_pages (id, url, chunk_number, content, metadata, source_id, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (s *Store) insertDocBatch(ctx context.Context, rows []docRow, vectors [][]float32) int {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.pool.Begin(opCtx)
	if err == nil {
		committed := true
		for i, r := range rows {
			if _, err := tx.Exec(opCtx, insertDocSQL,
				uuid.New(), r.url, r.chunkNumber, r.content, r.metadata, r.sourceID,
				pgvector.NewVector(vectors[i])); err != nil {
				committed = false
				break
			}
		}
		if committed {
			if err := tx.Commit(opCtx); err == nil {
				return len(rows)
			}
		} else {
			_ = tx.Rollback(opCtx)
		}
	}

	slog.Warn("Batch insert failed, retrying per row", "batch_size", len(rows))

	// Per-row fallback isolates poisoned rows.
	stored := 0
	for i, r := range rows {
		rowCtx, rowCancel := s.opCtx(ctx)
		_, err := s.pool.Exec(rowCtx, insertDocSQL,
			uuid.New(), r.url, r.chunkNumber, r.content, r.metadata, r.sourceID,
			pgvector.NewVector(vectors[i]))
		rowCancel()
		if err != nil {
			slog.Warn("Failed to insert chunk", "url", r.url, "chunk_number", r.chunkNumber, "error", err)
			continue
		}
		stored++
	}
	return stored
}

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

	"github.com/kadirpekel/lodestone/urlutil"
)

// ReplaceCodeExamplesRequest carries one code example batch. URLs, Codes,
// Summaries and Metadatas are parallel slices.
type ReplaceCodeExamplesRequest struct {
	URLs      []string
	Codes     []string
	Summaries []string
	Metadatas []map[string]any
}

// ReplaceCodeExamples replaces all code examples for the request's URLs.
// The embedding input is the code joined with its summary, so searches hit
// on either. Same degradation path as ReplaceDocuments.
func (s *Store) ReplaceCodeExamples(ctx context.Context, req ReplaceCodeExamplesRequest) (int, error) {
	if len(req.URLs) != len(req.Codes) || len(req.Codes) != len(req.Summaries) || len(req.Summaries) != len(req.Metadatas) {
		return 0, fmt.Errorf("urls, codes, summaries and metadatas must have equal length")
	}
	if len(req.Codes) == 0 {
		return 0, nil
	}

	rows := make([]codeRow, 0, len(req.Codes))
	chunkNumbers := make(map[string]int)
	for i, url := range req.URLs {
		if !urlutil.IsSafeForStorage(url) {
			slog.Warn("Dropping code example with unsafe URL", "url", url)
			continue
		}
		n := chunkNumbers[url]
		chunkNumbers[url] = n + 1

		meta := make(map[string]any, len(req.Metadatas[i]))
		for k, v := range req.Metadatas[i] {
			meta[k] = v
		}

		rows = append(rows, codeRow{
			url:         url,
			chunkNumber: n,
			code:        req.Codes[i],
			summary:     req.Summaries[i],
			metadata:    meta,
			sourceID:    urlutil.SourceID(url),
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	urls := make([]string, 0, len(chunkNumbers))
	seen := make(map[string]bool, len(chunkNumbers))
	for _, r := range rows {
		if !seen[r.url] {
			seen[r.url] = true
			urls = append(urls, r.url)
		}
	}
	if err := s.deleteByURL(ctx, "code_examples", urls); err != nil {
		return 0, err
	}

	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.code + "\n\nSummary: " + r.summary
	}
	vectors := s.embedder.EmbedBatch(ctx, texts)

	return s.insertCodeRows(ctx, rows, vectors), nil
}

type codeRow struct {
	url         string
	chunkNumber int
	code        string
	summary     string
	metadata    map[string]any
	sourceID    string
}

const insertCodeSQL = `
	INSERT INTO code_examples (id, url, chunk_number, content, summary, metadata, source_id, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (s *Store) insertCodeRows(ctx context.Context, rows []codeRow, vectors [][]float32) int {
	stored := 0
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		stored += s.insertCodeBatch(ctx, rows[start:end], vectors[start:end])
	}
	return stored
}

func (s *Store) insertCodeBatch(ctx context.Context, rows []codeRow, vectors [][]float32) int {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.pool.Begin(opCtx)
	if err == nil {
		committed := true
		for i, r := range rows {
			if _, err := tx.Exec(opCtx, insertCodeSQL,
				uuid.New(), r.url, r.chunkNumber, r.code, r.summary, r.metadata, r.sourceID,
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

	slog.Warn("Code example batch insert failed, retrying per row", "batch_size", len(rows))

	stored := 0
	for i, r := range rows {
		rowCtx, rowCancel := s.opCtx(ctx)
		_, err := s.pool.Exec(rowCtx, insertCodeSQL,
			uuid.New(), r.url, r.chunkNumber, r.code, r.summary, r.metadata, r.sourceID,
			pgvector.NewVector(vectors[i]))
		rowCancel()
		if err != nil {
			slog.Warn("Failed to insert code example", "url", r.url, "chunk_number", r.chunkNumber, "error", err)
			continue
		}
		stored++
	}
	return stored
}

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
	"time"
)

// Source is one aggregate per authority/host.
type Source struct {
	SourceID       string    `json:"source_id"`
	Summary        string    `json:"summary"`
	TotalWordCount int       `json:"total_word_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UpsertSource creates or refreshes a source record. Word counts
// accumulate across re-crawls; the summary is replaced.
//
// Callers must upsert the source before inserting any chunk that
// references it.
func (s *Store) UpsertSource(ctx context.Context, sourceID, summary string, totalWords int) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sources (source_id, summary, total_word_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			total_word_count = sources.total_word_count + EXCLUDED.total_word_count,
			updated_at = NOW()`,
		sourceID, summary, totalWords)
	if err != nil {
		return fmt.Errorf("failed to upsert source %s: %w", sourceID, err)
	}
	return nil
}

// ListSources returns all sources ordered by source_id.
func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT source_id, COALESCE(summary, ''), total_word_count, created_at, updated_at
		FROM sources ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.SourceID, &src.Summary, &src.TotalWordCount, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

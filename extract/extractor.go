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

// Package extract turns document chunks into graph entities and
// relationships. The primary path asks the LLM for structured JSON; a
// rule-based fallback covers deployments without an LLM configured.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/lodestone/graphstore"
	"github.com/kadirpekel/lodestone/llm"
)

// DefaultMaxConcurrentChunks bounds LLM calls in flight per document.
const DefaultMaxConcurrentChunks = 3

const systemPrompt = `You are a knowledge graph extraction assistant. Extract entities and relationships from technical documentation.

Entity types (use exactly one per entity): Concept, Technology, Configuration, Person, Organization, Product.

Relationship types (use exactly one per relationship): REQUIRES, DEPENDS_ON, USES, IMPLEMENTS, EXTENDS, PART_OF, CONFIGURES, ENABLES, PROVIDES, ALTERNATIVE_TO, SIMILAR_TO, PREREQUISITE_FOR, DOCUMENTED_IN, RELATED_TO.

Guidelines:
- Extract 5-20 entities per text.
- Use consistent casing for entity names (e.g. always "PostgreSQL", never "postgresql").
- Skip generic nouns like "code", "system", "file", "user".
- Count how many times each entity is mentioned.

Respond with JSON only:
{"entities": [{"type": "...", "name": "...", "description": "...", "mentions": 1}], "relationships": [{"from_entity": "...", "to_entity": "...", "relationship_type": "...", "description": "...", "confidence": 0.9}]}`

// Result is the merged extraction output for one document.
type Result struct {
	Entities      []graphstore.Entity
	Relationships []graphstore.Relationship
}

// Extractor extracts entities from document chunks.
type Extractor struct {
	client              *llm.Client
	maxConcurrentChunks int
}

// Config configures the extractor.
type Config struct {
	// Client is the LLM client. When nil the rule-based fallback runs
	// instead.
	Client *llm.Client

	// MaxConcurrentChunks bounds chunks extracted in parallel
	// (default: 3).
	MaxConcurrentChunks int
}

// New creates an extractor.
func New(cfg Config) *Extractor {
	if cfg.MaxConcurrentChunks <= 0 {
		cfg.MaxConcurrentChunks = DefaultMaxConcurrentChunks
	}
	return &Extractor{
		client:              cfg.Client,
		maxConcurrentChunks: cfg.MaxConcurrentChunks,
	}
}

// ExtractDocument extracts entities and relationships from all chunks of
// one document and merges the per-chunk results. Chunk failures are logged
// and skipped; the result covers whatever succeeded.
func (e *Extractor) ExtractDocument(ctx context.Context, chunks []string) Result {
	if e.client == nil {
		return e.extractRuleBased(chunks)
	}

	sem := semaphore.NewWeighted(int64(e.maxConcurrentChunks))
	results := make([]Result, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			r, err := e.extractChunk(ctx, chunk)
			if err != nil {
				slog.Warn("Entity extraction failed for chunk", "chunk", i, "error", err)
				return
			}
			results[i] = r
		}()
	}
	wg.Wait()

	return Merge(results)
}

func (e *Extractor) extractChunk(ctx context.Context, chunk string) (Result, error) {
	content, err := e.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: chunk},
		},
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		return Result{}, err
	}
	return parseExtraction(content)
}

// parseExtraction decodes the LLM's JSON, tolerating markdown code fences
// around the payload.
func parseExtraction(content string) (Result, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	var parsed struct {
		Entities      []graphstore.Entity       `json:"entities"`
		Relationships []graphstore.Relationship `json:"relationships"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return Result{}, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	return Result{Entities: parsed.Entities, Relationships: parsed.Relationships}, nil
}

// Merge combines per-chunk results. Entities dedupe on trimmed name,
// summing mentions and keeping the longest description. Relationships
// dedupe on the (from, to, type) triple. Output order is deterministic.
func Merge(results []Result) Result {
	entityByName := make(map[string]*graphstore.Entity)
	var entityOrder []string

	relSeen := make(map[string]bool)
	var relationships []graphstore.Relationship

	for _, r := range results {
		for _, e := range r.Entities {
			name := strings.TrimSpace(e.Name)
			if name == "" {
				continue
			}
			if existing, ok := entityByName[name]; ok {
				existing.Mentions += maxMentions(e.Mentions)
				if len(e.Description) > len(existing.Description) {
					existing.Description = e.Description
				}
				continue
			}
			copied := e
			copied.Name = name
			copied.Mentions = maxMentions(e.Mentions)
			entityByName[name] = &copied
			entityOrder = append(entityOrder, name)
		}
		for _, rel := range r.Relationships {
			from := strings.TrimSpace(rel.FromEntity)
			to := strings.TrimSpace(rel.ToEntity)
			if from == "" || to == "" {
				continue
			}
			relType := graphstore.RelationshipType(rel.RelationshipType)
			key := from + "\x00" + to + "\x00" + relType
			if relSeen[key] {
				continue
			}
			relSeen[key] = true
			rel.FromEntity = from
			rel.ToEntity = to
			rel.RelationshipType = relType
			relationships = append(relationships, rel)
		}
	}

	sort.Strings(entityOrder)
	entities := make([]graphstore.Entity, 0, len(entityOrder))
	for _, name := range entityOrder {
		entities = append(entities, *entityByName[name])
	}
	return Result{Entities: entities, Relationships: relationships}
}

func maxMentions(m int) int {
	if m < 1 {
		return 1
	}
	return m
}

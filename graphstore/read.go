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

package graphstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// RelatedEntity is one neighbor in an entity's context.
type RelatedEntity struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	RelationshipType string `json:"relationship_type"`
	Direction        string `json:"direction"`
}

// EntityContext is one entity with its bounded neighborhood.
type EntityContext struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Related     []RelatedEntity `json:"related_entities"`
	Documents   []string        `json:"mentioned_in"`
}

// GetEntityContext returns one entity with up to maxRelated neighbors
// within maxHops hops and the URLs of documents that mention it. Returns
// nil when the entity does not exist.
func (s *Store) GetEntityContext(ctx context.Context, name string, maxHops, maxRelated int) (*EntityContext, error) {
	if maxHops <= 0 {
		maxHops = 2
	}
	if maxHops > 3 {
		maxHops = 3
	}
	if maxRelated <= 0 {
		maxRelated = 10
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	session := s.session(opCtx)
	defer session.Close(opCtx)

	// Variable-length bounds cannot be parameterized; maxHops is clamped
	// to a closed range above.
	query := fmt.Sprintf(`
		MATCH (e {name: $name})
		WHERE NOT e:Document AND NOT e:Source
		OPTIONAL MATCH (e)-[out*1..%[1]d]->(other)
		WHERE NOT other:Document AND NOT other:Source
		WITH e, collect(DISTINCT {name: other.name, type: other.type, rel: type(head(out)), direction: 'outgoing'})[0..$max] AS outgoing
		OPTIONAL MATCH (other2)-[rin*1..%[1]d]->(e)
		WHERE NOT other2:Document AND NOT other2:Source
		WITH e, outgoing, collect(DISTINCT {name: other2.name, type: other2.type, rel: type(last(rin)), direction: 'incoming'})[0..$max] AS incoming
		OPTIONAL MATCH (d:Document)-[:MENTIONS]->(e)
		RETURN e.name AS name, e.type AS type, e.description AS description,
			outgoing, incoming, collect(DISTINCT d.url) AS documents`, maxHops)

	result, err := session.ExecuteRead(opCtx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(opCtx, query,
			map[string]any{"name": name, "max": maxRelated})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(opCtx)
		if err != nil {
			return nil, err
		}
		return record.AsMap(), nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "result contains no more records") {
			return nil, nil
		}
		return nil, fmt.Errorf("entity context query failed: %w", err)
	}

	row := result.(map[string]any)
	ec := &EntityContext{
		Name:        stringValue(row["name"]),
		Type:        stringValue(row["type"]),
		Description: stringValue(row["description"]),
	}
	for _, key := range []string{"outgoing", "incoming"} {
		list, _ := row[key].([]any)
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok || stringValue(m["name"]) == "" {
				continue
			}
			ec.Related = append(ec.Related, RelatedEntity{
				Name:             stringValue(m["name"]),
				Type:             stringValue(m["type"]),
				RelationshipType: stringValue(m["rel"]),
				Direction:        stringValue(m["direction"]),
			})
		}
	}
	docs, _ := row["documents"].([]any)
	for _, d := range docs {
		if url := stringValue(d); url != "" {
			ec.Documents = append(ec.Documents, url)
		}
	}
	return ec, nil
}

// EnrichedEntity is one top entity returned by document enrichment.
type EnrichedEntity struct {
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	Description   string          `json:"description"`
	MentionCount  int64           `json:"mention_count"`
	Relationships []RelatedEntity `json:"relationships"`
}

// Enrichment is the graph context for a set of documents.
type Enrichment struct {
	Entities []EnrichedEntity `json:"entities"`

	// Block is a pre-formatted markdown section to splice into an LLM
	// prompt.
	Block string `json:"-"`
}

// EnrichDocuments returns the top entities mentioned by the given
// documents, ordered by mention count, each with its 1-hop relationships.
// Best effort: on failure it logs nothing here and returns an empty
// enrichment with the error for the caller to log.
func (s *Store) EnrichDocuments(ctx context.Context, documentIDs []string, maxEntities int) (*Enrichment, error) {
	if len(documentIDs) == 0 {
		return &Enrichment{}, nil
	}
	if maxEntities <= 0 {
		maxEntities = 10
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	session := s.session(opCtx)
	defer session.Close(opCtx)

	result, err := session.ExecuteRead(opCtx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(opCtx, `
			MATCH (d:Document)-[m:MENTIONS]->(e)
			WHERE d.id IN $document_ids
			WITH e, sum(m.count) AS mention_count
			ORDER BY mention_count DESC
			LIMIT $max
			OPTIONAL MATCH (e)-[r]->(other)
			WHERE NOT other:Document AND NOT other:Source
			RETURN e.name AS name, e.type AS type, e.description AS description,
				mention_count,
				collect({name: other.name, type: other.type, rel: type(r)}) AS relationships`,
			map[string]any{"document_ids": documentIDs, "max": maxEntities})
		if err != nil {
			return nil, err
		}
		return res.Collect(opCtx)
	})
	if err != nil {
		return &Enrichment{}, fmt.Errorf("document enrichment query failed: %w", err)
	}

	enrichment := &Enrichment{}
	for _, record := range result.([]*neo4j.Record) {
		row := record.AsMap()
		entity := EnrichedEntity{
			Name:        stringValue(row["name"]),
			Type:        stringValue(row["type"]),
			Description: stringValue(row["description"]),
		}
		if c, ok := row["mention_count"].(int64); ok {
			entity.MentionCount = c
		}
		rels, _ := row["relationships"].([]any)
		for _, item := range rels {
			m, ok := item.(map[string]any)
			if !ok || stringValue(m["name"]) == "" {
				continue
			}
			entity.Relationships = append(entity.Relationships, RelatedEntity{
				Name:             stringValue(m["name"]),
				Type:             stringValue(m["type"]),
				RelationshipType: stringValue(m["rel"]),
				Direction:        "outgoing",
			})
		}
		enrichment.Entities = append(enrichment.Entities, entity)
	}
	enrichment.Block = FormatEnrichmentBlock(enrichment.Entities)
	return enrichment, nil
}

// FormatEnrichmentBlock renders entities as a markdown section for an LLM
// prompt. Empty input renders an empty string.
func FormatEnrichmentBlock(entities []EnrichedEntity) string {
	if len(entities) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Knowledge Graph Context\n\n")
	for _, e := range entities {
		b.WriteString(fmt.Sprintf("- **%s** (%s", e.Name, e.Type))
		if e.MentionCount > 0 {
			b.WriteString(fmt.Sprintf(", mentioned %d times", e.MentionCount))
		}
		b.WriteString(")")
		if e.Description != "" {
			b.WriteString(": " + e.Description)
		}
		b.WriteString("\n")
		for _, r := range e.Relationships {
			b.WriteString(fmt.Sprintf("  - %s %s %s\n", e.Name, r.RelationshipType, r.Name))
		}
	}
	return b.String()
}

var writeClausePattern = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|FOREACH)\b|(?i)\bCALL\s*\{`)

// IsWriteQuery reports whether a Cypher query contains write clauses.
// Pass-through queries from clients are restricted to reads.
func IsWriteQuery(cypher string) bool {
	return writeClausePattern.MatchString(cypher)
}

// RunReadQuery executes an arbitrary read-only Cypher query and returns the
// records as maps. Queries containing write clauses are rejected.
func (s *Store) RunReadQuery(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	if IsWriteQuery(cypher) {
		return nil, fmt.Errorf("write clauses are not allowed in pass-through queries")
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	session := s.session(opCtx)
	defer session.Close(opCtx)

	result, err := session.ExecuteRead(opCtx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(opCtx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(opCtx)
	})
	if err != nil {
		return nil, fmt.Errorf("graph query failed: %w", err)
	}

	var rows []map[string]any
	for _, record := range result.([]*neo4j.Record) {
		rows = append(rows, record.AsMap())
	}
	return rows, nil
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Document is one crawled URL's graph node.
type Document struct {
	ID       string
	SourceID string
	URL      string
	Title    string
	Metadata map[string]any
}

// Entity is one extracted entity with its per-document mention count.
type Entity struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Mentions    int    `json:"mentions"`
}

// Relationship is one typed edge between two entities.
type Relationship struct {
	FromEntity       string  `json:"from_entity"`
	ToEntity         string  `json:"to_entity"`
	RelationshipType string  `json:"relationship_type"`
	Description      string  `json:"description"`
	Confidence       float64 `json:"confidence"`
}

// StoreDocument merges the document node, its source, and the FROM_SOURCE
// edge. Graph writes are best effort; failures are logged and reported as
// false so the enclosing ingest continues.
func (s *Store) StoreDocument(ctx context.Context, doc Document) bool {
	err := s.write(ctx, `
		MERGE (src:Source {id: $source_id})
		ON CREATE SET src.created_at = datetime()
		MERGE (d:Document {id: $id})
		SET d.source_id = $source_id,
			d.url = $url,
			d.title = $title,
			d.metadata = $metadata,
			d.updated_at = datetime()
		MERGE (d)-[:FROM_SOURCE]->(src)`,
		map[string]any{
			"id":        doc.ID,
			"source_id": doc.SourceID,
			"url":       doc.URL,
			"title":     doc.Title,
			"metadata":  metadataString(doc.Metadata),
		})
	if err != nil {
		slog.Warn("Failed to store document node", "document_id", doc.ID, "error", err)
		return false
	}
	return true
}

// StoreEntities merges the entities and their MENTIONS edges from the
// document. The mention count accumulates across re-ingests; descriptions
// are set only when currently empty. Returns the number stored.
func (s *Store) StoreEntities(ctx context.Context, documentID string, entities []Entity) int {
	stored := 0
	for _, e := range entities {
		if e.Name == "" {
			continue
		}
		mentions := e.Mentions
		if mentions < 1 {
			mentions = 1
		}
		err := s.write(ctx, entityMergeQuery(EntityLabel(e.Type)), map[string]any{
			"document_id": documentID,
			"name":        e.Name,
			"description": e.Description,
			"type":        EntityLabel(e.Type),
			"mentions":    mentions,
		})
		if err != nil {
			slog.Warn("Failed to store entity", "entity", e.Name, "error", err)
			continue
		}
		stored++
	}
	return stored
}

// entityMergeQuery builds the per-entity upsert. The label comes from the
// closed alias table, never from input, so interpolating it is safe.
//
// The description backfill must not filter rows: a WITH..WHERE between the
// entity merge and the MENTIONS merge drops every entity whose description
// is already set, so the edge would never be written for them. FOREACH over
// a CASE keeps the row flowing regardless.
func entityMergeQuery(label string) string {
	return fmt.Sprintf(`
		MATCH (d:Document {id: $document_id})
		MERGE (e:%s {name: $name})
		ON CREATE SET e.description = $description, e.type = $type
		SET e.updated_at = datetime()
		FOREACH (_ IN CASE WHEN e.description IS NULL OR e.description = '' THEN [1] ELSE [] END |
			SET e.description = $description)
		MERGE (d)-[m:MENTIONS]->(e)
		ON CREATE SET m.count = $mentions
		ON MATCH SET m.count = m.count + $mentions
		SET m.updated_at = datetime()`,
		label)
}

// StoreRelationships merges typed edges between existing entities, upserted
// on (from, to, type). Returns the number stored.
func (s *Store) StoreRelationships(ctx context.Context, relationships []Relationship) int {
	stored := 0
	for _, r := range relationships {
		if r.FromEntity == "" || r.ToEntity == "" {
			continue
		}
		relType := RelationshipType(r.RelationshipType)
		query := fmt.Sprintf(`
			MATCH (from {name: $from}), (to {name: $to})
			MERGE (from)-[r:%s]->(to)
			SET r.description = $description,
				r.confidence = $confidence,
				r.updated_at = datetime()`,
			relType)

		summary, err := s.writeSummary(ctx, query, map[string]any{
			"from":        r.FromEntity,
			"to":          r.ToEntity,
			"description": r.Description,
			"confidence":  r.Confidence,
		})
		if err != nil {
			slog.Warn("Failed to store relationship",
				"from", r.FromEntity, "to", r.ToEntity, "type", relType, "error", err)
			continue
		}
		if !relationshipWritten(summary.Counters()) {
			slog.Warn("Relationship endpoints not found, skipping",
				"from", r.FromEntity, "to", r.ToEntity, "type", relType)
			continue
		}
		stored++
	}
	return stored
}

// relationshipWritten reports whether the merge touched the graph. A MATCH
// on a missing endpoint yields zero rows and therefore zero counter updates,
// even though the query itself succeeds.
func relationshipWritten(c neo4j.Counters) bool {
	return c.RelationshipsCreated() > 0 || c.PropertiesSet() > 0
}

func (s *Store) write(ctx context.Context, query string, params map[string]any) error {
	_, err := s.writeSummary(ctx, query, params)
	return err
}

func (s *Store) writeSummary(ctx context.Context, query string, params map[string]any) (neo4j.ResultSummary, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	session := s.session(opCtx)
	defer session.Close(opCtx)

	summary, err := session.ExecuteWrite(opCtx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(opCtx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(opCtx)
	})
	if err != nil {
		return nil, err
	}
	return summary.(neo4j.ResultSummary), nil
}

// metadataString flattens metadata to JSON for storage as a node property.
// Graph properties cannot hold nested maps.
func metadataString(metadata map[string]any) string {
	if len(metadata) == 0 {
		return "{}"
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(b)
}

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

package extract

import (
	"context"
	"testing"

	"github.com/kadirpekel/lodestone/graphstore"
)

func TestMerge_EntitiesSumMentionsKeepLongestDescription(t *testing.T) {
	merged := Merge([]Result{
		{Entities: []graphstore.Entity{
			{Type: "Technology", Name: "Redis", Description: "store", Mentions: 3},
		}},
		{Entities: []graphstore.Entity{
			{Type: "Technology", Name: " Redis ", Description: "in-memory data store", Mentions: 2},
			{Type: "Concept", Name: "Caching", Mentions: 1},
		}},
	})

	if len(merged.Entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(merged.Entities))
	}
	var redis *graphstore.Entity
	for i := range merged.Entities {
		if merged.Entities[i].Name == "Redis" {
			redis = &merged.Entities[i]
		}
	}
	if redis == nil {
		t.Fatal("Redis entity missing after merge")
	}
	if redis.Mentions != 5 {
		t.Errorf("mentions = %d, want 5", redis.Mentions)
	}
	if redis.Description != "in-memory data store" {
		t.Errorf("description = %q, want the longest one", redis.Description)
	}
}

func TestMerge_RelationshipsDedupeOnTriple(t *testing.T) {
	rel := graphstore.Relationship{FromEntity: "A", ToEntity: "B", RelationshipType: "USES", Confidence: 0.9}
	merged := Merge([]Result{
		{Relationships: []graphstore.Relationship{rel}},
		{Relationships: []graphstore.Relationship{rel, {FromEntity: "A", ToEntity: "B", RelationshipType: "REQUIRES"}}},
	})
	if len(merged.Relationships) != 2 {
		t.Fatalf("got %d relationships, want 2", len(merged.Relationships))
	}
}

func TestMerge_NormalizesRelationshipType(t *testing.T) {
	merged := Merge([]Result{
		{Relationships: []graphstore.Relationship{
			{FromEntity: "A", ToEntity: "B", RelationshipType: "depends on"},
		}},
	})
	if merged.Relationships[0].RelationshipType != "DEPENDS_ON" {
		t.Errorf("type = %q, want DEPENDS_ON", merged.Relationships[0].RelationshipType)
	}
}

func TestMerge_ZeroMentionsCountAsOne(t *testing.T) {
	merged := Merge([]Result{
		{Entities: []graphstore.Entity{{Name: "Thing"}}},
	})
	if merged.Entities[0].Mentions != 1 {
		t.Errorf("mentions = %d, want 1", merged.Entities[0].Mentions)
	}
}

func TestParseExtraction(t *testing.T) {
	raw := `{"entities": [{"type": "Technology", "name": "Go", "mentions": 2}], "relationships": []}`
	r, err := parseExtraction(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Entities) != 1 || r.Entities[0].Name != "Go" {
		t.Errorf("entities = %+v", r.Entities)
	}
}

func TestParseExtraction_FencedJSON(t *testing.T) {
	raw := "```json\n{\"entities\": [{\"name\": \"Go\"}], \"relationships\": []}\n```"
	r, err := parseExtraction(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(r.Entities))
	}
}

func TestParseExtraction_Invalid(t *testing.T) {
	if _, err := parseExtraction("not json at all"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestExtractRuleBased(t *testing.T) {
	e := New(Config{})
	result := e.ExtractDocument(context.Background(), []string{
		"Deploy the Django app with Docker. Set DATABASE_URL and REDIS_URL before starting. Docker keeps things reproducible.",
	})

	byName := map[string]graphstore.Entity{}
	for _, ent := range result.Entities {
		byName[ent.Name] = ent
	}

	docker, ok := byName["Docker"]
	if !ok {
		t.Fatal("expected Docker to be extracted")
	}
	if docker.Type != "Technology" {
		t.Errorf("Docker type = %q, want Technology", docker.Type)
	}
	if docker.Mentions != 2 {
		t.Errorf("Docker mentions = %d, want 2", docker.Mentions)
	}

	if dbURL, ok := byName["DATABASE_URL"]; !ok || dbURL.Type != "Configuration" {
		t.Errorf("DATABASE_URL = %+v, want a Configuration entity", dbURL)
	}
	if _, ok := byName["Django"]; !ok {
		t.Error("expected Django to be extracted")
	}
	if len(result.Relationships) != 0 {
		t.Errorf("rule-based extraction should not infer relationships, got %d", len(result.Relationships))
	}
}

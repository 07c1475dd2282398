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
	"strings"
	"testing"
)

func TestReplaceDocuments_LengthMismatch(t *testing.T) {
	s := &Store{}
	_, err := s.ReplaceDocuments(context.Background(), ReplaceDocumentsRequest{
		URLs:      []string{"https://example.com/a", "https://example.com/b"},
		Chunks:    []string{"only one"},
		Metadatas: []map[string]any{{}},
	})
	if err == nil {
		t.Fatal("expected error for mismatched slice lengths")
	}
}

func TestReplaceDocuments_Empty(t *testing.T) {
	s := &Store{}
	n, err := s.ReplaceDocuments(context.Background(), ReplaceDocumentsRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("stored = %d, want 0", n)
	}
}

func TestReplaceDocuments_AllUnsafeURLsDropped(t *testing.T) {
	// Every chunk has an unsafe URL, so the call returns before any
	// database work.
	s := &Store{}
	n, err := s.ReplaceDocuments(context.Background(), ReplaceDocumentsRequest{
		URLs:      []string{"https://example.com/a'; DROP TABLE sources; --"},
		Chunks:    []string{"content"},
		Metadatas: []map[string]any{{}},
	})
	if err != nil {
		t.Fatalf("unsafe URLs must be dropped, not errored: %v", err)
	}
	if n != 0 {
		t.Errorf("stored = %d, want 0", n)
	}
}

func TestReplaceCodeExamples_LengthMismatch(t *testing.T) {
	s := &Store{}
	_, err := s.ReplaceCodeExamples(context.Background(), ReplaceCodeExamplesRequest{
		URLs:      []string{"https://example.com/a"},
		Codes:     []string{"code"},
		Summaries: []string{},
		Metadatas: []map[string]any{{}},
	})
	if err == nil {
		t.Fatal("expected error for mismatched slice lengths")
	}
}

func TestUniqueURLs(t *testing.T) {
	rows := []docRow{
		{url: "https://example.com/a"},
		{url: "https://example.com/b"},
		{url: "https://example.com/a"},
		{url: "https://example.com/c"},
		{url: "https://example.com/b"},
	}
	got := uniqueURLs(rows)
	want := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}
	if len(got) != len(want) {
		t.Fatalf("got %d urls, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("url %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSchemaDDL_Dimension(t *testing.T) {
	// Every vector column and function parameter must carry the same
	// dimension.
	ddl := strings.ReplaceAll(schemaDDL, "%[1]d", "1536")
	if strings.Contains(ddl, "%") {
		t.Error("schema DDL contains an unexpanded placeholder")
	}
	if got := strings.Count(ddl, "vector(1536)"); got != 4 {
		t.Errorf("vector(1536) appears %d times, want 4", got)
	}
}

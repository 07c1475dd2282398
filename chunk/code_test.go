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

package chunk

import (
	"strings"
	"testing"
)

func fencedBlock(lang, body string) string {
	return "```" + lang + "\n" + body + "\n```"
}

func TestExtractCodeBlocks_MinLength(t *testing.T) {
	long := strings.Repeat("x = 1\n", 250)  // ~1500 chars
	short := strings.Repeat("y = 2\n", 100) // 600 chars, below the minimum

	md := "Intro text.\n\n" + fencedBlock("python", long) + "\n\nMiddle.\n\n" + fencedBlock("python", short) + "\n\nEnd."

	blocks := ExtractCodeBlocks(md, 1000)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Language != "python" {
		t.Errorf("language = %q, want python", blocks[0].Language)
	}
	if !strings.HasPrefix(blocks[0].Code, "x = 1") {
		t.Errorf("unexpected code prefix %q", blocks[0].Code[:10])
	}
}

func TestExtractCodeBlocks_VerbatimCode(t *testing.T) {
	body := "def f():\n\tif x:\n\t\treturn  1  " + strings.Repeat("\n# pad", 300)
	md := fencedBlock("", body)

	blocks := ExtractCodeBlocks(md, 100)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Code != body {
		t.Error("code was not preserved verbatim")
	}
}

func TestExtractCodeBlocks_LanguageToken(t *testing.T) {
	pad := strings.Repeat("line\n", 300)

	cases := []struct {
		name     string
		first    string
		wantLang string
	}{
		{"simple", "go", "go"},
		{"empty", "", ""},
		{"too long", strings.Repeat("q", 21), ""},
		{"has whitespace", "not a language", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			md := "```" + tc.first + "\n" + pad + "```"
			blocks := ExtractCodeBlocks(md, 100)
			if len(blocks) != 1 {
				t.Fatalf("expected 1 block, got %d", len(blocks))
			}
			if blocks[0].Language != tc.wantLang {
				t.Errorf("language = %q, want %q", blocks[0].Language, tc.wantLang)
			}
		})
	}
}

func TestExtractCodeBlocks_Context(t *testing.T) {
	before := strings.Repeat("b", 1500)
	after := strings.Repeat("a", 1500)
	code := strings.Repeat("c", 1200)
	md := before + "\n" + fencedBlock("go", code) + "\n" + after

	blocks := ExtractCodeBlocks(md, 1000)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if len(blocks[0].ContextBefore) > 1000 {
		t.Errorf("context before too long: %d", len(blocks[0].ContextBefore))
	}
	if len(blocks[0].ContextAfter) > 1000 {
		t.Errorf("context after too long: %d", len(blocks[0].ContextAfter))
	}
	if !strings.Contains(blocks[0].ContextBefore, "b") || !strings.Contains(blocks[0].ContextAfter, "a") {
		t.Error("context windows missing surrounding text")
	}
}

func TestExtractCodeBlocks_UnmatchedFence(t *testing.T) {
	md := "text\n```go\n" + strings.Repeat("c", 1200)
	if blocks := ExtractCodeBlocks(md, 1000); len(blocks) != 0 {
		t.Errorf("unmatched fence should yield no blocks, got %d", len(blocks))
	}
}

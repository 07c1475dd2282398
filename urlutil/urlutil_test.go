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

package urlutil

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		url  string
		want Kind
	}{
		{"https://example.com/sitemap.xml", KindSitemap},
		{"https://example.com/sitemap_index.xml", KindSitemap},
		{"https://example.com/docs/sitemap-pages.xml", KindSitemap},
		{"https://example.com/llms.txt", KindTextFile},
		{"https://example.com/robots.txt", KindTextFile},
		{"https://example.com/docs/intro", KindWebpage},
		{"https://example.com/", KindWebpage},
	}

	for _, tc := range cases {
		if got := Classify(tc.url); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestIsSafeForStorage(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want bool
	}{
		{"plain https", "https://example.com/docs", true},
		{"ftp allowed", "ftp://example.com/file", true},
		{"no scheme", "example.com/docs", false},
		{"file scheme", "file:///etc/passwd", false},
		{"no host", "https:///docs", false},
		{"quote in path", "https://example.com/a'b", false},
		{"comment token", "https://example.com/a--b", false},
		{"sql keyword", "https://example.com/union%20select", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSafeForStorage(tc.url); got != tc.want {
				t.Errorf("IsSafeForStorage(%q) = %v, want %v", tc.url, got, tc.want)
			}
		})
	}
}

func TestIsSafeForStorage_LengthLimit(t *testing.T) {
	long := "https://example.com/"
	for len(long) <= MaxStorableURLLength {
		long += "a"
	}
	if IsSafeForStorage(long) {
		t.Error("expected URL over length limit to be rejected")
	}
}

func TestSourceID(t *testing.T) {
	if got := SourceID("https://docs.example.com/intro"); got != "docs.example.com" {
		t.Errorf("SourceID = %q, want docs.example.com", got)
	}
	// Authority-less URL falls back to the path.
	if got := SourceID("/local/path.txt"); got != "/local/path.txt" {
		t.Errorf("SourceID = %q, want /local/path.txt", got)
	}
}

func TestDocumentID_Stable(t *testing.T) {
	a := DocumentID("https://example.com/docs")
	b := DocumentID("https://example.com/docs")
	if a != b {
		t.Fatalf("DocumentID not stable: %q vs %q", a, b)
	}
	if len(a) != 32 {
		t.Errorf("expected 128-bit hex digest (32 chars), got %d", len(a))
	}
	if a == DocumentID("https://example.com/docs2") {
		t.Error("distinct URLs produced the same document id")
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://example.com/docs#install", "https://example.com/docs"},
		{"https://example.com/docs/", "https://example.com/docs"},
		{"https://example.com/", "https://example.com/"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsInternal(t *testing.T) {
	if !IsInternal("https://example.com/docs", "https://example.com/about") {
		t.Error("same-host link should be internal")
	}
	if IsInternal("https://example.com/docs", "https://other.com/about") {
		t.Error("cross-host link should not be internal")
	}
}

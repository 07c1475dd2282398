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

package crawl

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// fakeFetcher serves canned pages and records fetch order.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]*Page
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()

	page, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("not found: %s", url)
	}
	return page, nil
}

func TestSingleStrategy(t *testing.T) {
	f := &fakeFetcher{pages: map[string]*Page{
		"https://example.com/page": {URL: "https://example.com/page", Title: "T", Markdown: "# Hello"},
	}}

	result, err := (&SingleStrategy{}).Crawl(context.Background(), f, "https://example.com/page", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.PagesCrawled != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.Documents[0].Markdown != "# Hello" {
		t.Errorf("markdown = %q", result.Documents[0].Markdown)
	}
}

func TestSingleStrategy_FetchError(t *testing.T) {
	f := &fakeFetcher{pages: map[string]*Page{}}
	if _, err := (&SingleStrategy{}).Crawl(context.Background(), f, "https://example.com/missing", Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseSitemap_NamespaceAgnostic(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want int
	}{
		{
			name: "standard namespace",
			xml: `<?xml version="1.0"?>
				<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
					<url><loc>https://example.com/a</loc></url>
					<url><loc> https://example.com/b </loc></url>
				</urlset>`,
			want: 2,
		},
		{
			name: "no namespace",
			xml:  `<urlset><url><loc>https://example.com/a</loc></url></urlset>`,
			want: 1,
		},
		{
			name: "prefixed namespace",
			xml: `<sm:urlset xmlns:sm="http://www.sitemaps.org/schemas/sitemap/0.9">
				<sm:url><sm:loc>https://example.com/a</sm:loc></sm:url>
			</sm:urlset>`,
			want: 1,
		},
		{
			name: "empty",
			xml:  `<urlset></urlset>`,
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			urls := ParseSitemap([]byte(tt.xml))
			if len(urls) != tt.want {
				t.Errorf("got %d urls, want %d: %v", len(urls), tt.want, urls)
			}
			for _, u := range urls {
				if u != "https://example.com/a" && u != "https://example.com/b" {
					t.Errorf("unexpected url %q", u)
				}
			}
		})
	}
}

func TestRecursiveStrategy_FollowsInternalLinksOnly(t *testing.T) {
	f := &fakeFetcher{pages: map[string]*Page{
		"https://example.com": {
			URL:      "https://example.com",
			Markdown: "root",
			Links:    []string{"https://example.com/a", "https://other.com/x", "https://example.com/a#frag"},
		},
		"https://example.com/a": {
			URL:      "https://example.com/a",
			Markdown: "a",
			Links:    []string{"https://example.com"},
		},
	}}

	result, err := (&RecursiveStrategy{}).Crawl(context.Background(), f, "https://example.com", Options{MaxDepth: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PagesCrawled != 2 {
		t.Errorf("pages crawled = %d, want 2", result.PagesCrawled)
	}
	for _, u := range f.fetched {
		if u == "https://other.com/x" {
			t.Error("external link must not be followed")
		}
	}
}

func TestRecursiveStrategy_DepthLimit(t *testing.T) {
	f := &fakeFetcher{pages: map[string]*Page{
		"https://example.com":   {URL: "https://example.com", Markdown: "0", Links: []string{"https://example.com/1"}},
		"https://example.com/1": {URL: "https://example.com/1", Markdown: "1", Links: []string{"https://example.com/2"}},
		"https://example.com/2": {URL: "https://example.com/2", Markdown: "2", Links: []string{"https://example.com/3"}},
		"https://example.com/3": {URL: "https://example.com/3", Markdown: "3"},
	}}

	result, err := (&RecursiveStrategy{}).Crawl(context.Background(), f, "https://example.com", Options{MaxDepth: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PagesCrawled != 2 {
		t.Errorf("pages crawled = %d, want 2 (depth limit)", result.PagesCrawled)
	}
}

func TestClassifyContent(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/docs/intro", "documentation"},
		{"https://api.example.com/reference", "documentation"},
		{"https://example.com/blog/2026/post", "article"},
		{"https://example.com/news/today", "article"},
		{"https://example.com/pricing", "general"},
	}
	for _, tt := range tests {
		if got := ClassifyContent(tt.url); got.Name != tt.want {
			t.Errorf("ClassifyContent(%q) = %q, want %q", tt.url, got.Name, tt.want)
		}
	}
}

func TestMemoryMonitor_NeverBelowOne(t *testing.T) {
	// Threshold of 1MB is always exceeded by a running test process, so
	// every batch halves until the floor.
	m := NewMemoryMonitor(1)
	conc := 8
	for i := 0; i < 10; i++ {
		conc = m.BatchConcurrency(conc)
	}
	if conc != 1 {
		t.Errorf("concurrency = %d, want floor of 1", conc)
	}
	stats := m.Stats()
	if stats.Throttles == 0 {
		t.Error("expected throttles to be recorded")
	}
	if stats.Samples != 10 {
		t.Errorf("samples = %d, want 10", stats.Samples)
	}
}

func TestMemoryMonitor_NoThreshold(t *testing.T) {
	m := NewMemoryMonitor(0)
	if got := m.BatchConcurrency(10); got != 10 {
		t.Errorf("concurrency = %d, want 10", got)
	}
	if m.Stats().Throttles != 0 {
		t.Error("throttling must be disabled at threshold 0")
	}
}

func TestWordCount(t *testing.T) {
	if got := WordCount("one  two\nthree"); got != 3 {
		t.Errorf("WordCount = %d, want 3", got)
	}
}

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
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/lodestone/httpx"
	"github.com/kadirpekel/lodestone/urlutil"
)

// Document is one markdown document produced by a crawl.
type Document struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Markdown string `json:"markdown"`
}

// Result aggregates one strategy run.
type Result struct {
	Success      bool           `json:"success"`
	URL          string         `json:"url"`
	Strategy     string         `json:"strategy"`
	PagesCrawled int            `json:"pages_crawled"`
	Documents    []Document     `json:"-"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Throttler adjusts per-batch concurrency. The memory monitor satisfies
// this.
type Throttler interface {
	BatchConcurrency(requested int) int
}

// Options tune one strategy run.
type Options struct {
	// MaxDepth bounds recursive crawls (default: 3).
	MaxDepth int

	// MaxConcurrent bounds pages fetched in parallel within one batch
	// (default: 10).
	MaxConcurrent int

	// Throttle, when set, is consulted before each batch.
	Throttle Throttler
}

// batchConcurrency resolves the concurrency for the next batch.
func (o Options) batchConcurrency() int {
	if o.Throttle != nil {
		return o.Throttle.BatchConcurrency(o.MaxConcurrent)
	}
	return o.MaxConcurrent
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 3
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 10
	}
	return o
}

// Strategy is one crawl shape. Implementations are stateless; all state
// lives in the Result.
type Strategy interface {
	Name() string
	Crawl(ctx context.Context, fetcher Fetcher, url string, opts Options) (*Result, error)
}

// ForURL picks the strategy matching the URL's shape.
func ForURL(url string, httpClient *httpx.Client) Strategy {
	switch urlutil.Classify(url) {
	case urlutil.KindSitemap:
		return &SitemapStrategy{client: httpClient}
	case urlutil.KindTextFile:
		return &TextFileStrategy{}
	default:
		return &SingleStrategy{}
	}
}

// SingleStrategy fetches exactly one page.
type SingleStrategy struct{}

func (s *SingleStrategy) Name() string { return "single_page" }

func (s *SingleStrategy) Crawl(ctx context.Context, fetcher Fetcher, url string, opts Options) (*Result, error) {
	page, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to crawl %s: %w", url, err)
	}
	return &Result{
		Success:      true,
		URL:          url,
		Strategy:     s.Name(),
		PagesCrawled: 1,
		Documents:    []Document{{URL: url, Title: page.Title, Markdown: page.Markdown}},
	}, nil
}

// TextFileStrategy fetches one plain text or markdown file. No link
// following, no HTML conversion expected.
type TextFileStrategy struct{}

func (s *TextFileStrategy) Name() string { return "text_file" }

func (s *TextFileStrategy) Crawl(ctx context.Context, fetcher Fetcher, url string, opts Options) (*Result, error) {
	page, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch text file %s: %w", url, err)
	}
	return &Result{
		Success:      true,
		URL:          url,
		Strategy:     s.Name(),
		PagesCrawled: 1,
		Documents:    []Document{{URL: url, Markdown: page.Markdown}},
	}, nil
}

// SitemapStrategy fetches a sitemap, extracts its URLs, and batch-crawls
// them. Individual page failures are logged and skipped.
type SitemapStrategy struct {
	client *httpx.Client
}

func (s *SitemapStrategy) Name() string { return "sitemap" }

func (s *SitemapStrategy) Crawl(ctx context.Context, fetcher Fetcher, url string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	body, err := s.client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap %s: %w", url, err)
	}
	urls := ParseSitemap(body)
	if len(urls) == 0 {
		return nil, fmt.Errorf("sitemap %s contains no URLs", url)
	}

	docs := batchFetch(ctx, fetcher, urls, opts.batchConcurrency())
	return &Result{
		Success:      true,
		URL:          url,
		Strategy:     s.Name(),
		PagesCrawled: len(docs),
		Documents:    docs,
		Metadata:     map[string]any{"sitemap_urls": len(urls)},
	}, nil
}

// ParseSitemap extracts <loc> values from sitemap XML. Namespace-agnostic:
// only the local element name matters.
func ParseSitemap(data []byte) []string {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	var urls []string
	inLoc := false
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			inLoc = t.Name.Local == "loc"
		case xml.CharData:
			if inLoc {
				if u := string(bytes.TrimSpace(t)); u != "" {
					urls = append(urls, u)
				}
			}
		case xml.EndElement:
			inLoc = false
		}
	}
	return urls
}

// RecursiveStrategy walks internal links breadth-first up to MaxDepth.
// Fragments are stripped and URLs deduped before each depth's batch.
type RecursiveStrategy struct{}

func (s *RecursiveStrategy) Name() string { return "recursive" }

func (s *RecursiveStrategy) Crawl(ctx context.Context, fetcher Fetcher, url string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	visited := map[string]bool{}
	frontier := []string{urlutil.Normalize(url)}
	var docs []Document

	for depth := 0; depth < opts.MaxDepth && len(frontier) > 0; depth++ {
		var batch []string
		for _, u := range frontier {
			if !visited[u] {
				visited[u] = true
				batch = append(batch, u)
			}
		}
		if len(batch) == 0 {
			break
		}

		pages := batchFetchPages(ctx, fetcher, batch, opts.batchConcurrency())

		next := map[string]bool{}
		for _, page := range pages {
			docs = append(docs, Document{URL: page.URL, Title: page.Title, Markdown: page.Markdown})
			for _, link := range page.Links {
				normalized := urlutil.Normalize(link)
				if normalized == "" || visited[normalized] {
					continue
				}
				if urlutil.IsInternal(url, normalized) {
					next[normalized] = true
				}
			}
		}

		frontier = frontier[:0]
		for u := range next {
			frontier = append(frontier, u)
		}
	}

	return &Result{
		Success:      true,
		URL:          url,
		Strategy:     s.Name(),
		PagesCrawled: len(docs),
		Documents:    docs,
		Metadata:     map[string]any{"max_depth": opts.MaxDepth, "urls_visited": len(visited)},
	}, nil
}

func batchFetch(ctx context.Context, fetcher Fetcher, urls []string, concurrency int) []Document {
	pages := batchFetchPages(ctx, fetcher, urls, concurrency)
	docs := make([]Document, 0, len(pages))
	for _, p := range pages {
		docs = append(docs, Document{URL: p.URL, Title: p.Title, Markdown: p.Markdown})
	}
	return docs
}

// batchFetchPages fetches URLs with bounded concurrency, preserving input
// order and dropping failures.
func batchFetchPages(ctx context.Context, fetcher Fetcher, urls []string, concurrency int) []*Page {
	type slot struct {
		page *Page
	}
	slots := make([]slot, len(urls))

	sem := make(chan struct{}, concurrency)
	done := make(chan int, len(urls))
	for i, u := range urls {
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; done <- i }()
			page, err := fetcher.Fetch(ctx, u)
			if err != nil {
				slog.Warn("Failed to crawl page", "url", u, "error", err)
				return
			}
			slots[i].page = page
		}()
	}
	for range urls {
		<-done
	}

	var pages []*Page
	for _, s := range slots {
		if s.page != nil {
			pages = append(pages, s.page)
		}
	}
	return pages
}

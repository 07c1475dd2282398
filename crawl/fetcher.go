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

// Package crawl fetches web content and turns it into markdown documents.
// Leaf strategies cover single pages, text files, sitemaps, and recursive
// site crawls; the orchestrator adds memory-aware batching, stealth
// browser profiles, and per-URL content extraction configs.
package crawl

import (
	"context"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/kadirpekel/lodestone/httpx"
)

// Page is one fetched page converted to markdown.
type Page struct {
	URL      string
	Title    string
	Markdown string
	Links    []string
}

// Fetcher fetches one URL and converts it to markdown.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// HTTPFetcher fetches over plain HTTP without a browser. Suitable for text
// files, sitemaps, and pages that do not require JavaScript.
type HTTPFetcher struct {
	client *httpx.Client
}

// NewHTTPFetcher creates a plain HTTP fetcher.
func NewHTTPFetcher(client *httpx.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Fetch downloads the URL. HTML bodies are converted to markdown; anything
// else passes through as-is.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	body, err := f.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	content := string(body)
	if looksLikeHTML(content) {
		markdown, err := htmltomarkdown.ConvertString(content)
		if err == nil {
			content = markdown
		}
	}
	return &Page{URL: url, Markdown: content}, nil
}

func looksLikeHTML(content string) bool {
	head := strings.ToLower(content)
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

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
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxBrowserSessions bounds concurrent headless browser pages.
const DefaultMaxBrowserSessions = 10

// BrowserConfig configures the headless browser fetcher.
type BrowserConfig struct {
	// Headless runs the browser without a display (default: true; set
	// Headful to disable).
	Headful bool

	// Stealth applies an anti-automation browser profile.
	Stealth bool

	// WaitForSelector is a CSS selector to wait for after navigation.
	WaitForSelector string

	// PostLoadDelay sleeps after the page is ready, for late-rendering
	// content (only honored in stealth mode).
	PostLoadDelay time.Duration

	// ContentSelector restricts extraction to one CSS selector's subtree.
	ContentSelector string

	// UseReadability extracts the main article content before markdown
	// conversion.
	UseReadability bool

	// PageTimeout bounds one page load (default: 60s).
	PageTimeout time.Duration

	// MaxSessions bounds concurrent browser pages (default: 10).
	MaxSessions int
}

// BrowserFetcher renders pages in headless Chrome and converts the result
// to markdown. JavaScript-driven sites need this; plain pages can use
// HTTPFetcher instead.
type BrowserFetcher struct {
	cfg BrowserConfig
	sem *semaphore.Weighted
}

// NewBrowserFetcher creates a browser fetcher. No browser process starts
// until the first Fetch.
func NewBrowserFetcher(cfg BrowserConfig) *BrowserFetcher {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 60 * time.Second
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxBrowserSessions
	}
	return &BrowserFetcher{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxSessions)),
	}
}

func (f *BrowserFetcher) allocOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", !f.cfg.Headful),
		chromedp.NoSandbox,
	)
	if f.cfg.Stealth {
		opts = append(opts,
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("disable-infobars", true),
			chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		)
	}
	return opts
}

// Fetch renders the URL and returns its markdown, title, and outgoing
// links. Sessions are bounded by MaxSessions.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, f.allocOptions()...)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, f.cfg.PageTimeout)
	defer timeoutCancel()

	actions := []chromedp.Action{
		chromedp.Navigate(url),
	}
	if f.cfg.WaitForSelector != "" {
		actions = append(actions, chromedp.WaitVisible(f.cfg.WaitForSelector, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	if f.cfg.Stealth && f.cfg.PostLoadDelay > 0 {
		actions = append(actions, chromedp.Sleep(f.cfg.PostLoadDelay))
	}

	var html, title string
	var links []string
	if f.cfg.ContentSelector != "" {
		actions = append(actions, chromedp.OuterHTML(f.cfg.ContentSelector, &html, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	}
	actions = append(actions,
		chromedp.Title(&title),
		chromedp.Evaluate(`Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`, &links),
	)

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", url, err)
	}

	markdown, err := f.toMarkdown(url, html)
	if err != nil {
		return nil, err
	}
	return &Page{URL: url, Title: title, Markdown: markdown, Links: links}, nil
}

func (f *BrowserFetcher) toMarkdown(url, html string) (string, error) {
	if f.cfg.UseReadability {
		article, err := readability.FromReader(strings.NewReader(html), nil)
		if err == nil && article.Content != "" {
			html = article.Content
		}
	}
	markdown, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert %s to markdown: %w", url, err)
	}
	return markdown, nil
}

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
	"strings"
	"time"

	"github.com/kadirpekel/lodestone/httpx"
	"github.com/kadirpekel/lodestone/urlutil"
)

// Orchestrator composes strategies with fetcher selection, stealth
// profiles, memory monitoring, and per-URL extraction configs.
type Orchestrator struct {
	httpClient *httpx.Client
	browserCfg BrowserConfig
}

// NewOrchestrator creates an orchestrator. browserCfg is the baseline
// browser profile; variants derive from it per call.
func NewOrchestrator(httpClient *httpx.Client, browserCfg BrowserConfig) *Orchestrator {
	return &Orchestrator{httpClient: httpClient, browserCfg: browserCfg}
}

func (o *Orchestrator) fetcherFor(url string, cfg BrowserConfig) Fetcher {
	if urlutil.Classify(url) == urlutil.KindWebpage {
		return NewBrowserFetcher(cfg)
	}
	return NewHTTPFetcher(o.httpClient)
}

// Crawl runs the strategy matching the URL with the baseline profile.
func (o *Orchestrator) Crawl(ctx context.Context, url string, opts Options) (*Result, error) {
	strategy := ForURL(url, o.httpClient)
	return strategy.Crawl(ctx, o.fetcherFor(url, o.browserCfg), url, opts)
}

// autoStrategy resolves the strategy for a seed URL where ordinary webpages
// should be walked recursively. Sitemaps and text files keep their dedicated
// strategies; without the webpage special case MaxDepth and the batch
// throttle never apply to them.
func (o *Orchestrator) autoStrategy(url string) Strategy {
	if urlutil.Classify(url) == urlutil.KindWebpage {
		return &RecursiveStrategy{}
	}
	return ForURL(url, o.httpClient)
}

// CrawlRecursive walks internal links from the seed URL.
func (o *Orchestrator) CrawlRecursive(ctx context.Context, url string, opts Options) (*Result, error) {
	strategy := &RecursiveStrategy{}
	return strategy.Crawl(ctx, NewBrowserFetcher(o.browserCfg), url, opts)
}

// CrawlStealth crawls with an anti-automation browser profile, optionally
// waiting for a selector and sleeping after load.
func (o *Orchestrator) CrawlStealth(ctx context.Context, url string, opts Options, waitFor string, delay time.Duration) (*Result, error) {
	cfg := o.browserCfg
	cfg.Stealth = true
	cfg.WaitForSelector = waitFor
	cfg.PostLoadDelay = delay

	strategy := o.autoStrategy(url)
	result, err := strategy.Crawl(ctx, o.fetcherFor(url, cfg), url, opts)
	if err != nil {
		return nil, err
	}
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["stealth_mode"] = true
	return result, nil
}

// CrawlMonitored crawls with memory-aware batch throttling and attaches
// the memory stats to the result metadata. Webpages crawl recursively so
// the throttle has batches to act on.
func (o *Orchestrator) CrawlMonitored(ctx context.Context, url string, opts Options, thresholdMB uint64) (*Result, error) {
	monitor := NewMemoryMonitor(thresholdMB)
	opts.Throttle = monitor

	strategy := o.autoStrategy(url)
	result, err := strategy.Crawl(ctx, o.fetcherFor(url, o.browserCfg), url, opts)
	if err != nil {
		return nil, err
	}
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["memory"] = monitor.Stats()
	return result, nil
}

// URLClass is the content profile applied to one URL in a multi-URL crawl.
type URLClass struct {
	Name            string
	ContentSelector string
	MinWords        int
	UseReadability  bool
}

var urlClasses = []struct {
	tokens []string
	class  URLClass
}{
	{
		tokens: []string{"docs", "documentation", "api", "reference", "guide", "manual"},
		class:  URLClass{Name: "documentation", ContentSelector: "main", MinWords: 50},
	},
	{
		tokens: []string{"news", "blog", "article", "post", "story"},
		class:  URLClass{Name: "article", UseReadability: true, MinWords: 100},
	},
}

var generalClass = URLClass{Name: "general", MinWords: 25}

// ClassifyContent picks the content profile for a URL by substring.
func ClassifyContent(url string) URLClass {
	lowered := strings.ToLower(url)
	for _, uc := range urlClasses {
		for _, token := range uc.tokens {
			if strings.Contains(lowered, token) {
				return uc.class
			}
		}
	}
	return generalClass
}

// MultiURLOutcome is one URL's result within a multi-URL crawl.
type MultiURLOutcome struct {
	URL    string  `json:"url"`
	Class  string  `json:"config_used"`
	Result *Result `json:"-"`
	Error  string  `json:"error,omitempty"`
}

// CrawlMulti crawls each URL independently with a per-URL content profile.
// Failures are isolated per URL; thin pages below the class word threshold
// are dropped.
func (o *Orchestrator) CrawlMulti(ctx context.Context, urls []string, opts Options) []MultiURLOutcome {
	outcomes := make([]MultiURLOutcome, 0, len(urls))
	for _, url := range urls {
		class := ClassifyContent(url)

		cfg := o.browserCfg
		cfg.ContentSelector = class.ContentSelector
		cfg.UseReadability = class.UseReadability

		strategy := ForURL(url, o.httpClient)
		result, err := strategy.Crawl(ctx, o.fetcherFor(url, cfg), url, opts)
		if err != nil {
			outcomes = append(outcomes, MultiURLOutcome{URL: url, Class: class.Name, Error: err.Error()})
			continue
		}

		kept := result.Documents[:0]
		for _, doc := range result.Documents {
			if WordCount(doc.Markdown) >= class.MinWords {
				kept = append(kept, doc)
			}
		}
		result.Documents = kept
		result.PagesCrawled = len(kept)

		outcomes = append(outcomes, MultiURLOutcome{URL: url, Class: class.Name, Result: result})
	}
	return outcomes
}

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

package tools

import (
	"context"
	"time"

	"github.com/kadirpekel/lodestone/crawl"
	"github.com/kadirpekel/lodestone/ingest"
	"github.com/kadirpekel/lodestone/urlutil"
)

// CrawlSinglePageArgs are the crawl_single_page inputs.
type CrawlSinglePageArgs struct {
	URL string
}

// CrawlSinglePage crawls one page and stores its chunks.
func (s *Service) CrawlSinglePage(ctx context.Context, args CrawlSinglePageArgs) map[string]any {
	if err := validateURL(args.URL); err != nil {
		return ErrorEnvelope(err)
	}

	result, err := s.crawler.Crawl(ctx, args.URL, crawl.Options{})
	if err != nil {
		return ErrorEnvelope(err)
	}
	return s.storeAndReport(ctx, result, ingest.Options{
		ExtractCode: s.features.AgenticRAG,
		Metadata:    map[string]any{"crawl_type": result.Strategy},
	})
}

// SmartCrawlArgs are the smart_crawl_url inputs.
type SmartCrawlArgs struct {
	URL           string
	MaxDepth      int
	MaxConcurrent int
	ChunkSize     int
}

// SmartCrawlURL picks the strategy from the URL shape: sitemaps expand,
// text files fetch directly, webpages crawl recursively.
func (s *Service) SmartCrawlURL(ctx context.Context, args SmartCrawlArgs) map[string]any {
	if err := validateURL(args.URL); err != nil {
		return ErrorEnvelope(err)
	}

	opts := s.crawlOptions(args.MaxDepth, args.MaxConcurrent)

	var result *crawl.Result
	var err error
	if urlutil.Classify(args.URL) == urlutil.KindWebpage {
		result, err = s.crawler.CrawlRecursive(ctx, args.URL, opts)
	} else {
		result, err = s.crawler.Crawl(ctx, args.URL, opts)
	}
	if err != nil {
		return ErrorEnvelope(err)
	}
	return s.storeAndReport(ctx, result, ingest.Options{
		ExtractCode: s.features.AgenticRAG,
		ChunkSize:   args.ChunkSize,
		Metadata:    map[string]any{"crawl_type": result.Strategy},
	})
}

// StealthCrawlArgs are the crawl_with_stealth_mode inputs.
type StealthCrawlArgs struct {
	URL             string
	WaitForSelector string
	ExtraDelay      time.Duration
	MaxDepth        int
	MaxConcurrent   int
}

// CrawlWithStealthMode crawls with an anti-automation browser profile.
func (s *Service) CrawlWithStealthMode(ctx context.Context, args StealthCrawlArgs) map[string]any {
	if err := validateURL(args.URL); err != nil {
		return ErrorEnvelope(err)
	}

	opts := s.crawlOptions(args.MaxDepth, args.MaxConcurrent)
	result, err := s.crawler.CrawlStealth(ctx, args.URL, opts, args.WaitForSelector, args.ExtraDelay)
	if err != nil {
		return ErrorEnvelope(err)
	}
	return s.storeAndReport(ctx, result, ingest.Options{
		ExtractCode: s.features.AgenticRAG,
		Metadata:    map[string]any{"crawl_type": result.Strategy, "stealth_mode": true},
	})
}

// MultiURLArgs are the crawl_with_multi_url_config inputs.
type MultiURLArgs struct {
	URLs          []string
	MaxConcurrent int
}

// CrawlWithMultiURLConfig crawls each URL with a content profile picked
// from its shape. Per-URL failures are isolated in the report.
func (s *Service) CrawlWithMultiURLConfig(ctx context.Context, args MultiURLArgs) map[string]any {
	if len(args.URLs) == 0 {
		return ErrorEnvelope(NewValidationError("urls", "at least one URL is required"))
	}
	for _, u := range args.URLs {
		if err := validateURL(u); err != nil {
			return ErrorEnvelope(err)
		}
	}

	outcomes := s.crawler.CrawlMulti(ctx, args.URLs, s.crawlOptions(0, args.MaxConcurrent))

	var docs []crawl.Document
	var retryURLs []string
	report := make([]map[string]any, 0, len(outcomes))
	for _, oc := range outcomes {
		entry := map[string]any{"url": oc.URL, "config_used": oc.Class}
		if oc.Error != "" {
			entry["success"] = false
			entry["error"] = oc.Error
			retryURLs = append(retryURLs, oc.URL)
		} else {
			entry["success"] = true
			entry["pages_crawled"] = oc.Result.PagesCrawled
			docs = append(docs, oc.Result.Documents...)
		}
		report = append(report, entry)
	}

	stats, err := s.ingestor.Ingest(ctx, docs, ingest.Options{
		ExtractCode: s.features.AgenticRAG,
		Metadata:    map[string]any{"crawl_type": "multi_url"},
	})
	if err != nil {
		return ErrorEnvelope(err)
	}
	s.observeIngest("multi_url", len(docs), stats)
	envelope := Envelope(map[string]any{
		"urls_processed":  len(outcomes),
		"results":         report,
		"chunks_stored":   stats.ChunksStored,
		"sources_updated": stats.SourcesUpdated,
	})
	if len(retryURLs) > 0 {
		envelope["retry_urls"] = retryURLs
	}
	return envelope
}

// MonitoredCrawlArgs are the crawl_with_memory_monitoring inputs.
type MonitoredCrawlArgs struct {
	URL               string
	MemoryThresholdMB uint64
	MaxDepth          int
	MaxConcurrent     int
}

// CrawlWithMemoryMonitoring crawls with adaptive concurrency and reports
// memory statistics alongside the ingest counts.
func (s *Service) CrawlWithMemoryMonitoring(ctx context.Context, args MonitoredCrawlArgs) map[string]any {
	if err := validateURL(args.URL); err != nil {
		return ErrorEnvelope(err)
	}
	if args.MemoryThresholdMB == 0 {
		args.MemoryThresholdMB = s.defaults.MemoryThresholdMB
	}
	if args.MemoryThresholdMB == 0 {
		args.MemoryThresholdMB = 512
	}

	opts := s.crawlOptions(args.MaxDepth, args.MaxConcurrent)
	result, err := s.crawler.CrawlMonitored(ctx, args.URL, opts, args.MemoryThresholdMB)
	if err != nil {
		return ErrorEnvelope(err)
	}

	envelope := s.storeAndReport(ctx, result, ingest.Options{
		ExtractCode: s.features.AgenticRAG,
		Metadata:    map[string]any{"crawl_type": result.Strategy},
	})
	if memory, ok := result.Metadata["memory"]; ok {
		envelope["memory"] = memory
	}
	return envelope
}

// GraphCrawlArgs are the crawl_with_graph_extraction inputs.
type GraphCrawlArgs struct {
	URL                  string
	ExtractEntities      bool
	ExtractRelationships bool
	ChunkSize            int
	MaxDepth             int
	MaxConcurrent        int
}

// CrawlWithGraphExtraction crawls and dual-writes: chunks to the vector
// store and entities to the knowledge graph.
func (s *Service) CrawlWithGraphExtraction(ctx context.Context, args GraphCrawlArgs) map[string]any {
	if err := s.requireGraph(); err != nil {
		return ErrorEnvelope(err)
	}
	if err := validateURL(args.URL); err != nil {
		return ErrorEnvelope(err)
	}

	opts := s.crawlOptions(args.MaxDepth, args.MaxConcurrent)
	result, err := s.crawler.Crawl(ctx, args.URL, opts)
	if err != nil {
		return ErrorEnvelope(err)
	}
	return s.storeAndReport(ctx, result, ingest.Options{
		ExtractCode:          s.features.AgenticRAG,
		ExtractEntities:      args.ExtractEntities || args.ExtractRelationships,
		ExtractRelationships: args.ExtractRelationships,
		ChunkSize:            args.ChunkSize,
		Metadata:             map[string]any{"crawl_type": result.Strategy},
	})
}

func (s *Service) storeAndReport(ctx context.Context, result *crawl.Result, opts ingest.Options) map[string]any {
	stats, err := s.ingestor.Ingest(ctx, result.Documents, opts)
	if err != nil {
		return ErrorEnvelope(err)
	}
	s.observeIngest(result.Strategy, result.PagesCrawled, stats)

	envelope := Envelope(map[string]any{
		"url":             result.URL,
		"strategy":        result.Strategy,
		"pages_crawled":   result.PagesCrawled,
		"chunks_stored":   stats.ChunksStored,
		"sources_updated": stats.SourcesUpdated,
	})
	if opts.ExtractCode {
		envelope["code_examples_stored"] = stats.CodeExamplesStored
	}
	if opts.ExtractEntities || opts.ExtractRelationships {
		envelope["graph_documents_stored"] = stats.DocumentsStored
		envelope["entities_stored"] = stats.EntitiesStored
		envelope["relationships_stored"] = stats.RelationshipsStored
	}
	return envelope
}

func validateURL(raw string) error {
	if raw == "" {
		return NewValidationError("url", "url is required")
	}
	if !urlutil.IsSafeForStorage(raw) {
		return NewValidationError("url", "url is malformed or unsafe")
	}
	return nil
}

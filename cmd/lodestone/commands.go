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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/lodestone/config"
	"github.com/kadirpekel/lodestone/tools"
)

// initRuntime loads environment, configuration, and logging shared by every
// command that talks to the backends.
func initRuntime(cli *CLI) (*config.Config, func(), error) {
	if err := loadEnvFile(cli.EnvFile); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, err
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	if cli.LogFile != "" {
		cfg.Logging.File = cli.LogFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cleanup, err := initLogging(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cleanup, nil
}

func printEnvelope(envelope map[string]any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope)
}

// CrawlCmd crawls one URL and stores it, without starting a server.
type CrawlCmd struct {
	URL           string `arg:"" help:"URL to crawl (sitemap, text file, or webpage)."`
	MaxDepth      int    `name:"max-depth" help:"Recursion depth for webpage crawls."`
	MaxConcurrent int    `name:"max-concurrent" help:"Concurrent fetches per batch."`
	Graph         bool   `help:"Also extract entities into the knowledge graph."`
}

func (c *CrawlCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, cleanup, err := initRuntime(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, closers, err := buildService(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closers.close()

	var envelope map[string]any
	if c.Graph {
		envelope = svc.CrawlWithGraphExtraction(ctx, tools.GraphCrawlArgs{
			URL:             c.URL,
			ExtractEntities: true,
			MaxDepth:        c.MaxDepth,
			MaxConcurrent:   c.MaxConcurrent,
		})
	} else {
		envelope = svc.SmartCrawlURL(ctx, tools.SmartCrawlArgs{
			URL:           c.URL,
			MaxDepth:      c.MaxDepth,
			MaxConcurrent: c.MaxConcurrent,
		})
	}
	return printEnvelope(envelope)
}

// QueryCmd runs one retrieval query and prints the result envelope.
type QueryCmd struct {
	Query      string `arg:"" help:"Search query."`
	Source     string `help:"Restrict to one source id, e.g. example.com."`
	MatchCount int    `name:"match-count" help:"Results to return." default:"5"`
	Code       bool   `help:"Search code examples instead of documents."`
}

func (c *QueryCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, cleanup, err := initRuntime(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, closers, err := buildService(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closers.close()

	args := tools.RAGQueryArgs{
		Query:              c.Query,
		Source:             c.Source,
		MatchCount:         c.MatchCount,
		IncludeFullContent: true,
	}
	if c.Code {
		return printEnvelope(svc.SearchCodeExamples(ctx, args))
	}
	return printEnvelope(svc.PerformRAGQuery(ctx, args))
}

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

// Command lodestone is the CLI for the Lodestone retrieval service.
//
// Usage:
//
//	lodestone serve
//	lodestone serve --config config.yaml --transport stdio
//	lodestone version
package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	lodestone "github.com/kadirpekel/lodestone"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the MCP tool server."`
	Crawl   CrawlCmd   `cmd:"" help:"Crawl one URL and store it."`
	Query   QueryCmd   `cmd:"" help:"Run a retrieval query."`

	Config  string `short:"c" help:"Path to config file." type:"path"`
	EnvFile string `name:"env-file" help:"Path to .env file (defaults to ./.env, then ~/.env)." type:"path"`

	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides config."`
	LogFormat string `help:"Log format (text or json). Overrides config."`
	LogFile   string `help:"Log file path (empty = stderr). Overrides config."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(lodestone.GetVersion().String())
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("lodestone"),
		kong.Description("Crawl websites into a searchable vector store and knowledge graph, served over MCP."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}

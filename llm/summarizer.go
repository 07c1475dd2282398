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

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/lodestone/tokens"
)

// summaryTemperature keeps the summaries terse and stable.
const summaryTemperature = 0.3

// Completion-token caps per entry point.
const (
	sourceSummaryMaxTokens = 150
	codeSummaryMaxTokens   = 100
	chunkContextMaxTokens  = 200
)

// promptContentTokenCap bounds how much document text goes into a summary
// prompt.
const promptContentTokenCap = 6000

// Summarizer produces the short summaries used during ingestion. Every
// entry point degrades to a deterministic placeholder on failure so the
// pipeline continues.
type Summarizer struct {
	client  *Client
	counter *tokens.Counter
}

// NewSummarizer creates a summarizer. A nil client is allowed; all entry
// points then return placeholders.
func NewSummarizer(client *Client) *Summarizer {
	var counter *tokens.Counter
	if client != nil {
		// Counter creation only fails when no encoding is available at
		// all; fall back to untruncated prompts in that case.
		counter, _ = tokens.NewCounter(client.Model())
	}
	return &Summarizer{client: client, counter: counter}
}

// SourceSummary summarizes what a source contains, for the sources listing.
func (s *Summarizer) SourceSummary(ctx context.Context, sourceID, content string) string {
	fallback := fmt.Sprintf("Content from %s", sourceID)
	if s.client == nil || content == "" {
		return fallback
	}

	prompt := fmt.Sprintf(
		"The following text is from the source %s.\n\n%s\n\nWrite a 2-3 sentence summary of what this source contains and who would find it useful.",
		sourceID, s.capContent(content))

	return s.completeOrFallback(ctx, "source summary", prompt, sourceSummaryMaxTokens, fallback)
}

// CodeExampleSummary describes a code block given its surrounding prose.
func (s *Summarizer) CodeExampleSummary(ctx context.Context, code, before, after string) string {
	const fallback = "Code example for demonstration purposes."
	if s.client == nil {
		return fallback
	}

	prompt := fmt.Sprintf(
		"Context before the code:\n%s\n\nCode:\n%s\n\nContext after the code:\n%s\n\nIn 1-2 sentences, state what this code example demonstrates.",
		s.capContent(before), s.capContent(code), s.capContent(after))

	return s.completeOrFallback(ctx, "code example summary", prompt, codeSummaryMaxTokens, fallback)
}

// ChunkContext situates one chunk within its full document, used for
// contextual embedding.
func (s *Summarizer) ChunkContext(ctx context.Context, fullDocument, chunk string) string {
	if s.client == nil {
		return ""
	}

	prompt := fmt.Sprintf(
		"<document>\n%s\n</document>\n\nHere is a chunk from that document:\n<chunk>\n%s\n</chunk>\n\nGive a short context that situates this chunk within the overall document, to improve search retrieval of the chunk. Answer with the context only.",
		s.capContent(fullDocument), s.capContent(chunk))

	return s.completeOrFallback(ctx, "chunk context", prompt, chunkContextMaxTokens, "")
}

func (s *Summarizer) completeOrFallback(ctx context.Context, operation, prompt string, maxTokens int, fallback string) string {
	out, err := s.client.Complete(ctx, CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "You write concise technical summaries."},
			{Role: "user", Content: prompt},
		},
		Temperature: summaryTemperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		slog.Warn("Summarization failed, using placeholder", "operation", operation, "error", err)
		return fallback
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return fallback
	}
	return out
}

func (s *Summarizer) capContent(content string) string {
	if s.counter == nil {
		return content
	}
	return s.counter.Truncate(content, promptContentTokenCap)
}

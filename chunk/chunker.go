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

// Package chunk splits crawled markdown into retrieval chunks and extracts
// fenced code blocks with their surrounding context.
package chunk

import "strings"

// DefaultChunkSize is the target chunk size in characters.
const DefaultChunkSize = 5000

// splitThreshold is the fraction of the chunk size a candidate split point
// must lie past. Splitting earlier would produce degenerate slivers.
const splitThreshold = 0.3

// Chunker splits markdown into ordered, non-empty chunks.
//
// Within each window of Size characters the split point is chosen by
// priority: the last code fence boundary, then the last paragraph break,
// then the last sentence break. A candidate only qualifies when it lies past
// 30% of the window; otherwise the window is cut at Size.
type Chunker struct {
	size int
}

// NewChunker creates a chunker with the given target size.
// Sizes below 1 fall back to DefaultChunkSize.
func NewChunker(size int) *Chunker {
	if size < 1 {
		size = DefaultChunkSize
	}
	return &Chunker{size: size}
}

// Size returns the configured target chunk size.
func (c *Chunker) Size() int { return c.size }

// Split chunks the markdown text. Chunks are whitespace-trimmed and empty
// chunks are dropped; chunk order follows document order.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	var chunks []string
	threshold := int(float64(c.size) * splitThreshold)

	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			if tail := strings.TrimSpace(text[start:]); tail != "" {
				chunks = append(chunks, tail)
			}
			break
		}

		window := text[start:end]

		if cut := strings.LastIndex(window, "```"); cut > threshold {
			end = start + cut
		} else if cut := strings.LastIndex(window, "\n\n"); cut > threshold {
			end = start + cut
		} else if cut := strings.LastIndex(window, ". "); cut > threshold {
			// Keep the period with the leading chunk.
			end = start + cut + 1
		}

		if piece := strings.TrimSpace(text[start:end]); piece != "" {
			chunks = append(chunks, piece)
		}
		start = end
	}

	return chunks
}

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

package chunk

import "strings"

const (
	// DefaultMinCodeLength is the minimum body length for a code block to
	// be stored as a code example.
	DefaultMinCodeLength = 1000

	// codeContextWindow is how much surrounding text is captured on each
	// side of a code block.
	codeContextWindow = 1000

	// maxLanguageTokenLength bounds the info string on the opening fence.
	maxLanguageTokenLength = 20
)

// CodeBlock is one fenced code block with the prose around it.
// Code is preserved verbatim; no re-indentation happens anywhere.
type CodeBlock struct {
	Code          string
	Language      string
	ContextBefore string
	ContextAfter  string
}

// ExtractCodeBlocks finds fenced code blocks of at least minLength
// characters. minLength values below 1 use DefaultMinCodeLength.
//
// Fences are paired in document order; an unmatched trailing fence is
// ignored.
func ExtractCodeBlocks(markdown string, minLength int) []CodeBlock {
	if minLength < 1 {
		minLength = DefaultMinCodeLength
	}

	var offsets []int
	for i := 0; i+3 <= len(markdown); {
		idx := strings.Index(markdown[i:], "```")
		if idx < 0 {
			break
		}
		offsets = append(offsets, i+idx)
		i += idx + 3
	}

	var blocks []CodeBlock
	for i := 0; i+1 < len(offsets); i += 2 {
		open, closing := offsets[i], offsets[i+1]
		body := markdown[open+3 : closing]

		language, code := splitInfoString(body)
		if len(code) < minLength {
			continue
		}

		before := markdown[maxInt(0, open-codeContextWindow):open]
		afterStart := closing + 3
		after := ""
		if afterStart < len(markdown) {
			after = markdown[afterStart:minInt(len(markdown), afterStart+codeContextWindow)]
		}

		blocks = append(blocks, CodeBlock{
			Code:          code,
			Language:      language,
			ContextBefore: strings.TrimSpace(before),
			ContextAfter:  strings.TrimSpace(after),
		})
	}

	return blocks
}

// splitInfoString separates an optional language token on the first line of
// a fenced block from the code body. Tokens longer than 20 characters or
// containing whitespace are treated as code, not a language tag.
func splitInfoString(body string) (language, code string) {
	nl := strings.Index(body, "\n")
	if nl < 0 {
		return "", strings.Trim(body, "\n")
	}

	first := strings.TrimSpace(body[:nl])
	rest := body[nl+1:]

	if first != "" && len(first) <= maxLanguageTokenLength && !strings.ContainsAny(first, " \t") {
		return first, strings.Trim(rest, "\n")
	}
	return "", strings.Trim(body, "\n")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

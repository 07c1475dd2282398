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

// Package sizer keeps tool responses under the caller's token budget by
// truncating content and dropping tail results. It never fails a request;
// oversized responses degrade to fewer, shorter records plus a warning.
package sizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kadirpekel/lodestone/tokens"
)

// MaxResponseTokens is the hard ceiling on any response budget. Larger
// requested budgets are clamped, not rejected.
const MaxResponseTokens = 20000

// wordBoundaryFloor is how far into the content limit a space must lie for
// word-boundary truncation to apply.
const wordBoundaryFloor = 0.8

// Constraints bound one response.
type Constraints struct {
	// MaxResponseTokens is the total budget, clamped to MaxResponseTokens.
	MaxResponseTokens int

	// MaxContentLength truncates each record's content field when
	// IncludeFullContent is false.
	MaxContentLength int

	// IncludeFullContent disables per-record content truncation.
	IncludeFullContent bool

	// ReservedTokens is budget set aside for envelope fields outside the
	// result list.
	ReservedTokens int
}

// SetDefaults fills zero fields and clamps the budget.
func (c *Constraints) SetDefaults() {
	if c.MaxResponseTokens <= 0 || c.MaxResponseTokens > MaxResponseTokens {
		c.MaxResponseTokens = MaxResponseTokens
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = 1000
	}
	if c.ReservedTokens < 0 {
		c.ReservedTokens = 0
	}
}

// Diagnostics reports what the fit pass did.
type Diagnostics struct {
	Truncated             bool `json:"truncated"`
	OriginalCount         int  `json:"original_count"`
	FinalCount            int  `json:"final_count"`
	ContentTruncatedCount int  `json:"content_truncated_count"`
	EstimatedTokens       int  `json:"estimated_tokens"`
}

// Fit applies the constraints to results in input order. contentKey names
// the field holding each record's content. Returns the surviving records,
// diagnostics, and a one-line warning ("" when nothing was cut).
//
// Records are shallow-copied before mutation; batch transforms never write
// through to the caller's slices.
func Fit(results []map[string]any, contentKey string, c Constraints) ([]map[string]any, Diagnostics, string) {
	c.SetDefaults()

	diag := Diagnostics{OriginalCount: len(results)}
	if len(results) == 0 {
		return []map[string]any{}, diag, ""
	}

	budget := c.MaxResponseTokens - c.ReservedTokens
	used := 0

	fitted := make([]map[string]any, 0, len(results))
	for _, rec := range results {
		out := make(map[string]any, len(rec)+1)
		for k, v := range rec {
			out[k] = v
		}

		if !c.IncludeFullContent {
			if content, ok := out[contentKey].(string); ok && len(content) > c.MaxContentLength {
				out[contentKey] = TruncateContent(content, c.MaxContentLength)
				out["_content_truncated"] = true
				diag.ContentTruncatedCount++
			}
		}

		cost := estimateRecordTokens(out)
		if used+cost > budget {
			break
		}
		used += cost
		fitted = append(fitted, out)
	}

	diag.FinalCount = len(fitted)
	diag.EstimatedTokens = c.ReservedTokens + used
	diag.Truncated = diag.FinalCount < diag.OriginalCount || diag.ContentTruncatedCount > 0

	return fitted, diag, warning(diag)
}

// TruncateContent cuts content to limit characters on a word boundary,
// appending " ...". When no space lies past 80% of the limit the hard limit
// is honored instead.
func TruncateContent(content string, limit int) string {
	if limit <= 0 || len(content) <= limit {
		return content
	}

	cut := content[:limit]
	if sp := strings.LastIndex(cut, " "); sp >= int(float64(limit)*wordBoundaryFloor) {
		cut = cut[:sp]
	}
	return cut + " ..."
}

// estimateRecordTokens approximates a record's serialized cost.
func estimateRecordTokens(rec map[string]any) int {
	b, err := json.Marshal(rec)
	if err != nil {
		// Unserializable values never reach this path in practice; charge
		// a conservative flat cost so the budget still holds.
		return 256
	}
	return tokens.Estimate(string(b))
}

func warning(d Diagnostics) string {
	dropped := d.OriginalCount - d.FinalCount
	switch {
	case dropped > 0:
		return fmt.Sprintf(
			"Response truncated to fit the token budget: %d of %d results returned (~%d tokens). Use the offset parameter to paginate through the remaining results.",
			d.FinalCount, d.OriginalCount, d.EstimatedTokens)
	case d.ContentTruncatedCount > 0:
		return fmt.Sprintf("Content truncated on %d results to fit the token budget.", d.ContentTruncatedCount)
	default:
		return ""
	}
}

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

package retrieve

import "github.com/kadirpekel/lodestone/vectorstore"

// keywordOnlySimilarity is assigned to rows found only by substring match.
const keywordOnlySimilarity = 0.5

// hybridBoost multiplies the similarity of rows found by both legs.
const hybridBoost = 1.2

// MergeHybrid combines vector and keyword results. Rows present in both
// sets come first with boosted similarity (capped at 1.0), then remaining
// vector rows, then keyword-only rows at a flat 0.5. Stops at limit.
func MergeHybrid(vector, keyword []vectorstore.Row, limit int) []vectorstore.Row {
	keywordIDs := make(map[string]bool, len(keyword))
	for _, r := range keyword {
		keywordIDs[r.ID] = true
	}
	vectorIDs := make(map[string]bool, len(vector))
	for _, r := range vector {
		vectorIDs[r.ID] = true
	}

	merged := make([]vectorstore.Row, 0, limit)
	seen := make(map[string]bool, limit)

	add := func(r vectorstore.Row) bool {
		if seen[r.ID] || len(merged) >= limit {
			return len(merged) < limit
		}
		seen[r.ID] = true
		merged = append(merged, r)
		return len(merged) < limit
	}

	for _, r := range vector {
		if !keywordIDs[r.ID] {
			continue
		}
		r.Similarity *= hybridBoost
		if r.Similarity > 1.0 {
			r.Similarity = 1.0
		}
		if !add(r) {
			return merged
		}
	}
	for _, r := range vector {
		if !add(r) {
			return merged
		}
	}
	for _, r := range keyword {
		if vectorIDs[r.ID] {
			continue
		}
		r.Similarity = keywordOnlySimilarity
		if !add(r) {
			return merged
		}
	}
	return merged
}

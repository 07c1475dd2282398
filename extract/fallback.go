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

package extract

import (
	"regexp"
	"strings"

	"github.com/kadirpekel/lodestone/graphstore"
)

// Rule-based extraction patterns: well-known technology names plus
// ALL_CAPS identifiers treated as configuration keys. Coarser than the LLM
// path; results carry a token mentions count only.
var fallbackPatterns = []struct {
	entityType string
	pattern    *regexp.Regexp
}{
	{"Technology", regexp.MustCompile(`\b(Python|JavaScript|TypeScript|Go|Golang|Rust|Java|Ruby|C\+\+|PHP|Kotlin|Swift)\b`)},
	{"Technology", regexp.MustCompile(`\b(React|Vue|Angular|Django|Flask|FastAPI|Rails|Spring|Express|Next\.js)\b`)},
	{"Technology", regexp.MustCompile(`\b(PostgreSQL|Postgres|MySQL|SQLite|MongoDB|Redis|Neo4j|Elasticsearch|Kafka|RabbitMQ)\b`)},
	{"Technology", regexp.MustCompile(`\b(Docker|Kubernetes|Terraform|Ansible|Nginx|Apache|AWS|GCP|Azure)\b`)},
	{"Configuration", regexp.MustCompile(`\b([A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+)\b`)},
}

// extractRuleBased tags known technology names and configuration-style
// identifiers across all chunks. No relationships are inferred.
func (e *Extractor) extractRuleBased(chunks []string) Result {
	counts := make(map[string]int)
	types := make(map[string]string)

	for _, chunk := range chunks {
		for _, fp := range fallbackPatterns {
			for _, match := range fp.pattern.FindAllString(chunk, -1) {
				name := strings.TrimSpace(match)
				counts[name]++
				if _, ok := types[name]; !ok {
					types[name] = fp.entityType
				}
			}
		}
	}

	results := make([]Result, 0, 1)
	var entities []graphstore.Entity
	for name, count := range counts {
		entities = append(entities, graphstore.Entity{
			Type:     types[name],
			Name:     name,
			Mentions: count,
		})
	}
	results = append(results, Result{Entities: entities})
	return Merge(results)
}

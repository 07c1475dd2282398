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

package graphstore

import "strings"

// EntityLabels are the node labels an extracted entity may carry. Entity
// names are unique within a label, not globally.
var EntityLabels = []string{
	"Concept",
	"Technology",
	"Configuration",
	"Person",
	"Organization",
	"Product",
}

// entityAliases maps extractor-reported types onto canonical labels.
// Anything unlisted falls back to Concept.
var entityAliases = map[string]string{
	"concept":       "Concept",
	"technology":    "Technology",
	"tool":          "Technology",
	"framework":     "Technology",
	"library":       "Technology",
	"language":      "Technology",
	"platform":      "Technology",
	"configuration": "Configuration",
	"config":        "Configuration",
	"setting":       "Configuration",
	"person":        "Person",
	"organization":  "Organization",
	"company":       "Organization",
	"product":       "Product",
	"service":       "Product",
}

// EntityLabel resolves an extractor-reported type to a canonical node
// label. Unknown types become Concept.
func EntityLabel(entityType string) string {
	if label, ok := entityAliases[strings.ToLower(strings.TrimSpace(entityType))]; ok {
		return label
	}
	return "Concept"
}

// RelationshipTypes is the closed set of relationship edge labels.
var RelationshipTypes = map[string]bool{
	"REQUIRES":         true,
	"DEPENDS_ON":       true,
	"USES":             true,
	"IMPLEMENTS":       true,
	"EXTENDS":          true,
	"PART_OF":          true,
	"CONFIGURES":       true,
	"ENABLES":          true,
	"PROVIDES":         true,
	"ALTERNATIVE_TO":   true,
	"SIMILAR_TO":       true,
	"PREREQUISITE_FOR": true,
	"DOCUMENTED_IN":    true,
	"RELATED_TO":       true,
}

// RelationshipType normalizes a reported label (uppercase, spaces and
// dashes to underscores) and collapses anything outside the closed set to
// RELATED_TO.
func RelationshipType(reported string) string {
	normalized := strings.ToUpper(strings.TrimSpace(reported))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if RelationshipTypes[normalized] {
		return normalized
	}
	return "RELATED_TO"
}

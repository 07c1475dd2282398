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

// Package urlutil classifies crawl targets and derives the stable
// identifiers that link the vector store and the graph store.
package urlutil

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
)

// Kind is the crawl classification of a URL.
type Kind string

const (
	// KindSitemap is an XML sitemap to be expanded into its listed URLs.
	KindSitemap Kind = "sitemap"

	// KindTextFile is a plain text or markdown file fetched as-is.
	KindTextFile Kind = "text_file"

	// KindWebpage is a regular page rendered by the browser.
	KindWebpage Kind = "webpage"
)

// MaxStorableURLLength is the longest URL accepted for storage.
const MaxStorableURLLength = 2048

// Classify returns the crawl kind for a URL.
//
// Sitemaps win over text files: a path ending in sitemap.xml is a sitemap
// even though it is also an XML file.
func Classify(rawURL string) Kind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return KindWebpage
	}

	path := strings.ToLower(u.Path)
	if strings.HasSuffix(path, "sitemap.xml") || strings.Contains(path, "sitemap") {
		return KindSitemap
	}
	if strings.HasSuffix(path, ".txt") {
		return KindTextFile
	}
	return KindWebpage
}

// suspicious substrings rejected before any database write. The stores use
// parameterized queries; this is a second gate for URLs that end up inside
// metadata or log lines.
var unsafeTokens = []string{
	"'", `"`, ";", "--", "/*", "*/",
	"union select", "drop table", "insert into", "delete from", "update set",
}

// IsSafeForStorage reports whether a URL may be persisted.
//
// Unsafe URLs are dropped, not errored: callers skip them and continue with
// the rest of the batch.
func IsSafeForStorage(rawURL string) bool {
	if rawURL == "" || len(rawURL) > MaxStorableURLLength {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	switch u.Scheme {
	case "http", "https", "ftp":
	default:
		return false
	}
	if u.Host == "" {
		return false
	}

	probe := strings.ToLower(u.Host + u.Path)
	for _, tok := range unsafeTokens {
		if strings.Contains(probe, tok) {
			return false
		}
	}
	return true
}

// SourceID derives the source key for a URL: the authority when present,
// otherwise the path. All chunks of all pages under one authority share a
// single Source row.
func SourceID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Host != "" {
		return u.Host
	}
	return u.Path
}

// DocumentID returns the content-addressed identifier shared by the vector
// store metadata and the graph Document node for one URL.
//
// The digest is MD5 for stability, not security: it must produce the same
// 128-bit hex value for the same URL across processes and runs.
func DocumentID(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// Normalize strips the fragment and trailing slash so link-dedupe during
// recursive crawls treats page#a and page/ as the same page.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	s := u.String()
	if strings.HasSuffix(u.Path, "/") && u.Path != "/" {
		s = strings.TrimSuffix(s, "/")
	}
	return s
}

// IsInternal reports whether candidate shares the seed URL's host.
func IsInternal(seed, candidate string) bool {
	su, err := url.Parse(seed)
	if err != nil {
		return false
	}
	cu, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	return su.Host != "" && strings.EqualFold(su.Host, cu.Host)
}

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

package crawl

import (
	"testing"
	"time"

	"github.com/kadirpekel/lodestone/httpx"
)

// Stealth and monitored crawls must walk ordinary webpages recursively;
// a single-page strategy would leave MaxDepth and the batch throttle with
// nothing to do.
func TestAutoStrategy(t *testing.T) {
	o := NewOrchestrator(httpx.NewClient(time.Second, httpx.RetryConfig{}), BrowserConfig{})

	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/docs/intro", "recursive"},
		{"https://example.com/", "recursive"},
		{"https://example.com/sitemap.xml", "sitemap"},
		{"https://example.com/llms.txt", "text_file"},
	}
	for _, tt := range tests {
		if got := o.autoStrategy(tt.url).Name(); got != tt.want {
			t.Errorf("autoStrategy(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

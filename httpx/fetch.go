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

package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxFetchBytes caps a single plain-HTTP fetch (sitemaps, text files).
const maxFetchBytes = 32 << 20

// Client wraps http.Client with the shared retry policy.
type Client struct {
	http    *http.Client
	retryer *Retryer
}

// NewClient creates a client with the given request timeout.
func NewClient(timeout time.Duration, retry RetryConfig) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		retryer: NewRetryer(retry),
	}
}

// Get fetches a URL and returns the response body. 4xx statuses are
// returned as permanent errors; 5xx and transport errors go through the
// retry schedule.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := c.retryer.Do(ctx, "http get", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", "lodestone/1.0")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

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

// Package httpx provides shared HTTP plumbing: retry with exponential
// backoff, rate-limit detection, and a fetch helper used by the crawl
// strategies.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for external calls.
type RetryConfig struct {
	// MaxRetries is the number of retry attempts after the first try
	// (default: 3).
	MaxRetries int

	// BaseDelay is the initial delay for generic transient errors,
	// doubled on every attempt (default: 1s).
	BaseDelay time.Duration

	// RateLimitDelay is the initial delay when the error is a rate limit,
	// doubled on every attempt (default: 2s).
	RateLimitDelay time.Duration

	// MaxDelay clamps the computed delay (default: 30s).
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the retry defaults shared by the embedding,
// LLM and store clients.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		RateLimitDelay: 2 * time.Second,
		MaxDelay:       30 * time.Second,
	}
}

var retryableTokens = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporarily unavailable",
	"500",
	"502",
	"503",
	"504",
}

var rateLimitTokens = []string{
	"rate limit",
	"too many requests",
	"429",
	"quota",
}

// IsRateLimit reports whether the error looks like a provider rate limit.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, tok := range rateLimitTokens {
		if strings.Contains(msg, tok) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the error is worth retrying at all.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsRateLimit(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, tok := range retryableTokens {
		if strings.Contains(msg, tok) {
			return true
		}
	}
	return false
}

// Retryer executes operations with exponential backoff. Rate-limit errors
// use a longer schedule than generic transient errors.
type Retryer struct {
	config RetryConfig
}

// NewRetryer creates a retryer, filling zero fields with defaults.
func NewRetryer(cfg RetryConfig) *Retryer {
	def := DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.RateLimitDelay <= 0 {
		cfg.RateLimitDelay = def.RateLimitDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	return &Retryer{config: cfg}
}

// Do runs fn, retrying transient failures. The last error is returned once
// the schedule is exhausted.
func (r *Retryer) Do(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			slog.Debug("Non-retryable error", "operation", operation, "error", err)
			return err
		}
		if attempt >= r.config.MaxRetries {
			break
		}

		delay := r.delay(attempt, IsRateLimit(err))
		slog.Debug("Retrying operation",
			"operation", operation,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, r.config.MaxRetries+1, lastErr)
}

func (r *Retryer) delay(attempt int, rateLimited bool) time.Duration {
	base := r.config.BaseDelay
	if rateLimited {
		base = r.config.RateLimitDelay
	}
	delay := base << attempt
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	return delay
}

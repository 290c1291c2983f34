// Package provider holds the thin adapters over the upstream LLM APIs.
// Adapters never touch quota state; they translate one request/response
// shape and annotate rate-limit failures so the orchestrator can branch.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Result is a normalized generation response.
type Result struct {
	Text string
	// Tokens is the upstream-reported total token count, 0 when the
	// provider did not report usage.
	Tokens int64
}

// Adapter is one upstream LLM backend.
type Adapter interface {
	Name() string
	Generate(ctx context.Context, credential, model, prompt string, maxTokens int) (*Result, error)
}

// RateLimitError marks an upstream HTTP 429 so callers can rotate
// credentials instead of propagating the failure.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited (retry after %s)", e.Provider, e.RetryAfter)
}

// retryAfter reads the Retry-After header, supporting both delta-seconds
// and HTTP-date forms. Zero means the upstream gave no signal.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

func truncateBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

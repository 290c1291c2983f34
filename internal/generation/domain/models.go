// Package domain defines the generation facade: the request/response shapes
// and the error taxonomy the rest of the system branches on.
package domain

import (
	"context"
	"errors"
	"fmt"

	accountdomain "github.com/studyloop/studyloop/internal/account/domain"
)

type GenerateRequest struct {
	CallerID  string `json:"caller_id"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type GenerateResponse struct {
	Text     string                 `json:"text"`
	Provider accountdomain.Provider `json:"provider"`
	Model    string                 `json:"model"`
	Tokens   int64                  `json:"tokens"`
}

// KeyType describes which credential would serve the secondary provider.
type KeyType string

const (
	KeyTypeDedicated KeyType = "dedicated"
	KeyTypeShared    KeyType = "shared"
	KeyTypeNone      KeyType = "none"
)

// ProviderQuota is the display-only quota view for one provider.
type ProviderQuota struct {
	Used         int64   `json:"used"`
	Limit        int64   `json:"limit"`
	HasKey       bool    `json:"has_key"`
	CostEstimate float64 `json:"cost_estimate,omitempty"`
	KeyType      KeyType `json:"key_type,omitempty"`
}

type QuotaReport struct {
	Primary   ProviderQuota `json:"primary"`
	Secondary ProviderQuota `json:"secondary"`
}

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	RemainingQuota(ctx context.Context, callerID string) (*QuotaReport, error)
}

var (
	ErrInvalidPrompt = errors.New("invalid_prompt")
	// ErrCapacityExceeded means every pool key was tried and the bounded
	// wait-and-retry also failed. Distinct from quota exhaustion: the
	// remediation is "try again later", not "upgrade".
	ErrCapacityExceeded = errors.New("capacity_exceeded")
	// ErrNoSecondaryCredential is a configuration error: neither the caller
	// nor the pool yields a secondary-provider credential.
	ErrNoSecondaryCredential = errors.New("no_secondary_credential")

	// ErrQuotaExceeded and ErrUpstream are match targets for errors.Is;
	// the concrete errors carry provider and cause.
	ErrQuotaExceeded = errors.New("quota_exceeded")
	ErrUpstream      = errors.New("upstream_error")
)

// QuotaExceededError is terminal for the named provider's tier.
type QuotaExceededError struct {
	Provider accountdomain.Provider
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota_exceeded: %s", e.Provider)
}

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// UpstreamError wraps a non-retryable provider failure. Blind retry on
// unknown upstream errors risks amplifying outages, so these propagate.
type UpstreamError struct {
	Provider accountdomain.Provider
	Cause    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream_error: %s: %v", e.Provider, e.Cause)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

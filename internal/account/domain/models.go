// Package domain contains the caller account model and its quota fields.
package domain

import (
	"errors"
	"strings"
	"time"
)

// Provider identifies which upstream backend a quota counter belongs to.
type Provider string

const (
	ProviderPrimary   Provider = "primary"
	ProviderSecondary Provider = "secondary"
)

// Tier is the caller's entitlement level.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// KeyKind tags a stored secondary credential as the caller's own key or a
// marker that the shared pool should be used. Legacy rows predate this field
// and are classified by the sentinel prefix instead.
type KeyKind string

const (
	KeyKindOwn    KeyKind = "own"
	KeyKindPooled KeyKind = "pooled"
)

// LegacySharedKeyPrefix marked pool delegation before KeyKind existed.
const LegacySharedKeyPrefix = "shared-"

// Account is a caller of the generation service. Quota counters are reset
// jointly on period rollover; both period starts move together.
type Account struct {
	ID string `gorm:"primaryKey;type:text"`

	PrimaryKey          *string   `gorm:"column:primary_api_key;type:text"`
	PrimaryModel        string    `gorm:"column:primary_model;type:text"`
	PrimaryMonthlyLimit int64     `gorm:"column:primary_monthly_limit;not null;default:0"`
	PrimaryUsage        int64     `gorm:"column:primary_token_usage;not null;default:0"`
	PrimaryPeriodStart  time.Time `gorm:"column:primary_period_start;not null"`

	SecondaryKey          *string   `gorm:"column:secondary_api_key;type:text"`
	SecondaryKeyKind      KeyKind   `gorm:"column:secondary_key_kind;type:text"`
	SecondaryModel        string    `gorm:"column:secondary_model;type:text"`
	SecondaryMonthlyLimit int64     `gorm:"column:secondary_monthly_limit;not null;default:0"`
	SecondaryUsage        int64     `gorm:"column:secondary_token_usage;not null;default:0"`
	SecondaryPeriodStart  time.Time `gorm:"column:secondary_period_start;not null"`

	Tier          Tier       `gorm:"type:text;not null;default:free"`
	TierActive    bool       `gorm:"column:tier_active;not null;default:false"`
	TierExpiresAt *time.Time `gorm:"column:tier_expires_at"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "caller_accounts" }

// HasOwnPrimaryKey reports whether the caller stored a primary credential.
func (a *Account) HasOwnPrimaryKey() bool {
	return a.PrimaryKey != nil && strings.TrimSpace(*a.PrimaryKey) != ""
}

// SecondaryKeyValue returns the stored secondary credential, or "".
func (a *Account) SecondaryKeyValue() string {
	if a.SecondaryKey == nil {
		return ""
	}
	return strings.TrimSpace(*a.SecondaryKey)
}

// HasDedicatedSecondaryKey reports whether the stored secondary credential is
// the caller's own key rather than a pool marker. Legacy rows without a
// KeyKind fall back to the sentinel-prefix convention.
func (a *Account) HasDedicatedSecondaryKey() bool {
	key := a.SecondaryKeyValue()
	if key == "" {
		return false
	}
	switch a.SecondaryKeyKind {
	case KeyKindOwn:
		return true
	case KeyKindPooled:
		return false
	default:
		return !strings.HasPrefix(key, LegacySharedKeyPrefix)
	}
}

// TierIsActive reports whether the caller's pro entitlement is in force at t.
func (a *Account) TierIsActive(t time.Time) bool {
	if a.Tier != TierPro || !a.TierActive {
		return false
	}
	if a.TierExpiresAt != nil && !t.Before(*a.TierExpiresAt) {
		return false
	}
	return true
}

// Usage returns the running counter for the given provider.
func (a *Account) Usage(p Provider) int64 {
	if p == ProviderPrimary {
		return a.PrimaryUsage
	}
	return a.SecondaryUsage
}

// MonthlyLimit returns the token ceiling for the given provider.
func (a *Account) MonthlyLimit(p Provider) int64 {
	if p == ProviderPrimary {
		return a.PrimaryMonthlyLimit
	}
	return a.SecondaryMonthlyLimit
}

var (
	ErrNotFound        = errors.New("caller_not_found")
	ErrInvalidCaller   = errors.New("invalid_caller")
	ErrInvalidProvider = errors.New("invalid_provider")
	ErrInvalidTokens   = errors.New("invalid_tokens")
)

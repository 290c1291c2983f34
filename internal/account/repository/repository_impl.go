package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/studyloop/studyloop/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

// Provide builds the gorm-backed account repository.
func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidCaller
	}
	var account domain.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) IncrementUsage(ctx context.Context, id string, provider domain.Provider, tokens int64) error {
	if tokens < 0 {
		return domain.ErrInvalidTokens
	}
	var column string
	switch provider {
	case domain.ProviderPrimary:
		column = "primary_token_usage"
	case domain.ProviderSecondary:
		column = "secondary_token_usage"
	default:
		return domain.ErrInvalidProvider
	}

	tx := r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			column:       gorm.Expr(column+" + ?", tokens),
			"updated_at": time.Now().UTC(),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) ResetPeriods(ctx context.Context, id string, now time.Time) error {
	tx := r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"primary_token_usage":    0,
			"secondary_token_usage":  0,
			"primary_period_start":   now,
			"secondary_period_start": now,
			"updated_at":             now,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

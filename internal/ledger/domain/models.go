// Package domain contains persistence models for the generation history.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// GenerationRecord stores one completed generation for history and audits.
type GenerationRecord struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	CallerID string       `gorm:"column:caller_id;type:text;not null;index"`
	Provider string       `gorm:"type:text;not null"`
	Model    string       `gorm:"type:text;not null"`
	Tokens   int64        `gorm:"not null"`
	// Estimated marks records whose token count came from the chars/4
	// approximation rather than the upstream usage report.
	Estimated bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (GenerationRecord) TableName() string { return "generation_records" }

type RecordRequest struct {
	CallerID  string
	Provider  string
	Model     string
	Tokens    int64
	Estimated bool
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) error
	ListByCaller(ctx context.Context, callerID string, limit int) ([]GenerationRecord, error)
}

var (
	ErrInvalidCaller = errors.New("invalid_caller")
)

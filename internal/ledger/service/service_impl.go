package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/studyloop/studyloop/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p ServiceParam) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
	}
}

func (s *Service) Record(ctx context.Context, req ledgerdomain.RecordRequest) error {
	callerID := strings.TrimSpace(req.CallerID)
	if callerID == "" {
		return ledgerdomain.ErrInvalidCaller
	}
	record := &ledgerdomain.GenerationRecord{
		ID:        s.genID.Generate(),
		CallerID:  callerID,
		Provider:  req.Provider,
		Model:     req.Model,
		Tokens:    req.Tokens,
		Estimated: req.Estimated,
		CreatedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *Service) ListByCaller(ctx context.Context, callerID string, limit int) ([]ledgerdomain.GenerationRecord, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return nil, ledgerdomain.ErrInvalidCaller
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var records []ledgerdomain.GenerationRecord
	err := s.db.WithContext(ctx).
		Where("caller_id = ?", callerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	perioddomain "github.com/bistrokit/stockbook/internal/fiscalperiod/domain"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) perioddomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("fiscalperiod.service"),
	}
}

func (s *Service) FindPeriod(ctx context.Context, orgID snowflake.ID, date time.Time) (*perioddomain.FiscalPeriod, error) {
	if orgID == 0 {
		return nil, perioddomain.ErrInvalidOrganization
	}

	var period perioddomain.FiscalPeriod
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND start_date <= ? AND end_date >= ?", orgID, date, date).
		Order("start_date DESC").
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, perioddomain.ErrPeriodNotFound
		}
		return nil, err
	}
	return &period, nil
}

func (s *Service) EnsureOpen(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, date time.Time) error {
	if orgID == 0 {
		return perioddomain.ErrInvalidOrganization
	}

	var period perioddomain.FiscalPeriod
	err := tx.WithContext(ctx).
		Where("org_id = ? AND start_date <= ? AND end_date >= ? AND status = ?",
			orgID, date, date, perioddomain.PeriodStatusLocked).
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	s.log.Warn("posting rejected by period lock",
		zap.String("org_id", orgID.String()),
		zap.String("period", period.Name),
		zap.Time("date", date),
	)
	return perioddomain.ErrPeriodLocked
}

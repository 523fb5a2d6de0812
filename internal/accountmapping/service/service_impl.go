package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	mappingdomain "github.com/bistrokit/stockbook/internal/accountmapping/domain"
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

func NewService(p Params) mappingdomain.Resolver {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("accountmapping.service"),
	}
}

func (s *Service) Resolve(ctx context.Context, orgID, branchID snowflake.ID) (*mappingdomain.AccountMapping, error) {
	return s.ResolveTx(ctx, s.db, orgID, branchID)
}

func (s *Service) ResolveTx(ctx context.Context, tx *gorm.DB, orgID, branchID snowflake.ID) (*mappingdomain.AccountMapping, error) {
	if orgID == 0 {
		return nil, mappingdomain.ErrInvalidOrganization
	}

	if branchID != 0 {
		var branchMapping mappingdomain.AccountMapping
		err := tx.WithContext(ctx).
			Where("org_id = ? AND branch_id = ?", orgID, branchID).
			First(&branchMapping).Error
		if err == nil {
			return &branchMapping, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var orgMapping mappingdomain.AccountMapping
	err := tx.WithContext(ctx).
		Where("org_id = ? AND branch_id IS NULL", orgID).
		First(&orgMapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mappingdomain.ErrUnconfigured
		}
		return nil, err
	}
	return &orgMapping, nil
}

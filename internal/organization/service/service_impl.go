package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bistrokit/stockbook/internal/organization/domain"
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

func NewService(p Params) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("organization.service"),
	}
}

func (s *Service) Get(ctx context.Context, orgID snowflake.ID) (*domain.Organization, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	var org domain.Organization
	err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrganizationMissing
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *Service) GetDefault(ctx context.Context) (*domain.Organization, error) {
	var org domain.Organization
	err := s.db.WithContext(ctx).First(&org, "is_default = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrganizationMissing
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *Service) ListBranches(ctx context.Context, orgID snowflake.ID) ([]*domain.Branch, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	var branches []*domain.Branch
	err := s.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&branches).Error
	if err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Service) GetDefaultBranch(ctx context.Context, orgID snowflake.ID) (*domain.Branch, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	var branch domain.Branch
	err := s.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("is_default DESC, created_at ASC").
		First(&branch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBranchMissing
	}
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

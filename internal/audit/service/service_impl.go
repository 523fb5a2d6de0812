package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdomain "github.com/bistrokit/stockbook/internal/audit/domain"
	"github.com/bistrokit/stockbook/internal/clock"
	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, orgID, branchID snowflake.ID, actor, action, resourceType, resourceID string, metadata map[string]any) {
	action = strings.TrimSpace(action)
	if action == "" || orgID == 0 {
		return
	}

	resourceType = strings.TrimSpace(resourceType)
	if resourceType == "" {
		resourceType = "unknown"
	}

	payload := map[string]any{}
	for key, value := range metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	entry := auditdomain.AuditLog{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		BranchID:     branchID,
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     datatypes.JSONMap(payload),
		CreatedAt:    s.clock.Now(),
	}

	// Fire-and-forget: the sink must never fail an inventory mutation.
	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID, filter auditdomain.ListFilter) ([]*auditdomain.AuditLog, *pagination.PageInfo, error) {
	if orgID == 0 {
		return nil, nil, auditdomain.ErrInvalidOrganization
	}
	return s.repo.List(ctx, s.db, orgID, filter)
}

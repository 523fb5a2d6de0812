package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/bistrokit/stockbook/internal/audit/domain"
	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]*domain.AuditLog, *pagination.PageInfo, error) {
	stmt := db.WithContext(ctx).Model(&domain.AuditLog{}).
		Where("org_id = ?", orgID)

	if action := strings.TrimSpace(filter.Action); action != "" {
		stmt = stmt.Where("action = ?", action)
	}
	if resourceType := strings.TrimSpace(filter.ResourceType); resourceType != "" {
		stmt = stmt.Where("resource_type = ?", resourceType)
	}
	if resourceID := strings.TrimSpace(filter.ResourceID); resourceID != "" {
		stmt = stmt.Where("resource_id = ?", resourceID)
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}

	if filter.PageToken != "" {
		beforeID, err := pagination.DecodeIDToken(filter.PageToken)
		if err != nil {
			return nil, nil, err
		}
		stmt = stmt.Where("id < ?", beforeID)
	}

	// Snowflake IDs are time-ordered, so the ID doubles as the
	// newest-first paging key.
	limit := filter.Limit()
	var logs []*domain.AuditLog
	if err := stmt.Order("id DESC").Limit(limit + 1).Find(&logs).Error; err != nil {
		return nil, nil, err
	}
	logs, pageInfo := pagination.BuildPageInfo(logs, limit, func(l *domain.AuditLog) string {
		return pagination.TokenForID(l.ID)
	})
	return logs, pageInfo, nil
}

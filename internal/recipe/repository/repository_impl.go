package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/bistrokit/stockbook/internal/recipe/domain"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) GetLines(ctx context.Context, orgID, targetID snowflake.ID) ([]domain.RecipeLine, error) {
	if targetID == 0 {
		return nil, domain.ErrInvalidTarget
	}
	var lines []domain.RecipeLine
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND target_id = ?", orgID, targetID).
		Order("position ASC, id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

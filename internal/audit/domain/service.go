package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

// Service is the append-only audit sink. Record is fire-and-forget:
// a failed write is logged and swallowed, never surfaced into the
// caller's transaction.
type Service interface {
	Record(ctx context.Context, orgID, branchID snowflake.ID, actor, action, resourceType, resourceID string, metadata map[string]any)
	List(ctx context.Context, orgID snowflake.ID, filter ListFilter) ([]*AuditLog, *pagination.PageInfo, error)
}

// Repository persists audit rows.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]*AuditLog, *pagination.PageInfo, error)
}

// ListFilter narrows audit listings. The embedded cursor pages
// newest first.
type ListFilter struct {
	Action       string
	ResourceType string
	ResourceID   string
	StartAt      *time.Time
	EndAt        *time.Time
	pagination.Pagination
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAction       = errors.New("invalid_action")
)

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog is one append-only record of who did what to which resource.
type AuditLog struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID      `gorm:"not null;index" json:"org_id"`
	BranchID     snowflake.ID      `gorm:"index" json:"branch_id"`
	Actor        string            `gorm:"type:text;not null" json:"actor"`
	Action       string            `gorm:"type:text;not null;index" json:"action"`
	ResourceType string            `gorm:"type:text;not null" json:"resource_type"`
	ResourceID   string            `gorm:"type:text;index" json:"resource_id"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Package domain contains persistence models for the org service.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization represents a tenant.
type Organization struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name         string            `gorm:"type:text;not null" json:"name"`
	Slug         string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	IsDefault    bool              `gorm:"column:is_default" json:"is_default"`
	CountryCode  string            `gorm:"column:country_code" json:"country_code,omitempty"`
	TimezoneName string            `gorm:"column:timezone_name" json:"timezone_name,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// Branch is one physical site of an organization. Every movement, lot
// and journal entry is scoped to a branch.
type Branch struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_branches_org_slug,priority:1" json:"org_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex:ux_branches_org_slug,priority:2" json:"slug"`
	IsDefault bool         `gorm:"column:is_default" json:"is_default"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Branch) TableName() string { return "branches" }

// Service resolves tenants and their branches.
type Service interface {
	Get(ctx context.Context, orgID snowflake.ID) (*Organization, error)
	GetDefault(ctx context.Context) (*Organization, error)
	ListBranches(ctx context.Context, orgID snowflake.ID) ([]*Branch, error)
	GetDefaultBranch(ctx context.Context, orgID snowflake.ID) (*Branch, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrOrganizationMissing = errors.New("organization_not_found")
	ErrBranchMissing       = errors.New("branch_not_found")
)

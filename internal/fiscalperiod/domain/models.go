package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PeriodStatus is the posting-control state of a fiscal period.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// FiscalPeriod is one dated posting window. A LOCKED period rejects any
// journal posting dated inside it.
type FiscalPeriod struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index:idx_fiscal_periods_org_dates,priority:1" json:"org_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	StartDate time.Time    `gorm:"not null;index:idx_fiscal_periods_org_dates,priority:2" json:"start_date"`
	EndDate   time.Time    `gorm:"not null" json:"end_date"`
	Status    PeriodStatus `gorm:"type:text;not null;default:OPEN" json:"status"`
	LockedAt  *time.Time   `json:"locked_at,omitempty"`
	LockedBy  string       `gorm:"type:text" json:"locked_by,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (FiscalPeriod) TableName() string { return "fiscal_periods" }

// Covers reports whether the date falls inside the period (inclusive).
func (p FiscalPeriod) Covers(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// Service looks up fiscal periods and enforces the posting lock.
type Service interface {
	FindPeriod(ctx context.Context, orgID snowflake.ID, date time.Time) (*FiscalPeriod, error)
	// EnsureOpen returns ErrPeriodLocked when a LOCKED period covers the
	// date; no period or an OPEN one passes. The lookup is a local read
	// against the caller's transaction so the check commits atomically
	// with the posting.
	EnsureOpen(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, date time.Time) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrPeriodNotFound      = errors.New("fiscal_period_not_found")
	ErrPeriodLocked        = errors.New("fiscal_period_locked")
)

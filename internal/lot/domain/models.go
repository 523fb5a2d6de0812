package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// LotStatus is derived from remaining quantity and expiry, never set freely.
type LotStatus string

const (
	LotStatusActive     LotStatus = "ACTIVE"
	LotStatusQuarantine LotStatus = "QUARANTINE"
	LotStatusExpired    LotStatus = "EXPIRED"
	LotStatusDepleted   LotStatus = "DEPLETED"
)

// Lot is one receiving event for an item at a location, tracked with its
// own remaining quantity and optional expiry. Unique per
// (org, branch, item, location, lot_number).
type Lot struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID    `gorm:"not null;uniqueIndex:ux_lots_number,priority:1" json:"org_id"`
	BranchID     snowflake.ID    `gorm:"not null;uniqueIndex:ux_lots_number,priority:2" json:"branch_id"`
	ItemID       snowflake.ID    `gorm:"not null;uniqueIndex:ux_lots_number,priority:3;index:idx_lots_item_loc,priority:1" json:"item_id"`
	LocationID   snowflake.ID    `gorm:"not null;uniqueIndex:ux_lots_number,priority:4;index:idx_lots_item_loc,priority:2" json:"location_id"`
	LotNumber    string          `gorm:"type:text;not null;uniqueIndex:ux_lots_number,priority:5" json:"lot_number"`
	ReceivedQty  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"received_qty"`
	RemainingQty decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"remaining_qty"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	ExpiryDate   *time.Time      `gorm:"index" json:"expiry_date,omitempty"`
	Status       LotStatus       `gorm:"type:text;not null;index" json:"status"`
	SourceType   string          `gorm:"type:text;not null" json:"source_type"`
	SourceID     snowflake.ID    `gorm:"not null" json:"source_id"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

func (Lot) TableName() string { return "lots" }

// HasExpiry reports whether the lot carries a concrete expiry date.
func (l Lot) HasExpiry() bool {
	return l.ExpiryDate != nil
}

// ExpiredAt reports whether the lot's expiry has passed at the given time.
func (l Lot) ExpiredAt(now time.Time) bool {
	return l.ExpiryDate != nil && l.ExpiryDate.Before(now)
}

// DeriveStatus applies the derivation rules: DEPLETED at zero remaining,
// EXPIRED when the expiry has passed with stock left. QUARANTINE is
// sticky until explicitly released.
func (l Lot) DeriveStatus(now time.Time) LotStatus {
	if l.Status == LotStatusQuarantine {
		return LotStatusQuarantine
	}
	if l.RemainingQty.IsZero() {
		return LotStatusDepleted
	}
	if l.ExpiredAt(now) {
		return LotStatusExpired
	}
	return LotStatusActive
}

// LotAllocation is the immutable traceability row written with every
// decrement. remaining = received − Σallocated + Σincrements, always.
type LotAllocation struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	LotID           snowflake.ID    `gorm:"not null;index" json:"lot_id"`
	AllocatedQty    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"allocated_qty"`
	SourceType      string          `gorm:"type:text;not null" json:"source_type"`
	SourceID        snowflake.ID    `gorm:"not null;index" json:"source_id"`
	AllocationOrder int             `gorm:"not null" json:"allocation_order"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (LotAllocation) TableName() string { return "lot_allocations" }

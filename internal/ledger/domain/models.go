package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MovementReason classifies why stock moved.
type MovementReason string

const (
	ReasonPurchaseReceipt MovementReason = "purchase_receipt"
	ReasonOpeningStock    MovementReason = "opening_stock"
	ReasonTransferIn      MovementReason = "transfer_in"
	ReasonTransferOut     MovementReason = "transfer_out"
	ReasonSaleDepletion   MovementReason = "sale_depletion"
	ReasonWaste           MovementReason = "waste"
	ReasonStocktakeGain   MovementReason = "stocktake_gain"
	ReasonStocktakeShrink MovementReason = "stocktake_shrink"
	ReasonVendorReturn    MovementReason = "vendor_return"
	ReasonManual          MovementReason = "manual_adjustment"
)

// unconditionalInbound marks reasons that may never be blocked by the
// on-hand check, even when a correcting entry carries a negative qty.
var unconditionalInbound = map[MovementReason]bool{
	ReasonPurchaseReceipt: true,
	ReasonOpeningStock:    true,
	ReasonTransferIn:      true,
	ReasonStocktakeGain:   true,
}

func (r MovementReason) UnconditionalInbound() bool {
	return unconditionalInbound[r]
}

// StockMovement is one immutable row of the append-only movement ledger.
// On-hand for any (item, location) is the running sum of Qty; corrections
// are new opposing rows, never edits.
type StockMovement struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID      `gorm:"not null;index:idx_stock_movements_scope,priority:1" json:"org_id"`
	BranchID      snowflake.ID      `gorm:"not null;index:idx_stock_movements_scope,priority:2" json:"branch_id"`
	ItemID        snowflake.ID      `gorm:"not null;index:idx_stock_movements_scope,priority:3" json:"item_id"`
	LocationID    snowflake.ID      `gorm:"not null;index:idx_stock_movements_scope,priority:4" json:"location_id"`
	Qty           decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"qty"`
	Reason        MovementReason    `gorm:"type:text;not null;index" json:"reason"`
	SourceType    string            `gorm:"type:text;not null" json:"source_type"`
	SourceID      snowflake.ID      `gorm:"index" json:"source_id"`
	CorrelationID string            `gorm:"type:text" json:"correlation_id"`
	CreatedBy     string            `gorm:"type:text" json:"created_by"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (StockMovement) TableName() string { return "stock_movements" }

// StockLevel caches the running sum per (org, branch, item, location).
// It exists to give same-pair writers a row to serialize on and readers
// a cheap lookup; the movement ledger stays the sole source of truth and
// every cached value is rebuildable from it (see Service.Rebuild).
type StockLevel struct {
	ID         snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID    `gorm:"not null;uniqueIndex:ux_stock_levels_pair,priority:1" json:"org_id"`
	BranchID   snowflake.ID    `gorm:"not null;uniqueIndex:ux_stock_levels_pair,priority:2" json:"branch_id"`
	ItemID     snowflake.ID    `gorm:"not null;uniqueIndex:ux_stock_levels_pair,priority:3" json:"item_id"`
	LocationID snowflake.ID    `gorm:"not null;uniqueIndex:ux_stock_levels_pair,priority:4" json:"location_id"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UpdatedAt  time.Time       `gorm:"not null" json:"updated_at"`
}

func (StockLevel) TableName() string { return "stock_levels" }

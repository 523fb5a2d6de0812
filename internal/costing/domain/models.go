package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// CostLayer is the cost/quantity pair from one receiving event, the
// input to weighted-average costing. QtyRemaining mirrors what is still
// on hand out of this layer; layers with zero remaining no longer carry
// weight.
type CostLayer struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID    `gorm:"not null;index:idx_cost_layers_item,priority:1" json:"org_id"`
	BranchID     snowflake.ID    `gorm:"not null" json:"branch_id"`
	ItemID       snowflake.ID    `gorm:"not null;index:idx_cost_layers_item,priority:2" json:"item_id"`
	LocationID   snowflake.ID    `gorm:"not null;index" json:"location_id"`
	QtyReceived  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_received"`
	QtyRemaining decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_remaining"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	SourceType   string          `gorm:"type:text;not null" json:"source_type"`
	SourceID     snowflake.ID    `gorm:"index" json:"source_id"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (CostLayer) TableName() string { return "cost_layers" }

// ItemCosting is the margin breakdown for one priced line.
type ItemCosting struct {
	CostUnit    decimal.Decimal `json:"cost_unit"`
	CostTotal   decimal.Decimal `json:"cost_total"`
	LineNet     decimal.Decimal `json:"line_net"`
	MarginTotal decimal.Decimal `json:"margin_total"`
	MarginPct   decimal.Decimal `json:"margin_pct"`
}

// CostingInput carries the priced quantities of one line.
type CostingInput struct {
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	ModifiersPrice decimal.Decimal `json:"modifiers_price"`
	Discount       decimal.Decimal `json:"discount"`
}

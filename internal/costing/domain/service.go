package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LayerInput describes one cost layer to record alongside an inbound
// movement.
type LayerInput struct {
	ItemID     snowflake.ID
	LocationID snowflake.ID
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	SourceType string
	SourceID   snowflake.ID
	ReceivedAt time.Time
}

// Service is the weighted-average-cost engine.
type Service interface {
	AddLayerTx(ctx context.Context, tx *gorm.DB, orgID, branchID snowflake.ID, input LayerInput) (*CostLayer, error)

	// ConsumeLayersTx reduces remaining layer quantities oldest-first as
	// stock leaves, so the WAC denominator tracks on-hand. Returns the
	// quantity actually consumed (never more than the layers held).
	ConsumeLayersTx(ctx context.Context, tx *gorm.DB, orgID, branchID, itemID, locationID snowflake.ID, qty decimal.Decimal) (decimal.Decimal, error)

	// RestoreLayersTx puts quantity back newest-first (void paths).
	RestoreLayersTx(ctx context.Context, tx *gorm.DB, orgID, branchID, itemID, locationID snowflake.ID, qty decimal.Decimal) (decimal.Decimal, error)

	GetWAC(ctx context.Context, orgID, itemID snowflake.ID) (decimal.Decimal, error)
	GetRecipeCost(ctx context.Context, orgID, targetID snowflake.ID, selectedModifiers map[string]bool) (decimal.Decimal, error)
	CalculateItemCosting(ctx context.Context, orgID, targetID snowflake.ID, selectedModifiers map[string]bool, input CostingInput) (*ItemCosting, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidItem         = errors.New("invalid_item")
	ErrInvalidQty          = errors.New("invalid_qty")
	ErrInvalidUnitCost     = errors.New("invalid_unit_cost")
)

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreateLotInput describes one receiving event.
type CreateLotInput struct {
	ItemID     snowflake.ID
	LocationID snowflake.ID
	LotNumber  string
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	ExpiryDate *time.Time
	SourceType string
	SourceID   snowflake.ID
}

// CreateLotResult reports the lot and whether the call replayed an
// earlier creation of the same receiving event.
type CreateLotResult struct {
	Lot          *Lot `json:"lot"`
	IsIdempotent bool `json:"is_idempotent"`
}

// Traceability is the reconstructed consumption history of a lot.
type Traceability struct {
	Lot            *Lot             `json:"lot"`
	Allocations    []*LotAllocation `json:"allocations"`
	TotalAllocated decimal.Decimal  `json:"total_allocated"`
	TotalReturned  decimal.Decimal  `json:"total_returned"`
}

// Service tracks per-lot remaining quantity and expiry, and applies
// FEFO allocations with a traceability trail.
type Service interface {
	// CreateLot is idempotent on (org, branch, item, location, lotNumber,
	// sourceType, sourceID); reuse of a lot number under a different
	// source fails with ErrLotConflict.
	CreateLot(ctx context.Context, orgID, branchID snowflake.ID, input CreateLotInput) (*CreateLotResult, error)
	CreateLotTx(ctx context.Context, tx *gorm.DB, orgID, branchID snowflake.ID, input CreateLotInput) (*CreateLotResult, error)

	// AllocateFEFO computes an allocation plan without mutating anything.
	AllocateFEFO(ctx context.Context, orgID, branchID, itemID, locationID snowflake.ID, qtyNeeded decimal.Decimal, excludeExpired bool) (*Plan, error)

	// DecrementLot reduces remaining quantity and writes the matching
	// LotAllocation trace row in one transaction.
	DecrementLot(ctx context.Context, lotID snowflake.ID, qty decimal.Decimal, sourceType string, sourceID snowflake.ID, allocationOrder int) (*Lot, error)
	DecrementLotTx(ctx context.Context, tx *gorm.DB, lotID snowflake.ID, qty decimal.Decimal, sourceType string, sourceID snowflake.ID, allocationOrder int) (*Lot, error)

	// IncrementLot reverses a prior decrement (vendor-return voids,
	// transfer receipts); a DEPLETED lot reactivates to ACTIVE.
	IncrementLot(ctx context.Context, lotID snowflake.ID, qty decimal.Decimal) (*Lot, error)
	IncrementLotTx(ctx context.Context, tx *gorm.DB, lotID snowflake.ID, qty decimal.Decimal) (*Lot, error)

	GetLot(ctx context.Context, lotID snowflake.ID) (*Lot, error)
	GetTraceability(ctx context.Context, lotID snowflake.ID) (*Traceability, error)

	// RefreshStatus re-derives statuses (EXPIRED flips) for an org.
	RefreshStatus(ctx context.Context, orgID snowflake.ID) (int, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidBranch       = errors.New("invalid_branch")
	ErrInvalidItem         = errors.New("invalid_item")
	ErrInvalidLocation     = errors.New("invalid_location")
	ErrInvalidLotNumber    = errors.New("invalid_lot_number")
	ErrInvalidQty          = errors.New("invalid_qty")
	ErrLotNotFound         = errors.New("lot_not_found")
	ErrLotConflict         = errors.New("lot_number_conflict")
	ErrInsufficientLotQty  = errors.New("insufficient_lot_qty")
)

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

// RecordInput describes one movement to append.
type RecordInput struct {
	ItemID     snowflake.ID
	LocationID snowflake.ID
	Qty        decimal.Decimal
	Reason     MovementReason
	SourceType string
	SourceID   snowflake.ID
	CreatedBy  string
	Metadata   map[string]any

	// AllowNegative bypasses the on-hand check. Reserved for callers
	// that knowingly drive a pair negative (backdated corrections).
	AllowNegative bool
}

// RecordResult returns the appended row together with the fresh on-hand
// sum, so callers never need a second read to confirm effect.
type RecordResult struct {
	Movement StockMovement   `json:"movement"`
	OnHand   decimal.Decimal `json:"on_hand"`
}

// Service is the append-only movement ledger. On-hand answers are
// always Σqty over movements, never an independent counter.
type Service interface {
	RecordEntry(ctx context.Context, orgID, branchID snowflake.ID, input RecordInput) (*RecordResult, error)
	// RecordEntryTx appends inside the caller's transaction so that
	// orchestrators can commit the movement with their other writes.
	RecordEntryTx(ctx context.Context, tx *gorm.DB, orgID, branchID snowflake.ID, input RecordInput) (*RecordResult, error)

	GetOnHand(ctx context.Context, orgID, branchID, itemID, locationID snowflake.ID) (decimal.Decimal, error)
	GetOnHandByLocation(ctx context.Context, orgID, branchID, itemID snowflake.ID) (map[snowflake.ID]decimal.Decimal, error)
	GetOnHandByBranch(ctx context.Context, orgID, itemID snowflake.ID) (map[snowflake.ID]decimal.Decimal, error)

	ListMovements(ctx context.Context, orgID snowflake.ID, filter ListFilter) ([]*StockMovement, *pagination.PageInfo, error)

	// Rebuild recomputes every cached stock level for the org from the
	// movement ledger. The reconcile path back to the source of truth.
	Rebuild(ctx context.Context, orgID snowflake.ID) (int, error)
}

// ListFilter narrows movement listings. The embedded cursor pages
// newest first.
type ListFilter struct {
	BranchID   snowflake.ID
	ItemID     snowflake.ID
	LocationID snowflake.ID
	Reason     MovementReason
	pagination.Pagination
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidBranch       = errors.New("invalid_branch")
	ErrInvalidItem         = errors.New("invalid_item")
	ErrInvalidLocation     = errors.New("invalid_location")
	ErrInvalidQty          = errors.New("invalid_qty")
	ErrInvalidReason       = errors.New("invalid_reason")
	ErrInsufficientStock   = errors.New("insufficient_stock")
)

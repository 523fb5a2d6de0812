package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	costingdomain "github.com/bistrokit/stockbook/internal/costing/domain"
	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	lotdomain "github.com/bistrokit/stockbook/internal/lot/domain"
)

// SourceType tags movements, layers and journal entries written by a
// goods receipt.
const SourceType = "goods_receipt"

// ReceiveInput describes one goods receipt line.
type ReceiveInput struct {
	ItemID     snowflake.ID    `json:"item_id"`
	LocationID snowflake.ID    `json:"location_id"`
	LotNumber  string          `json:"lot_number"`
	Qty        decimal.Decimal `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`

	// ReceiptID is the business idempotency key. Zero means the caller
	// has no external document and a fresh ID is assigned.
	ReceiptID snowflake.ID `json:"receipt_id"`
	Actor     string       `json:"actor"`
}

// ReceiveResult reports everything a receipt touched.
type ReceiveResult struct {
	ReceiptID snowflake.ID               `json:"receipt_id"`
	Movement  *ledgerdomain.RecordResult `json:"movement,omitempty"`
	Lot       *lotdomain.Lot             `json:"lot"`
	Layer     *costingdomain.CostLayer   `json:"layer,omitempty"`
	Posting   *gldomain.PostingResult    `json:"posting,omitempty"`

	// IsIdempotent reports that this receipt was already applied and
	// the call changed nothing.
	IsIdempotent bool `json:"is_idempotent"`
}

// Service applies a goods receipt as one atomic unit: inbound movement,
// lot creation, cost layer and GL posting commit or roll back together.
type Service interface {
	Receive(ctx context.Context, orgID, branchID snowflake.ID, input ReceiveInput) (*ReceiveResult, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidBranch       = errors.New("invalid_branch")
	ErrInvalidQty          = errors.New("invalid_qty")
	ErrInvalidUnitCost     = errors.New("invalid_unit_cost")
)

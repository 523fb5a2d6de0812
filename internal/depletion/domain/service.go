package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	lotdomain "github.com/bistrokit/stockbook/internal/lot/domain"
)

// Source type tags for movements and journal entries.
const (
	SourceTypeDepletion = "depletion"
	SourceTypeWaste     = "waste"
)

// DepleteInput describes one consumption of stock.
type DepleteInput struct {
	ItemID     snowflake.ID    `json:"item_id"`
	LocationID snowflake.ID    `json:"location_id"`
	Qty        decimal.Decimal `json:"qty"`

	// ExcludeExpired keeps expired lots out of the allocation plan.
	// Waste disposal leaves it false so expired stock can be written off.
	ExcludeExpired bool `json:"exclude_expired"`

	// DepletionID is the business idempotency key for the GL posting.
	// Zero means a fresh ID is assigned.
	DepletionID snowflake.ID `json:"depletion_id"`
	Actor       string       `json:"actor"`
}

// DepleteResult reports the applied plan and its valuation.
type DepleteResult struct {
	DepletionID snowflake.ID               `json:"depletion_id"`
	Plan        *lotdomain.Plan            `json:"plan"`
	Movement    *ledgerdomain.RecordResult `json:"movement"`
	UnitCost    decimal.Decimal            `json:"unit_cost"`
	Amount      decimal.Decimal            `json:"amount"`
	Posting     *gldomain.PostingResult    `json:"posting,omitempty"`
}

// Service consumes stock FEFO-first, values the consumption at the
// item's weighted average cost, and posts the matching journal entry.
type Service interface {
	// Deplete records a sale consumption: outbound movement, lot
	// decrements per the FEFO plan, Dr COGS / Cr Inventory.
	Deplete(ctx context.Context, orgID, branchID snowflake.ID, input DepleteInput) (*DepleteResult, error)

	// Waste records a disposal: same mechanics, waste reason and
	// Dr Waste Expense / Cr Inventory.
	Waste(ctx context.Context, orgID, branchID snowflake.ID, input DepleteInput) (*DepleteResult, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidBranch       = errors.New("invalid_branch")
	ErrInvalidQty          = errors.New("invalid_qty")
)

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
)

// SourceType tags movements, layers and journal entries written by a
// stocktake adjustment.
const SourceType = "stocktake"

// CountInput describes one physical count line.
type CountInput struct {
	ItemID     snowflake.ID    `json:"item_id"`
	LocationID snowflake.ID    `json:"location_id"`
	CountedQty decimal.Decimal `json:"counted_qty"`

	// StocktakeID is the business idempotency key for the GL posting.
	// Zero means a fresh ID is assigned.
	StocktakeID snowflake.ID `json:"stocktake_id"`
	Actor       string       `json:"actor"`
}

// CountResult reports the variance and what was adjusted.
type CountResult struct {
	StocktakeID snowflake.ID    `json:"stocktake_id"`
	SystemQty   decimal.Decimal `json:"system_qty"`
	CountedQty  decimal.Decimal `json:"counted_qty"`
	Variance    decimal.Decimal `json:"variance"`

	// WithinTolerance reports that the variance was below the
	// configured threshold and nothing was adjusted.
	WithinTolerance bool `json:"within_tolerance"`

	Movement *ledgerdomain.RecordResult `json:"movement,omitempty"`
	UnitCost decimal.Decimal            `json:"unit_cost"`
	Amount   decimal.Decimal            `json:"amount"`
	Posting  *gldomain.PostingResult    `json:"posting,omitempty"`
}

// Service reconciles physical counts against the ledger: the variance
// becomes a gain or shrink movement valued at WAC, with the matching
// journal entry.
type Service interface {
	ApplyCount(ctx context.Context, orgID, branchID snowflake.ID, input CountInput) (*CountResult, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidBranch       = errors.New("invalid_branch")
	ErrInvalidCount        = errors.New("invalid_count")
)

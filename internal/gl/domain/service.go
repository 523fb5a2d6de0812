package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

// Service derives idempotent, balanced journal entries from inventory
// events. Posting failures other than a period lock are reported on the
// result, never as an error, because GL is supplementary to the
// inventory mutation that triggered it.
type Service interface {
	PostGoodsReceipt(ctx context.Context, orgID, branchID, receiptID snowflake.ID, amount decimal.Decimal, actor string) (*PostingResult, error)
	PostDepletion(ctx context.Context, orgID, branchID, depletionID snowflake.ID, amount decimal.Decimal, actor string) (*PostingResult, error)
	PostWaste(ctx context.Context, orgID, branchID, wasteID snowflake.ID, amount decimal.Decimal, actor string) (*PostingResult, error)
	PostStocktake(ctx context.Context, orgID, branchID, stocktakeID snowflake.ID, variance decimal.Decimal, actor string) (*PostingResult, error)

	// Tx variants post inside the caller's transaction so a period-lock
	// rejection rolls the whole business operation back.
	PostGoodsReceiptTx(ctx context.Context, tx *gorm.DB, orgID, branchID, receiptID snowflake.ID, amount decimal.Decimal, actor string) (*PostingResult, error)
	PostDepletionTx(ctx context.Context, tx *gorm.DB, orgID, branchID, depletionID snowflake.ID, amount decimal.Decimal, actor string) (*PostingResult, error)
	PostWasteTx(ctx context.Context, tx *gorm.DB, orgID, branchID, wasteID snowflake.ID, amount decimal.Decimal, actor string) (*PostingResult, error)
	PostStocktakeTx(ctx context.Context, tx *gorm.DB, orgID, branchID, stocktakeID snowflake.ID, variance decimal.Decimal, actor string) (*PostingResult, error)

	VoidGoodsReceipt(ctx context.Context, orgID, receiptID snowflake.ID, actor string) (*PostingResult, error)
	VoidDepletion(ctx context.Context, orgID, depletionID snowflake.ID, actor string) (*PostingResult, error)
	VoidWaste(ctx context.Context, orgID, wasteID snowflake.ID, actor string) (*PostingResult, error)
	VoidStocktake(ctx context.Context, orgID, stocktakeID snowflake.ID, actor string) (*PostingResult, error)

	GetEntry(ctx context.Context, orgID snowflake.ID, source Source, sourceID snowflake.ID) (*JournalEntry, error)
	ListEntries(ctx context.Context, orgID snowflake.ID, filter ListFilter) ([]*JournalEntry, *pagination.PageInfo, error)
}

// ListFilter narrows journal listings. The embedded cursor pages
// newest first.
type ListFilter struct {
	BranchID snowflake.ID
	Source   Source
	Status   JournalStatus
	pagination.Pagination
}

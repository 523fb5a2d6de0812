package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	mappingdomain "github.com/bistrokit/stockbook/internal/accountmapping/domain"
)

// Document is the closed set of postable business document kinds. Each
// variant carries its own pairing rule; there is no string-tag dispatch.
type Document interface {
	Source() Source
	// Skip reports whether the document nets to nothing and posting
	// should short-circuit with SKIPPED.
	Skip() bool
	// Pair derives the balanced debit/credit legs from the resolved
	// account mapping.
	Pair(m mappingdomain.AccountMapping) []PairedLine

	sealed()
}

// PairedLine is one leg produced by a pairing rule.
type PairedLine struct {
	AccountID snowflake.ID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

func debit(account snowflake.ID, amount decimal.Decimal) PairedLine {
	return PairedLine{AccountID: account, Debit: amount, Credit: decimal.Zero}
}

func credit(account snowflake.ID, amount decimal.Decimal) PairedLine {
	return PairedLine{AccountID: account, Debit: decimal.Zero, Credit: amount}
}

// GoodsReceiptDoc posts received inventory against GRNI.
type GoodsReceiptDoc struct {
	Amount decimal.Decimal
}

func (GoodsReceiptDoc) Source() Source { return SourceGoodsReceipt }
func (d GoodsReceiptDoc) Skip() bool   { return !d.Amount.IsPositive() }
func (d GoodsReceiptDoc) Pair(m mappingdomain.AccountMapping) []PairedLine {
	return []PairedLine{
		debit(m.InventoryAssetID, d.Amount),
		credit(m.GRNIID, d.Amount),
	}
}
func (GoodsReceiptDoc) sealed() {}

// DepletionDoc moves consumed inventory value into COGS. The amount is
// normalized to its absolute value.
type DepletionDoc struct {
	Amount decimal.Decimal
}

func (DepletionDoc) Source() Source { return SourceDepletion }
func (d DepletionDoc) Skip() bool   { return d.Amount.IsZero() }
func (d DepletionDoc) Pair(m mappingdomain.AccountMapping) []PairedLine {
	amount := d.Amount.Abs()
	return []PairedLine{
		debit(m.COGSID, amount),
		credit(m.InventoryAssetID, amount),
	}
}
func (DepletionDoc) sealed() {}

// WasteDoc expenses disposed inventory.
type WasteDoc struct {
	Amount decimal.Decimal
}

func (WasteDoc) Source() Source { return SourceWaste }
func (d WasteDoc) Skip() bool   { return d.Amount.IsZero() }
func (d WasteDoc) Pair(m mappingdomain.AccountMapping) []PairedLine {
	amount := d.Amount.Abs()
	return []PairedLine{
		debit(m.WasteExpenseID, amount),
		credit(m.InventoryAssetID, amount),
	}
}
func (WasteDoc) sealed() {}

// StocktakeDoc posts a signed count variance: a gain books against the
// gain account (shrink account when no gain account is configured), a
// shrink books as expense.
type StocktakeDoc struct {
	Variance decimal.Decimal
}

func (StocktakeDoc) Source() Source { return SourceStocktake }
func (d StocktakeDoc) Skip() bool   { return d.Variance.IsZero() }
func (d StocktakeDoc) Pair(m mappingdomain.AccountMapping) []PairedLine {
	amount := d.Variance.Abs()
	if d.Variance.IsPositive() {
		return []PairedLine{
			debit(m.InventoryAssetID, amount),
			credit(m.GainOrShrink(), amount),
		}
	}
	return []PairedLine{
		debit(m.ShrinkExpenseID, amount),
		credit(m.InventoryAssetID, amount),
	}
}
func (StocktakeDoc) sealed() {}

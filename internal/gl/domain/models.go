package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// JournalStatus is the lifecycle state of a journal entry. Entries are
// never edited or deleted; voiding creates a reversal entry and flips
// the original to REVERSED.
type JournalStatus string

const (
	JournalStatusPosted   JournalStatus = "POSTED"
	JournalStatusReversed JournalStatus = "REVERSED"
)

// Source identifies the business document kind behind an entry.
// (org, source, source_id) is the idempotency key.
type Source string

const (
	SourceGoodsReceipt Source = "goods_receipt"
	SourceDepletion    Source = "depletion"
	SourceWaste        Source = "waste"
	SourceStocktake    Source = "stocktake"
)

// VoidSource is the idempotency source for the reversal of s.
func (s Source) VoidSource() Source {
	return s + "_void"
}

// JournalEntry is the immutable header of one double-entry posting.
type JournalEntry struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID  `gorm:"not null;uniqueIndex:ux_journal_entries_source,priority:1" json:"org_id"`
	BranchID   snowflake.ID  `gorm:"not null;index" json:"branch_id"`
	EntryDate  time.Time     `gorm:"not null;index" json:"entry_date"`
	Source     Source        `gorm:"type:text;not null;uniqueIndex:ux_journal_entries_source,priority:2" json:"source"`
	SourceID   snowflake.ID  `gorm:"not null;uniqueIndex:ux_journal_entries_source,priority:3" json:"source_id"`
	Status     JournalStatus `gorm:"type:text;not null" json:"status"`
	ReversesID *snowflake.ID `gorm:"index" json:"reverses_id,omitempty"`
	CreatedBy  string        `gorm:"type:text" json:"created_by"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	Lines []JournalLine `gorm:"foreignKey:EntryID" json:"lines,omitempty"`
}

func (JournalEntry) TableName() string { return "journal_entries" }

// JournalLine is one debit or credit leg of an entry.
type JournalLine struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	EntryID   snowflake.ID    `gorm:"not null;index" json:"entry_id"`
	AccountID snowflake.ID    `gorm:"not null;index" json:"account_id"`
	Debit     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"debit"`
	Credit    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"credit"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (JournalLine) TableName() string { return "journal_lines" }

// PostingStatus is the outcome reported for a posting attempt. A FAILED
// posting never fails the caller's inventory mutation; a period lock
// does, via ErrPeriodLocked.
type PostingStatus string

const (
	PostingStatusPosted  PostingStatus = "POSTED"
	PostingStatusSkipped PostingStatus = "SKIPPED"
	PostingStatusFailed  PostingStatus = "FAILED"
)

// PostingResult reports what a post or void attempt did.
type PostingResult struct {
	Status        PostingStatus `json:"status"`
	Entry         *JournalEntry `json:"entry,omitempty"`
	IsIdempotent  bool          `json:"is_idempotent"`
	FailureReason string        `json:"failure_reason,omitempty"`
}

// ValidateBalanced ensures the lines form a balanced double-entry
// posting: at least two legs, no negative or two-sided legs, and
// Σdebit = Σcredit with decimal equality.
func ValidateBalanced(lines []JournalLine) error {
	if len(lines) < 2 {
		return ErrInvalidEntryLines
	}

	debitTotal := decimal.Zero
	creditTotal := decimal.Zero
	for _, line := range lines {
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return ErrInvalidLineAmount
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return ErrInvalidLineAmount
		}
		debitTotal = debitTotal.Add(line.Debit)
		creditTotal = creditTotal.Add(line.Credit)
	}

	if !debitTotal.Equal(creditTotal) {
		return ErrUnbalancedEntry
	}
	return nil
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidBranch       = errors.New("invalid_branch")
	ErrInvalidSourceID     = errors.New("invalid_source_id")
	ErrInvalidEntryLines   = errors.New("invalid_entry_lines")
	ErrInvalidLineAmount   = errors.New("invalid_line_amount")
	ErrUnbalancedEntry     = errors.New("unbalanced_entry")
	ErrEntryNotFound       = errors.New("journal_entry_not_found")
)

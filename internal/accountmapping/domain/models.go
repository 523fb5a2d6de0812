package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// AccountType classifies a chart-of-accounts entry.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeExpense   AccountType = "expense"
	AccountTypeIncome    AccountType = "income"
)

// Account is one chart-of-accounts entry.
type Account struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_gl_accounts_org_code,priority:1" json:"org_id"`
	Code      string       `gorm:"type:text;not null;uniqueIndex:ux_gl_accounts_org_code,priority:2" json:"code"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Type      AccountType  `gorm:"type:text;not null" json:"type"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Account) TableName() string { return "gl_accounts" }

// AccountMapping binds the inventory posting accounts for an org, or
// for one branch of it when BranchID is set. Branch rows win over the
// org default.
type AccountMapping struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID  `gorm:"not null;uniqueIndex:ux_account_mappings_scope,priority:1" json:"org_id"`
	BranchID         *snowflake.ID `gorm:"uniqueIndex:ux_account_mappings_scope,priority:2" json:"branch_id,omitempty"`
	InventoryAssetID snowflake.ID  `gorm:"not null" json:"inventory_asset_id"`
	COGSID           snowflake.ID  `gorm:"column:cogs_id;not null" json:"cogs_id"`
	WasteExpenseID   snowflake.ID  `gorm:"not null" json:"waste_expense_id"`
	ShrinkExpenseID  snowflake.ID  `gorm:"not null" json:"shrink_expense_id"`
	GRNIID           snowflake.ID  `gorm:"column:grni_id;not null" json:"grni_id"`
	GainID           *snowflake.ID `gorm:"column:gain_id" json:"gain_id,omitempty"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null" json:"updated_at"`
}

func (AccountMapping) TableName() string { return "account_mappings" }

// GainOrShrink returns the stocktake-gain account, falling back to the
// shrink account when no gain account is configured.
func (m AccountMapping) GainOrShrink() snowflake.ID {
	if m.GainID != nil && *m.GainID != 0 {
		return *m.GainID
	}
	return m.ShrinkExpenseID
}

// Resolver resolves the posting account mapping for a branch, preferring
// a branch-specific row over the org default.
type Resolver interface {
	Resolve(ctx context.Context, orgID, branchID snowflake.ID) (*AccountMapping, error)
	ResolveTx(ctx context.Context, tx *gorm.DB, orgID, branchID snowflake.ID) (*AccountMapping, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrUnconfigured        = errors.New("account_mapping_unconfigured")
)

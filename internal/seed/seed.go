package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	mappingdomain "github.com/bistrokit/stockbook/internal/accountmapping/domain"
	organizationdomain "github.com/bistrokit/stockbook/internal/organization/domain"
)

const (
	defaultOrgName    = "Main"
	defaultOrgSlug    = "main"
	defaultBranchName = "Main Branch"
	defaultBranchSlug = "main"
)

// defaultAccounts is the minimal chart of accounts the posting rules
// need. Codes follow a conventional retail numbering.
var defaultAccounts = []struct {
	Code string
	Name string
	Type mappingdomain.AccountType
}{
	{"1310", "Inventory Asset", mappingdomain.AccountTypeAsset},
	{"2150", "Goods Received Not Invoiced", mappingdomain.AccountTypeLiability},
	{"5010", "Cost of Goods Sold", mappingdomain.AccountTypeExpense},
	{"5210", "Waste Expense", mappingdomain.AccountTypeExpense},
	{"5220", "Inventory Shrinkage", mappingdomain.AccountTypeExpense},
	{"4910", "Inventory Gain", mappingdomain.AccountTypeIncome},
}

// EnsureMainOrg seeds the default organization, branch, chart of
// accounts and account mapping for startup bootstrap.
func EnsureMainOrg(db *gorm.DB) error {
	return ensure(db, 0, 0)
}

// EnsureMainOrgWithID seeds using fixed IDs so self-hosted installs can
// pin their tenant identity through config.
func EnsureMainOrgWithID(db *gorm.DB, orgID, branchID snowflake.ID) error {
	return ensure(db, orgID, branchID)
}

func ensure(db *gorm.DB, orgID, branchID snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := ensureOrgTx(ctx, tx, node, orgID)
		if err != nil {
			return err
		}
		if _, err := ensureBranchTx(ctx, tx, node, org.ID, branchID); err != nil {
			return err
		}
		accounts, err := ensureAccountsTx(ctx, tx, node, org.ID)
		if err != nil {
			return err
		}
		return ensureMappingTx(ctx, tx, node, org.ID, accounts)
	})
}

func ensureOrgTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, fixedID snowflake.ID) (*organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := tx.WithContext(ctx).Where("slug = ?", defaultOrgSlug).First(&org).Error
	if err == nil {
		return &org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	id := fixedID
	if id == 0 {
		id = node.Generate()
	}
	now := time.Now().UTC()
	org = organizationdomain.Organization{
		ID:        id,
		Name:      defaultOrgName,
		Slug:      defaultOrgSlug,
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func ensureBranchTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID, fixedID snowflake.ID) (*organizationdomain.Branch, error) {
	var branch organizationdomain.Branch
	err := tx.WithContext(ctx).
		Where("org_id = ? AND slug = ?", orgID, defaultBranchSlug).
		First(&branch).Error
	if err == nil {
		return &branch, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	id := fixedID
	if id == 0 {
		id = node.Generate()
	}
	now := time.Now().UTC()
	branch = organizationdomain.Branch{
		ID:        id,
		OrgID:     orgID,
		Name:      defaultBranchName,
		Slug:      defaultBranchSlug,
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&branch).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func ensureAccountsTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID) (map[string]snowflake.ID, error) {
	byCode := make(map[string]snowflake.ID, len(defaultAccounts))
	for _, spec := range defaultAccounts {
		var account mappingdomain.Account
		err := tx.WithContext(ctx).
			Where("org_id = ? AND code = ?", orgID, spec.Code).
			First(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			account = mappingdomain.Account{
				ID:        node.Generate(),
				OrgID:     orgID,
				Code:      spec.Code,
				Name:      spec.Name,
				Type:      spec.Type,
				CreatedAt: time.Now().UTC(),
			}
			err = tx.WithContext(ctx).Create(&account).Error
		}
		if err != nil {
			return nil, err
		}
		byCode[spec.Code] = account.ID
	}
	return byCode, nil
}

func ensureMappingTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID, accounts map[string]snowflake.ID) error {
	var mapping mappingdomain.AccountMapping
	err := tx.WithContext(ctx).
		Where("org_id = ? AND branch_id IS NULL", orgID).
		First(&mapping).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	gainID := accounts["4910"]
	now := time.Now().UTC()
	mapping = mappingdomain.AccountMapping{
		ID:               node.Generate(),
		OrgID:            orgID,
		InventoryAssetID: accounts["1310"],
		COGSID:           accounts["5010"],
		WasteExpenseID:   accounts["5210"],
		ShrinkExpenseID:  accounts["5220"],
		GRNIID:           accounts["2150"],
		GainID:           &gainID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return tx.WithContext(ctx).Create(&mapping).Error
}

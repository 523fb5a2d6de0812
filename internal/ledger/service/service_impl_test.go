package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bistrokit/stockbook/internal/clock"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

func setupLedger(t *testing.T) (ledgerdomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&ledgerdomain.StockMovement{}, &ledgerdomain.StockLevel{}))
	// sqlite needs the unique index in place for ON CONFLICT to resolve.
	require.NoError(t, db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_stock_levels_pair ON stock_levels(org_id, branch_id, item_id, location_id)").Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)),
	})
	return svc, db
}

func TestRecordEntry_AppendsAndSums(t *testing.T) {
	svc, db := setupLedger(t)
	ctx := context.Background()
	org, branch, item, loc := snowflake.ID(1), snowflake.ID(2), snowflake.ID(3), snowflake.ID(4)

	res, err := svc.RecordEntry(ctx, org, branch, ledgerdomain.RecordInput{
		ItemID:     item,
		LocationID: loc,
		Qty:        decimal.NewFromInt(10),
		Reason:     ledgerdomain.ReasonPurchaseReceipt,
		SourceType: "goods_receipt",
		SourceID:   snowflake.ID(100),
		CreatedBy:  "tester",
	})
	require.NoError(t, err)
	assert.True(t, res.OnHand.Equal(decimal.NewFromInt(10)))
	assert.NotZero(t, res.Movement.ID)
	assert.NotEmpty(t, res.Movement.CorrelationID)

	res, err = svc.RecordEntry(ctx, org, branch, ledgerdomain.RecordInput{
		ItemID:     item,
		LocationID: loc,
		Qty:        decimal.NewFromInt(-4),
		Reason:     ledgerdomain.ReasonSaleDepletion,
		SourceType: "depletion",
		SourceID:   snowflake.ID(101),
	})
	require.NoError(t, err)
	assert.True(t, res.OnHand.Equal(decimal.NewFromInt(6)))

	onHand, err := svc.GetOnHand(ctx, org, branch, item, loc)
	require.NoError(t, err)
	assert.True(t, onHand.Equal(decimal.NewFromInt(6)))

	// The cached level row tracks the running sum.
	var level ledgerdomain.StockLevel
	require.NoError(t, db.Where("org_id = ? AND item_id = ?", org, item).First(&level).Error)
	assert.True(t, level.Qty.Equal(decimal.NewFromInt(6)))
}

func TestRecordEntry_RejectsOverdraw(t *testing.T) {
	svc, db := setupLedger(t)
	ctx := context.Background()
	org, branch, item, loc := snowflake.ID(1), snowflake.ID(2), snowflake.ID(3), snowflake.ID(4)

	_, err := svc.RecordEntry(ctx, org, branch, ledgerdomain.RecordInput{
		ItemID:     item,
		LocationID: loc,
		Qty:        decimal.NewFromInt(5),
		Reason:     ledgerdomain.ReasonPurchaseReceipt,
	})
	require.NoError(t, err)

	_, err = svc.RecordEntry(ctx, org, branch, ledgerdomain.RecordInput{
		ItemID:     item,
		LocationID: loc,
		Qty:        decimal.NewFromInt(-8),
		Reason:     ledgerdomain.ReasonSaleDepletion,
	})
	require.ErrorIs(t, err, ledgerdomain.ErrInsufficientStock)

	// The rejected movement left no row behind.
	var count int64
	require.NoError(t, db.Model(&ledgerdomain.StockMovement{}).Where("org_id = ?", org).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	onHand, err := svc.GetOnHand(ctx, org, branch, item, loc)
	require.NoError(t, err)
	assert.True(t, onHand.Equal(decimal.NewFromInt(5)))
}

func TestRecordEntry_AllowNegativeBypassesCheck(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()
	org, branch, item, loc := snowflake.ID(1), snowflake.ID(2), snowflake.ID(3), snowflake.ID(4)

	res, err := svc.RecordEntry(ctx, org, branch, ledgerdomain.RecordInput{
		ItemID:        item,
		LocationID:    loc,
		Qty:           decimal.NewFromInt(-3),
		Reason:        ledgerdomain.ReasonManual,
		AllowNegative: true,
	})
	require.NoError(t, err)
	assert.True(t, res.OnHand.Equal(decimal.NewFromInt(-3)))
}

func TestRecordEntry_InboundReasonsNeverBlocked(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()
	org, branch, item, loc := snowflake.ID(1), snowflake.ID(2), snowflake.ID(3), snowflake.ID(4)

	// A negative correction under an inbound reason is not gated by
	// on-hand; only outbound reasons enforce the non-negative check.
	res, err := svc.RecordEntry(ctx, org, branch, ledgerdomain.RecordInput{
		ItemID:     item,
		LocationID: loc,
		Qty:        decimal.NewFromInt(-2),
		Reason:     ledgerdomain.ReasonPurchaseReceipt,
	})
	require.NoError(t, err)
	assert.True(t, res.OnHand.Equal(decimal.NewFromInt(-2)))
}

func TestRecordEntry_Validation(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		org     snowflake.ID
		branch  snowflake.ID
		input   ledgerdomain.RecordInput
		wantErr error
	}{
		{"missing org", 0, 2, ledgerdomain.RecordInput{ItemID: 3, LocationID: 4, Qty: decimal.NewFromInt(1), Reason: ledgerdomain.ReasonManual}, ledgerdomain.ErrInvalidOrganization},
		{"missing branch", 1, 0, ledgerdomain.RecordInput{ItemID: 3, LocationID: 4, Qty: decimal.NewFromInt(1), Reason: ledgerdomain.ReasonManual}, ledgerdomain.ErrInvalidBranch},
		{"missing item", 1, 2, ledgerdomain.RecordInput{LocationID: 4, Qty: decimal.NewFromInt(1), Reason: ledgerdomain.ReasonManual}, ledgerdomain.ErrInvalidItem},
		{"missing location", 1, 2, ledgerdomain.RecordInput{ItemID: 3, Qty: decimal.NewFromInt(1), Reason: ledgerdomain.ReasonManual}, ledgerdomain.ErrInvalidLocation},
		{"zero qty", 1, 2, ledgerdomain.RecordInput{ItemID: 3, LocationID: 4, Reason: ledgerdomain.ReasonManual}, ledgerdomain.ErrInvalidQty},
		{"missing reason", 1, 2, ledgerdomain.RecordInput{ItemID: 3, LocationID: 4, Qty: decimal.NewFromInt(1)}, ledgerdomain.ErrInvalidReason},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordEntry(ctx, tc.org, tc.branch, tc.input)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestGetOnHandByLocation(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()
	org, branch, item := snowflake.ID(1), snowflake.ID(2), snowflake.ID(3)

	for loc, qty := range map[snowflake.ID]int64{10: 7, 11: 3} {
		_, err := svc.RecordEntry(ctx, org, branch, ledgerdomain.RecordInput{
			ItemID:     item,
			LocationID: loc,
			Qty:        decimal.NewFromInt(qty),
			Reason:     ledgerdomain.ReasonOpeningStock,
		})
		require.NoError(t, err)
	}

	byLoc, err := svc.GetOnHandByLocation(ctx, org, branch, item)
	require.NoError(t, err)
	require.Len(t, byLoc, 2)
	assert.True(t, byLoc[10].Equal(decimal.NewFromInt(7)))
	assert.True(t, byLoc[11].Equal(decimal.NewFromInt(3)))
}

func TestListMovements_FiltersAndOrders(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()
	org, branch, item, loc := snowflake.ID(1), snowflake.ID(2), snowflake.ID(3), snowflake.ID(4)

	for i := 0; i < 3; i++ {
		_, err := svc.RecordEntry(ctx, org, branch, ledgerdomain.RecordInput{
			ItemID:     item,
			LocationID: loc,
			Qty:        decimal.NewFromInt(1),
			Reason:     ledgerdomain.ReasonPurchaseReceipt,
		})
		require.NoError(t, err)
	}
	_, err := svc.RecordEntry(ctx, org, branch, ledgerdomain.RecordInput{
		ItemID:     item,
		LocationID: loc,
		Qty:        decimal.NewFromInt(-1),
		Reason:     ledgerdomain.ReasonWaste,
	})
	require.NoError(t, err)

	all, _, err := svc.ListMovements(ctx, org, ledgerdomain.ListFilter{ItemID: item})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	// Newest first.
	assert.Equal(t, ledgerdomain.ReasonWaste, all[0].Reason)

	wasteOnly, _, err := svc.ListMovements(ctx, org, ledgerdomain.ListFilter{Reason: ledgerdomain.ReasonWaste})
	require.NoError(t, err)
	assert.Len(t, wasteOnly, 1)

	limited, pageInfo, err := svc.ListMovements(ctx, org, ledgerdomain.ListFilter{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	require.NotNil(t, pageInfo)
	assert.True(t, pageInfo.HasMore)
}

func TestListMovements_CursorWalksAllPages(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()
	org, branch, item, loc := snowflake.ID(1), snowflake.ID(2), snowflake.ID(3), snowflake.ID(4)

	for i := 0; i < 5; i++ {
		_, err := svc.RecordEntry(ctx, org, branch, ledgerdomain.RecordInput{
			ItemID:     item,
			LocationID: loc,
			Qty:        decimal.NewFromInt(int64(i + 1)),
			Reason:     ledgerdomain.ReasonPurchaseReceipt,
		})
		require.NoError(t, err)
	}

	seen := map[snowflake.ID]bool{}
	token := ""
	pages := 0
	for {
		movements, pageInfo, err := svc.ListMovements(ctx, org, ledgerdomain.ListFilter{
			Pagination: pagination.Pagination{PageToken: token, PageSize: 2},
		})
		require.NoError(t, err)
		require.NotNil(t, pageInfo)
		pages++
		for _, m := range movements {
			assert.False(t, seen[m.ID], "movement served twice")
			seen[m.ID] = true
		}
		if !pageInfo.HasMore {
			break
		}
		token = pageInfo.NextPageToken
	}
	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 5)

	_, _, err := svc.ListMovements(ctx, org, ledgerdomain.ListFilter{
		Pagination: pagination.Pagination{PageToken: "not-a-cursor"},
	})
	require.ErrorIs(t, err, pagination.ErrInvalidToken)
}

func TestRebuild_ReconcilesDriftedLevels(t *testing.T) {
	svc, db := setupLedger(t)
	ctx := context.Background()
	org, branch, item, loc := snowflake.ID(1), snowflake.ID(2), snowflake.ID(3), snowflake.ID(4)

	_, err := svc.RecordEntry(ctx, org, branch, ledgerdomain.RecordInput{
		ItemID:     item,
		LocationID: loc,
		Qty:        decimal.NewFromInt(12),
		Reason:     ledgerdomain.ReasonPurchaseReceipt,
	})
	require.NoError(t, err)

	// Corrupt the cache to simulate drift.
	require.NoError(t, db.Model(&ledgerdomain.StockLevel{}).
		Where("org_id = ?", org).
		Update("qty", decimal.NewFromInt(999)).Error)

	rebuilt, err := svc.Rebuild(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, 1, rebuilt)

	var level ledgerdomain.StockLevel
	require.NoError(t, db.Where("org_id = ?", org).First(&level).Error)
	assert.True(t, level.Qty.Equal(decimal.NewFromInt(12)))
}

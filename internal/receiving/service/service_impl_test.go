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

	mappingdomain "github.com/bistrokit/stockbook/internal/accountmapping/domain"
	mappingservice "github.com/bistrokit/stockbook/internal/accountmapping/service"
	auditdomain "github.com/bistrokit/stockbook/internal/audit/domain"
	auditrepo "github.com/bistrokit/stockbook/internal/audit/repository"
	auditservice "github.com/bistrokit/stockbook/internal/audit/service"
	"github.com/bistrokit/stockbook/internal/clock"
	costingdomain "github.com/bistrokit/stockbook/internal/costing/domain"
	costingservice "github.com/bistrokit/stockbook/internal/costing/service"
	perioddomain "github.com/bistrokit/stockbook/internal/fiscalperiod/domain"
	periodservice "github.com/bistrokit/stockbook/internal/fiscalperiod/service"
	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	glservice "github.com/bistrokit/stockbook/internal/gl/service"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	ledgerservice "github.com/bistrokit/stockbook/internal/ledger/service"
	lotdomain "github.com/bistrokit/stockbook/internal/lot/domain"
	lotservice "github.com/bistrokit/stockbook/internal/lot/service"
	recipedomain "github.com/bistrokit/stockbook/internal/recipe/domain"
	reciperepo "github.com/bistrokit/stockbook/internal/recipe/repository"
	"github.com/bistrokit/stockbook/internal/receiving/domain"
)

type fixture struct {
	svc    domain.Service
	ledger ledgerdomain.Service
	gl     gldomain.Service
	db     *gorm.DB
	fc     *clock.FakeClock
}

func setup(t *testing.T) fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.StockMovement{},
		&ledgerdomain.StockLevel{},
		&lotdomain.Lot{},
		&lotdomain.LotAllocation{},
		&costingdomain.CostLayer{},
		&recipedomain.RecipeLine{},
		&mappingdomain.AccountMapping{},
		&perioddomain.FiscalPeriod{},
		&gldomain.JournalEntry{},
		&gldomain.JournalLine{},
		&auditdomain.AuditLog{},
	))
	require.NoError(t, db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_stock_levels_pair ON stock_levels(org_id, branch_id, item_id, location_id)").Error)
	require.NoError(t, db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_lots_number ON lots(org_id, branch_id, item_id, location_id, lot_number)").Error)
	require.NoError(t, db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_journal_entries_source ON journal_entries(org_id, source, source_id)").Error)

	gain := snowflake.ID(4910)
	require.NoError(t, db.Create(&mappingdomain.AccountMapping{
		ID:               snowflake.ID(9000),
		OrgID:            1,
		InventoryAssetID: 1310,
		COGSID:           5010,
		WasteExpenseID:   5210,
		ShrinkExpenseID:  5220,
		GRNIID:           2150,
		GainID:           &gain,
		UpdatedAt:        time.Now(),
	}).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fc := clock.NewFakeClock(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Clock: fc})
	lotSvc := lotservice.NewService(lotservice.Params{DB: db, Log: log, GenID: node, Clock: fc})
	costingSvc := costingservice.NewService(costingservice.Params{DB: db, Log: log, GenID: node, Clock: fc, Recipes: reciperepo.Provide(db)})
	glSvc := glservice.NewService(glservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    fc,
		Mappings: mappingservice.NewService(mappingservice.Params{DB: db, Log: log}),
		Periods:  periodservice.NewService(periodservice.Params{DB: db, Log: log}),
	})
	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: fc, Repo: auditrepo.Provide()})

	svc := NewService(Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   fc,
		Ledger:  ledgerSvc,
		Lots:    lotSvc,
		Costing: costingSvc,
		GL:      glSvc,
		Audit:   auditSvc,
	})
	return fixture{svc: svc, ledger: ledgerSvc, gl: glSvc, db: db, fc: fc}
}

func TestReceive_AppliesAllEffects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.svc.Receive(ctx, 1, 2, domain.ReceiveInput{
		ItemID:     3,
		LocationID: 4,
		LotNumber:  "LOT-2024-001",
		Qty:        decimal.NewFromInt(10),
		UnitCost:   decimal.NewFromInt(100),
		Actor:      "tester",
	})
	require.NoError(t, err)
	assert.False(t, res.IsIdempotent)
	assert.NotZero(t, res.ReceiptID)

	// Movement appended with the receipt as source.
	require.NotNil(t, res.Movement)
	assert.True(t, res.Movement.OnHand.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, ledgerdomain.ReasonPurchaseReceipt, res.Movement.Movement.Reason)
	assert.Equal(t, res.ReceiptID, res.Movement.Movement.SourceID)

	// Lot tracked in full.
	require.NotNil(t, res.Lot)
	assert.Equal(t, "LOT-2024-001", res.Lot.LotNumber)
	assert.True(t, res.Lot.RemainingQty.Equal(decimal.NewFromInt(10)))

	// Cost layer carries qty and unit cost.
	require.NotNil(t, res.Layer)
	assert.True(t, res.Layer.QtyRemaining.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "100", res.Layer.UnitCost.String())

	// Journal posted for qty x unit cost.
	require.NotNil(t, res.Posting)
	assert.Equal(t, gldomain.PostingStatusPosted, res.Posting.Status)
	entry, err := f.gl.GetEntry(ctx, 1, gldomain.SourceGoodsReceipt, res.ReceiptID)
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)

	// Audit trail written after commit.
	var auditCount int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", "inventory.receive").Count(&auditCount).Error)
	assert.Equal(t, int64(1), auditCount)
}

func TestReceive_ReplaySameReceiptID(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	input := domain.ReceiveInput{
		ItemID:     3,
		LocationID: 4,
		LotNumber:  "LOT-2024-002",
		Qty:        decimal.NewFromInt(5),
		UnitCost:   decimal.NewFromInt(40),
		ReceiptID:  snowflake.ID(7000),
		Actor:      "tester",
	}

	first, err := f.svc.Receive(ctx, 1, 2, input)
	require.NoError(t, err)
	require.False(t, first.IsIdempotent)

	replay, err := f.svc.Receive(ctx, 1, 2, input)
	require.NoError(t, err)
	assert.True(t, replay.IsIdempotent)
	assert.Equal(t, first.Lot.ID, replay.Lot.ID)

	// The replay changed nothing: one movement, one layer, one entry.
	onHand, err := f.ledger.GetOnHand(ctx, 1, 2, 3, 4)
	require.NoError(t, err)
	assert.True(t, onHand.Equal(decimal.NewFromInt(5)))

	var layerCount int64
	require.NoError(t, f.db.Model(&costingdomain.CostLayer{}).Count(&layerCount).Error)
	assert.Equal(t, int64(1), layerCount)

	var entryCount int64
	require.NoError(t, f.db.Model(&gldomain.JournalEntry{}).Count(&entryCount).Error)
	assert.Equal(t, int64(1), entryCount)
}

func TestReceive_LockedPeriodRollsBackEverything(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&perioddomain.FiscalPeriod{
		ID:        snowflake.ID(100),
		OrgID:     1,
		Name:      "2024-01",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
		Status:    perioddomain.PeriodStatusLocked,
	}).Error)

	_, err := f.svc.Receive(ctx, 1, 2, domain.ReceiveInput{
		ItemID:     3,
		LocationID: 4,
		LotNumber:  "LOT-2024-003",
		Qty:        decimal.NewFromInt(10),
		UnitCost:   decimal.NewFromInt(100),
		Actor:      "tester",
	})
	require.ErrorIs(t, err, perioddomain.ErrPeriodLocked)

	// Nothing survived the rollback: no movement, no lot, no layer.
	onHand, err := f.ledger.GetOnHand(ctx, 1, 2, 3, 4)
	require.NoError(t, err)
	assert.True(t, onHand.IsZero())

	var lotCount int64
	require.NoError(t, f.db.Model(&lotdomain.Lot{}).Count(&lotCount).Error)
	assert.Zero(t, lotCount)

	var layerCount int64
	require.NoError(t, f.db.Model(&costingdomain.CostLayer{}).Count(&layerCount).Error)
	assert.Zero(t, layerCount)
}

func TestReceive_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Receive(ctx, 0, 2, domain.ReceiveInput{Qty: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)

	_, err = f.svc.Receive(ctx, 1, 2, domain.ReceiveInput{
		ItemID: 3, LocationID: 4, LotNumber: "L", Qty: decimal.Zero,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQty)

	_, err = f.svc.Receive(ctx, 1, 2, domain.ReceiveInput{
		ItemID: 3, LocationID: 4, LotNumber: "L",
		Qty: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidUnitCost)
}

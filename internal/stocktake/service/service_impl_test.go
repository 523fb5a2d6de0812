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
	"github.com/bistrokit/stockbook/internal/config"
	costingdomain "github.com/bistrokit/stockbook/internal/costing/domain"
	costingservice "github.com/bistrokit/stockbook/internal/costing/service"
	perioddomain "github.com/bistrokit/stockbook/internal/fiscalperiod/domain"
	periodservice "github.com/bistrokit/stockbook/internal/fiscalperiod/service"
	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	glservice "github.com/bistrokit/stockbook/internal/gl/service"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	ledgerservice "github.com/bistrokit/stockbook/internal/ledger/service"
	recipedomain "github.com/bistrokit/stockbook/internal/recipe/domain"
	reciperepo "github.com/bistrokit/stockbook/internal/recipe/repository"
	"github.com/bistrokit/stockbook/internal/stocktake/domain"
)

type fixture struct {
	svc     domain.Service
	ledger  ledgerdomain.Service
	costing costingdomain.Service
	gl      gldomain.Service
	db      *gorm.DB
}

func setup(t *testing.T) fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.StockMovement{},
		&ledgerdomain.StockLevel{},
		&costingdomain.CostLayer{},
		&recipedomain.RecipeLine{},
		&mappingdomain.AccountMapping{},
		&perioddomain.FiscalPeriod{},
		&gldomain.JournalEntry{},
		&gldomain.JournalLine{},
		&auditdomain.AuditLog{},
	))
	require.NoError(t, db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_stock_levels_pair ON stock_levels(org_id, branch_id, item_id, location_id)").Error)
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

	cfg := config.Config{StocktakeTolerance: decimal.RequireFromString("0.01")}
	svc := NewService(Params{
		DB: db, Log: log, Config: cfg, GenID: node, Clock: fc,
		Ledger: ledgerSvc, Costing: costingSvc, GL: glSvc, Audit: auditSvc,
	})
	return fixture{svc: svc, ledger: ledgerSvc, costing: costingSvc, gl: glSvc, db: db}
}

// seed puts qty on hand with a matching cost layer at unitCost.
func (f fixture) seed(t *testing.T, qty, unitCost int64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.ledger.RecordEntry(ctx, 1, 2, ledgerdomain.RecordInput{
		ItemID:     3,
		LocationID: 4,
		Qty:        decimal.NewFromInt(qty),
		Reason:     ledgerdomain.ReasonOpeningStock,
	})
	require.NoError(t, err)
	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, txErr := f.costing.AddLayerTx(ctx, tx, 1, 2, costingdomain.LayerInput{
			ItemID:     3,
			LocationID: 4,
			Qty:        decimal.NewFromInt(qty),
			UnitCost:   decimal.NewFromInt(unitCost),
			SourceType: "goods_receipt",
			SourceID:   snowflake.ID(1),
		})
		return txErr
	})
	require.NoError(t, err)
}

func TestApplyCount_WithinToleranceDoesNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.seed(t, 100, 10)

	res, err := f.svc.ApplyCount(ctx, 1, 2, domain.CountInput{
		ItemID:     3,
		LocationID: 4,
		CountedQty: decimal.RequireFromString("100.01"),
		Actor:      "tester",
	})
	require.NoError(t, err)
	assert.True(t, res.WithinTolerance)
	assert.Equal(t, "0.01", res.Variance.String())
	assert.Nil(t, res.Movement)
	assert.Nil(t, res.Posting)

	// No adjustment movement was written.
	onHand, err := f.ledger.GetOnHand(ctx, 1, 2, 3, 4)
	require.NoError(t, err)
	assert.True(t, onHand.Equal(decimal.NewFromInt(100)))
}

func TestApplyCount_ShrinkAdjustsDownAtWAC(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.seed(t, 100, 10)

	res, err := f.svc.ApplyCount(ctx, 1, 2, domain.CountInput{
		ItemID:     3,
		LocationID: 4,
		CountedQty: decimal.NewFromInt(94),
		Actor:      "tester",
	})
	require.NoError(t, err)
	assert.False(t, res.WithinTolerance)
	assert.Equal(t, "-6", res.Variance.String())
	assert.Equal(t, "10", res.UnitCost.String())
	assert.Equal(t, "-60", res.Amount.String())
	assert.Equal(t, ledgerdomain.ReasonStocktakeShrink, res.Movement.Movement.Reason)
	assert.True(t, res.Movement.OnHand.Equal(decimal.NewFromInt(94)))

	// Layers shrink with on-hand.
	wac, err := f.costing.GetWAC(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "10", wac.String())
	var layer costingdomain.CostLayer
	require.NoError(t, f.db.First(&layer, "item_id = ?", 3).Error)
	assert.True(t, layer.QtyRemaining.Equal(decimal.NewFromInt(94)))

	// Shrink books as expense against inventory.
	entry, err := f.gl.GetEntry(ctx, 1, gldomain.SourceStocktake, res.StocktakeID)
	require.NoError(t, err)
	for _, line := range entry.Lines {
		switch line.AccountID {
		case 5220:
			assert.Equal(t, "60", line.Debit.String())
		case 1310:
			assert.Equal(t, "60", line.Credit.String())
		}
	}
}

func TestApplyCount_GainAdjustsUpAtWAC(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.seed(t, 50, 20)

	res, err := f.svc.ApplyCount(ctx, 1, 2, domain.CountInput{
		ItemID:     3,
		LocationID: 4,
		CountedQty: decimal.NewFromInt(53),
		Actor:      "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, "3", res.Variance.String())
	assert.Equal(t, "60", res.Amount.String())
	assert.Equal(t, ledgerdomain.ReasonStocktakeGain, res.Movement.Movement.Reason)
	assert.True(t, res.Movement.OnHand.Equal(decimal.NewFromInt(53)))

	// The gain enters the layer pool at the current WAC, so WAC holds.
	wac, err := f.costing.GetWAC(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "20", wac.String())

	entry, err := f.gl.GetEntry(ctx, 1, gldomain.SourceStocktake, res.StocktakeID)
	require.NoError(t, err)
	for _, line := range entry.Lines {
		switch line.AccountID {
		case 1310:
			assert.Equal(t, "60", line.Debit.String())
		case 4910:
			assert.Equal(t, "60", line.Credit.String())
		}
	}
}

func TestApplyCount_GainFromZeroStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Nothing on hand and no layers: WAC is zero, the movement still
	// corrects the quantity, and the zero-amount posting is skipped.
	res, err := f.svc.ApplyCount(ctx, 1, 2, domain.CountInput{
		ItemID:     3,
		LocationID: 4,
		CountedQty: decimal.NewFromInt(7),
		Actor:      "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, "7", res.Variance.String())
	assert.True(t, res.Amount.IsZero())
	require.NotNil(t, res.Posting)
	assert.Equal(t, gldomain.PostingStatusSkipped, res.Posting.Status)

	onHand, err := f.ledger.GetOnHand(ctx, 1, 2, 3, 4)
	require.NoError(t, err)
	assert.True(t, onHand.Equal(decimal.NewFromInt(7)))
}

func TestApplyCount_RejectsNegativeCount(t *testing.T) {
	f := setup(t)

	_, err := f.svc.ApplyCount(context.Background(), 1, 2, domain.CountInput{
		ItemID:     3,
		LocationID: 4,
		CountedQty: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCount)
}

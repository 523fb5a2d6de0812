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
	"github.com/bistrokit/stockbook/internal/clock"
	perioddomain "github.com/bistrokit/stockbook/internal/fiscalperiod/domain"
	periodservice "github.com/bistrokit/stockbook/internal/fiscalperiod/service"
	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

const (
	acctInventory = snowflake.ID(1310)
	acctGRNI      = snowflake.ID(2150)
	acctCOGS      = snowflake.ID(5010)
	acctWaste     = snowflake.ID(5210)
	acctShrink    = snowflake.ID(5220)
	acctGain      = snowflake.ID(4910)
)

type glFixture struct {
	svc gldomain.Service
	db  *gorm.DB
	fc  *clock.FakeClock
}

func setupGL(t *testing.T, withMapping bool) glFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&mappingdomain.Account{},
		&mappingdomain.AccountMapping{},
		&perioddomain.FiscalPeriod{},
		&gldomain.JournalEntry{},
		&gldomain.JournalLine{},
	))
	require.NoError(t, db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_journal_entries_source ON journal_entries(org_id, source, source_id)").Error)

	if withMapping {
		gain := acctGain
		require.NoError(t, db.Create(&mappingdomain.AccountMapping{
			ID:               snowflake.ID(9000),
			OrgID:            1,
			InventoryAssetID: acctInventory,
			COGSID:           acctCOGS,
			WasteExpenseID:   acctWaste,
			ShrinkExpenseID:  acctShrink,
			GRNIID:           acctGRNI,
			GainID:           &gain,
			UpdatedAt:        time.Now(),
		}).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fc := clock.NewFakeClock(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    fc,
		Mappings: mappingservice.NewService(mappingservice.Params{DB: db, Log: log}),
		Periods:  periodservice.NewService(periodservice.Params{DB: db, Log: log}),
	})
	return glFixture{svc: svc, db: db, fc: fc}
}

func lineAmounts(t *testing.T, entry *gldomain.JournalEntry, account snowflake.ID) (debit, credit decimal.Decimal) {
	t.Helper()
	for _, l := range entry.Lines {
		if l.AccountID == account {
			return l.Debit, l.Credit
		}
	}
	t.Fatalf("no line for account %d", account)
	return
}

func TestPostGoodsReceipt_BalancedEntry(t *testing.T) {
	f := setupGL(t, true)
	ctx := context.Background()

	res, err := f.svc.PostGoodsReceipt(ctx, 1, 2, snowflake.ID(800), decimal.NewFromInt(1500), "tester")
	require.NoError(t, err)
	assert.Equal(t, gldomain.PostingStatusPosted, res.Status)
	assert.False(t, res.IsIdempotent)
	require.NotNil(t, res.Entry)
	assert.Equal(t, gldomain.JournalStatusPosted, res.Entry.Status)
	assert.Equal(t, gldomain.SourceGoodsReceipt, res.Entry.Source)
	require.Len(t, res.Entry.Lines, 2)

	d, c := lineAmounts(t, res.Entry, acctInventory)
	assert.Equal(t, "1500", d.String())
	assert.True(t, c.IsZero())
	d, c = lineAmounts(t, res.Entry, acctGRNI)
	assert.True(t, d.IsZero())
	assert.Equal(t, "1500", c.String())
}

func TestPostGoodsReceipt_IdempotentReplay(t *testing.T) {
	f := setupGL(t, true)
	ctx := context.Background()

	first, err := f.svc.PostGoodsReceipt(ctx, 1, 2, snowflake.ID(801), decimal.NewFromInt(100), "tester")
	require.NoError(t, err)
	require.Equal(t, gldomain.PostingStatusPosted, first.Status)

	replay, err := f.svc.PostGoodsReceipt(ctx, 1, 2, snowflake.ID(801), decimal.NewFromInt(100), "tester")
	require.NoError(t, err)
	assert.Equal(t, gldomain.PostingStatusPosted, replay.Status)
	assert.True(t, replay.IsIdempotent)
	assert.Equal(t, first.Entry.ID, replay.Entry.ID)

	var count int64
	require.NoError(t, f.db.Model(&gldomain.JournalEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPost_SkipsZeroAmounts(t *testing.T) {
	f := setupGL(t, true)
	ctx := context.Background()

	res, err := f.svc.PostDepletion(ctx, 1, 2, snowflake.ID(802), decimal.Zero, "tester")
	require.NoError(t, err)
	assert.Equal(t, gldomain.PostingStatusSkipped, res.Status)
	assert.Nil(t, res.Entry)

	var count int64
	require.NoError(t, f.db.Model(&gldomain.JournalEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPost_FailsSoftlyWithoutMapping(t *testing.T) {
	f := setupGL(t, false)
	ctx := context.Background()

	// A missing mapping degrades to a FAILED result; the caller's
	// inventory mutation must not be rolled back for it.
	res, err := f.svc.PostDepletion(ctx, 1, 2, snowflake.ID(803), decimal.NewFromInt(50), "tester")
	require.NoError(t, err)
	assert.Equal(t, gldomain.PostingStatusFailed, res.Status)
	assert.NotEmpty(t, res.FailureReason)
}

func TestPost_RejectedByLockedPeriod(t *testing.T) {
	f := setupGL(t, true)
	ctx := context.Background()

	lockedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.Create(&perioddomain.FiscalPeriod{
		ID:        snowflake.ID(100),
		OrgID:     1,
		Name:      "2024-01",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
		Status:    perioddomain.PeriodStatusLocked,
		LockedAt:  &lockedAt,
		LockedBy:  "controller",
	}).Error)

	_, err := f.svc.PostGoodsReceipt(ctx, 1, 2, snowflake.ID(804), decimal.NewFromInt(10), "tester")
	require.ErrorIs(t, err, perioddomain.ErrPeriodLocked)

	var count int64
	require.NoError(t, f.db.Model(&gldomain.JournalEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPost_ReplaySurvivesPeriodLock(t *testing.T) {
	f := setupGL(t, true)
	ctx := context.Background()

	first, err := f.svc.PostGoodsReceipt(ctx, 1, 2, snowflake.ID(806), decimal.NewFromInt(400), "tester")
	require.NoError(t, err)
	require.Equal(t, gldomain.PostingStatusPosted, first.Status)

	lockedAt := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.Create(&perioddomain.FiscalPeriod{
		ID:        snowflake.ID(101),
		OrgID:     1,
		Name:      "2024-01",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
		Status:    perioddomain.PeriodStatusLocked,
		LockedAt:  &lockedAt,
		LockedBy:  "controller",
	}).Error)

	// A retry creates no rows, so locking the period after the original
	// posting does not reject it.
	replay, err := f.svc.PostGoodsReceipt(ctx, 1, 2, snowflake.ID(806), decimal.NewFromInt(400), "tester")
	require.NoError(t, err)
	assert.Equal(t, gldomain.PostingStatusPosted, replay.Status)
	assert.True(t, replay.IsIdempotent)
	require.NotNil(t, replay.Entry)
	assert.Equal(t, first.Entry.ID, replay.Entry.ID)

	// New documents in the locked window still fail hard.
	_, err = f.svc.PostGoodsReceipt(ctx, 1, 2, snowflake.ID(807), decimal.NewFromInt(50), "tester")
	require.ErrorIs(t, err, perioddomain.ErrPeriodLocked)
}

func TestPost_AdoptsEntryFromConcurrentRetry(t *testing.T) {
	f := setupGL(t, true)
	ctx := context.Background()

	// Inject a rival entry for the same source between the replay
	// lookup and the insert, forcing the unique-constraint path.
	winnerID := snowflake.ID(777777)
	entryDate := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	var injected bool
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("rival_retry", func(d *gorm.DB) {
		if injected || d.Statement.Table != "journal_entries" {
			return
		}
		injected = true
		winner := gldomain.JournalEntry{
			ID:        winnerID,
			OrgID:     1,
			BranchID:  2,
			EntryDate: entryDate,
			Source:    gldomain.SourceGoodsReceipt,
			SourceID:  snowflake.ID(820),
			Status:    gldomain.JournalStatusPosted,
			CreatedBy: "rival",
			CreatedAt: entryDate,
			Lines: []gldomain.JournalLine{
				{ID: snowflake.ID(777778), EntryID: winnerID, AccountID: acctInventory, Debit: decimal.NewFromInt(400), Credit: decimal.Zero, CreatedAt: entryDate},
				{ID: snowflake.ID(777779), EntryID: winnerID, AccountID: acctGRNI, Debit: decimal.Zero, Credit: decimal.NewFromInt(400), CreatedAt: entryDate},
			},
		}
		if err := d.Session(&gorm.Session{NewDB: true}).Create(&winner).Error; err != nil {
			_ = d.AddError(err)
		}
	}))

	res, err := f.svc.PostGoodsReceipt(ctx, 1, 2, snowflake.ID(820), decimal.NewFromInt(400), "tester")
	require.NoError(t, err)
	require.True(t, injected)
	assert.Equal(t, gldomain.PostingStatusPosted, res.Status)
	assert.True(t, res.IsIdempotent)
	require.NotNil(t, res.Entry)
	assert.Equal(t, winnerID, res.Entry.ID)
	require.Len(t, res.Entry.Lines, 2)

	var count int64
	require.NoError(t, f.db.Model(&gldomain.JournalEntry{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestPostDepletion_NormalizesSign(t *testing.T) {
	f := setupGL(t, true)
	ctx := context.Background()

	res, err := f.svc.PostDepletion(ctx, 1, 2, snowflake.ID(805), decimal.NewFromInt(-120), "tester")
	require.NoError(t, err)
	require.Equal(t, gldomain.PostingStatusPosted, res.Status)

	d, _ := lineAmounts(t, res.Entry, acctCOGS)
	assert.Equal(t, "120", d.String())
	_, c := lineAmounts(t, res.Entry, acctInventory)
	assert.Equal(t, "120", c.String())
}

func TestPostStocktake_GainAndShrinkPairings(t *testing.T) {
	f := setupGL(t, true)
	ctx := context.Background()

	gain, err := f.svc.PostStocktake(ctx, 1, 2, snowflake.ID(806), decimal.NewFromInt(40), "tester")
	require.NoError(t, err)
	require.Equal(t, gldomain.PostingStatusPosted, gain.Status)
	d, _ := lineAmounts(t, gain.Entry, acctInventory)
	assert.Equal(t, "40", d.String())
	_, c := lineAmounts(t, gain.Entry, acctGain)
	assert.Equal(t, "40", c.String())

	shrink, err := f.svc.PostStocktake(ctx, 1, 2, snowflake.ID(807), decimal.NewFromInt(-25), "tester")
	require.NoError(t, err)
	require.Equal(t, gldomain.PostingStatusPosted, shrink.Status)
	d, _ = lineAmounts(t, shrink.Entry, acctShrink)
	assert.Equal(t, "25", d.String())
	_, c = lineAmounts(t, shrink.Entry, acctInventory)
	assert.Equal(t, "25", c.String())
}

func TestPostStocktake_GainFallsBackToShrinkAccount(t *testing.T) {
	f := setupGL(t, true)
	ctx := context.Background()

	require.NoError(t, f.db.Model(&mappingdomain.AccountMapping{}).
		Where("org_id = ?", 1).
		Update("gain_id", nil).Error)

	res, err := f.svc.PostStocktake(ctx, 1, 2, snowflake.ID(808), decimal.NewFromInt(15), "tester")
	require.NoError(t, err)
	require.Equal(t, gldomain.PostingStatusPosted, res.Status)
	_, c := lineAmounts(t, res.Entry, acctShrink)
	assert.Equal(t, "15", c.String())
}

func TestVoid_CreatesReversalOnce(t *testing.T) {
	f := setupGL(t, true)
	ctx := context.Background()

	posted, err := f.svc.PostWaste(ctx, 1, 2, snowflake.ID(809), decimal.NewFromInt(60), "tester")
	require.NoError(t, err)
	require.Equal(t, gldomain.PostingStatusPosted, posted.Status)

	voided, err := f.svc.VoidWaste(ctx, 1, snowflake.ID(809), "tester")
	require.NoError(t, err)
	require.Equal(t, gldomain.PostingStatusPosted, voided.Status)
	require.NotNil(t, voided.Entry)
	assert.Equal(t, gldomain.SourceWaste.VoidSource(), voided.Entry.Source)
	require.NotNil(t, voided.Entry.ReversesID)
	assert.Equal(t, posted.Entry.ID, *voided.Entry.ReversesID)

	// Legs are mirrored.
	d, c := lineAmounts(t, voided.Entry, acctWaste)
	assert.True(t, d.IsZero())
	assert.Equal(t, "60", c.String())
	d, _ = lineAmounts(t, voided.Entry, acctInventory)
	assert.Equal(t, "60", d.String())

	// The original flips to REVERSED.
	var original gldomain.JournalEntry
	require.NoError(t, f.db.First(&original, "id = ?", posted.Entry.ID).Error)
	assert.Equal(t, gldomain.JournalStatusReversed, original.Status)

	// A second void is a no-op replay.
	again, err := f.svc.VoidWaste(ctx, 1, snowflake.ID(809), "tester")
	require.NoError(t, err)
	assert.Equal(t, gldomain.PostingStatusSkipped, again.Status)
	assert.True(t, again.IsIdempotent)
}

func TestVoid_MissingEntrySkips(t *testing.T) {
	f := setupGL(t, true)
	ctx := context.Background()

	res, err := f.svc.VoidDepletion(ctx, 1, snowflake.ID(999), "tester")
	require.NoError(t, err)
	assert.Equal(t, gldomain.PostingStatusSkipped, res.Status)
	assert.False(t, res.IsIdempotent)
}

func TestGetEntryAndListEntries(t *testing.T) {
	f := setupGL(t, true)
	ctx := context.Background()

	_, err := f.svc.PostGoodsReceipt(ctx, 1, 2, snowflake.ID(810), decimal.NewFromInt(10), "tester")
	require.NoError(t, err)
	_, err = f.svc.PostDepletion(ctx, 1, 2, snowflake.ID(811), decimal.NewFromInt(5), "tester")
	require.NoError(t, err)

	entry, err := f.svc.GetEntry(ctx, 1, gldomain.SourceGoodsReceipt, snowflake.ID(810))
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)

	_, err = f.svc.GetEntry(ctx, 1, gldomain.SourceGoodsReceipt, snowflake.ID(9999))
	assert.ErrorIs(t, err, gldomain.ErrEntryNotFound)

	all, _, err := f.svc.ListEntries(ctx, 1, gldomain.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	depletions, _, err := f.svc.ListEntries(ctx, 1, gldomain.ListFilter{Source: gldomain.SourceDepletion})
	require.NoError(t, err)
	assert.Len(t, depletions, 1)

	firstPage, pageInfo, err := f.svc.ListEntries(ctx, 1, gldomain.ListFilter{
		Pagination: pagination.Pagination{PageSize: 1},
	})
	require.NoError(t, err)
	require.Len(t, firstPage, 1)
	require.NotNil(t, pageInfo)
	require.True(t, pageInfo.HasMore)

	secondPage, pageInfo, err := f.svc.ListEntries(ctx, 1, gldomain.ListFilter{
		Pagination: pagination.Pagination{PageToken: pageInfo.NextPageToken, PageSize: 1},
	})
	require.NoError(t, err)
	require.Len(t, secondPage, 1)
	assert.False(t, pageInfo.HasMore)
	assert.NotEqual(t, firstPage[0].ID, secondPage[0].ID)
}

func TestValidateBalanced(t *testing.T) {
	ok := []gldomain.JournalLine{
		{AccountID: acctInventory, Debit: decimal.NewFromInt(10), Credit: decimal.Zero},
		{AccountID: acctGRNI, Debit: decimal.Zero, Credit: decimal.NewFromInt(10)},
	}
	assert.NoError(t, gldomain.ValidateBalanced(ok))

	unbalanced := []gldomain.JournalLine{
		{AccountID: acctInventory, Debit: decimal.NewFromInt(10), Credit: decimal.Zero},
		{AccountID: acctGRNI, Debit: decimal.Zero, Credit: decimal.NewFromInt(9)},
	}
	assert.ErrorIs(t, gldomain.ValidateBalanced(unbalanced), gldomain.ErrUnbalancedEntry)

	assert.ErrorIs(t, gldomain.ValidateBalanced(nil), gldomain.ErrInvalidEntryLines)

	twoSided := []gldomain.JournalLine{
		{AccountID: acctInventory, Debit: decimal.NewFromInt(10), Credit: decimal.NewFromInt(10)},
		{AccountID: acctGRNI, Debit: decimal.Zero, Credit: decimal.Zero},
	}
	assert.ErrorIs(t, gldomain.ValidateBalanced(twoSided), gldomain.ErrInvalidLineAmount)
}

package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	mappingdomain "github.com/bistrokit/stockbook/internal/accountmapping/domain"
	"github.com/bistrokit/stockbook/internal/clock"
	perioddomain "github.com/bistrokit/stockbook/internal/fiscalperiod/domain"
	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	obsmetrics "github.com/bistrokit/stockbook/internal/observability/metrics"
	"github.com/bistrokit/stockbook/pkg/db"
	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Mappings   mappingdomain.Resolver
	Periods    perioddomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	mappings   mappingdomain.Resolver
	periods    perioddomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) gldomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("gl.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		mappings:   p.Mappings,
		periods:    p.Periods,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) PostGoodsReceipt(ctx context.Context, orgID, branchID, receiptID snowflake.ID, amount decimal.Decimal, actor string) (*gldomain.PostingResult, error) {
	return s.post(ctx, nil, orgID, branchID, receiptID, gldomain.GoodsReceiptDoc{Amount: amount}, actor)
}

func (s *Service) PostGoodsReceiptTx(ctx context.Context, tx *gorm.DB, orgID, branchID, receiptID snowflake.ID, amount decimal.Decimal, actor string) (*gldomain.PostingResult, error) {
	return s.post(ctx, tx, orgID, branchID, receiptID, gldomain.GoodsReceiptDoc{Amount: amount}, actor)
}

func (s *Service) PostDepletion(ctx context.Context, orgID, branchID, depletionID snowflake.ID, amount decimal.Decimal, actor string) (*gldomain.PostingResult, error) {
	return s.post(ctx, nil, orgID, branchID, depletionID, gldomain.DepletionDoc{Amount: amount}, actor)
}

func (s *Service) PostDepletionTx(ctx context.Context, tx *gorm.DB, orgID, branchID, depletionID snowflake.ID, amount decimal.Decimal, actor string) (*gldomain.PostingResult, error) {
	return s.post(ctx, tx, orgID, branchID, depletionID, gldomain.DepletionDoc{Amount: amount}, actor)
}

func (s *Service) PostWaste(ctx context.Context, orgID, branchID, wasteID snowflake.ID, amount decimal.Decimal, actor string) (*gldomain.PostingResult, error) {
	return s.post(ctx, nil, orgID, branchID, wasteID, gldomain.WasteDoc{Amount: amount}, actor)
}

func (s *Service) PostWasteTx(ctx context.Context, tx *gorm.DB, orgID, branchID, wasteID snowflake.ID, amount decimal.Decimal, actor string) (*gldomain.PostingResult, error) {
	return s.post(ctx, tx, orgID, branchID, wasteID, gldomain.WasteDoc{Amount: amount}, actor)
}

func (s *Service) PostStocktake(ctx context.Context, orgID, branchID, stocktakeID snowflake.ID, variance decimal.Decimal, actor string) (*gldomain.PostingResult, error) {
	return s.post(ctx, nil, orgID, branchID, stocktakeID, gldomain.StocktakeDoc{Variance: variance}, actor)
}

func (s *Service) PostStocktakeTx(ctx context.Context, tx *gorm.DB, orgID, branchID, stocktakeID snowflake.ID, variance decimal.Decimal, actor string) (*gldomain.PostingResult, error) {
	return s.post(ctx, tx, orgID, branchID, stocktakeID, gldomain.StocktakeDoc{Variance: variance}, actor)
}

// post runs the shared posting pipeline. With tx == nil it opens its own
// transaction; otherwise it joins the caller's so a period-lock error
// rolls everything back together.
func (s *Service) post(ctx context.Context, tx *gorm.DB, orgID, branchID, sourceID snowflake.ID, doc gldomain.Document, actor string) (*gldomain.PostingResult, error) {
	if orgID == 0 {
		return nil, gldomain.ErrInvalidOrganization
	}
	if branchID == 0 {
		return nil, gldomain.ErrInvalidBranch
	}
	if sourceID == 0 {
		return nil, gldomain.ErrInvalidSourceID
	}

	if doc.Skip() {
		s.recordPosting(doc.Source(), gldomain.PostingStatusSkipped)
		return &gldomain.PostingResult{Status: gldomain.PostingStatusSkipped}, nil
	}

	var result *gldomain.PostingResult
	run := func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.postInTx(ctx, tx, orgID, branchID, sourceID, doc, actor)
		return txErr
	}

	var err error
	if tx != nil {
		err = run(tx)
	} else {
		err = s.db.WithContext(ctx).Transaction(run)
	}
	if err != nil {
		return nil, err
	}

	s.recordPosting(doc.Source(), result.Status)
	return result, nil
}

func (s *Service) postInTx(ctx context.Context, tx *gorm.DB, orgID, branchID, sourceID snowflake.ID, doc gldomain.Document, actor string) (*gldomain.PostingResult, error) {
	entryDate := s.clock.Now()

	// Replay check runs first: a retry creates no rows, so it stays
	// valid even when the original entry's period has since locked.
	// The unique constraint below is the guarantee.
	if existing, err := s.findEntry(ctx, tx, orgID, doc.Source(), sourceID); err != nil {
		return nil, err
	} else if existing != nil {
		return &gldomain.PostingResult{
			Status:       gldomain.PostingStatusPosted,
			Entry:        existing,
			IsIdempotent: true,
		}, nil
	}

	// Compliance boundary: a locked period always fails the enclosing
	// transaction, never silently skips.
	if err := s.periods.EnsureOpen(ctx, tx, orgID, entryDate); err != nil {
		return nil, err
	}

	mapping, err := s.mappings.ResolveTx(ctx, tx, orgID, branchID)
	if err != nil {
		if errors.Is(err, mappingdomain.ErrUnconfigured) {
			s.log.Warn("journal posting failed: no account mapping",
				zap.String("org_id", orgID.String()),
				zap.String("source", string(doc.Source())),
			)
			return &gldomain.PostingResult{
				Status:        gldomain.PostingStatusFailed,
				FailureReason: err.Error(),
			}, nil
		}
		return nil, err
	}

	entry := gldomain.JournalEntry{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		BranchID:  branchID,
		EntryDate: entryDate,
		Source:    doc.Source(),
		SourceID:  sourceID,
		Status:    gldomain.JournalStatusPosted,
		CreatedBy: actor,
		CreatedAt: entryDate,
	}
	for _, leg := range doc.Pair(*mapping) {
		entry.Lines = append(entry.Lines, gldomain.JournalLine{
			ID:        s.genID.Generate(),
			EntryID:   entry.ID,
			AccountID: leg.AccountID,
			Debit:     leg.Debit,
			Credit:    leg.Credit,
			CreatedAt: entryDate,
		})
	}

	if err := gldomain.ValidateBalanced(entry.Lines); err != nil {
		return nil, err
	}

	if err := s.insertEntry(ctx, tx, &entry); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// A concurrent retry won the race; adopt its entry.
			existing, ferr := s.findEntry(ctx, tx, orgID, doc.Source(), sourceID)
			if ferr != nil {
				return nil, ferr
			}
			if existing == nil {
				return nil, err
			}
			return &gldomain.PostingResult{
				Status:       gldomain.PostingStatusPosted,
				Entry:        existing,
				IsIdempotent: true,
			}, nil
		}
		return nil, err
	}

	return &gldomain.PostingResult{
		Status: gldomain.PostingStatusPosted,
		Entry:  &entry,
	}, nil
}

func (s *Service) insertEntry(ctx context.Context, tx *gorm.DB, entry *gldomain.JournalEntry) error {
	lines := entry.Lines
	entry.Lines = nil
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		entry.Lines = lines
		return err
	}
	for i := range lines {
		if err := tx.WithContext(ctx).Create(&lines[i]).Error; err != nil {
			entry.Lines = lines
			return err
		}
	}
	entry.Lines = lines
	return nil
}

func (s *Service) VoidGoodsReceipt(ctx context.Context, orgID, receiptID snowflake.ID, actor string) (*gldomain.PostingResult, error) {
	return s.void(ctx, orgID, gldomain.SourceGoodsReceipt, receiptID, actor)
}

func (s *Service) VoidDepletion(ctx context.Context, orgID, depletionID snowflake.ID, actor string) (*gldomain.PostingResult, error) {
	return s.void(ctx, orgID, gldomain.SourceDepletion, depletionID, actor)
}

func (s *Service) VoidWaste(ctx context.Context, orgID, wasteID snowflake.ID, actor string) (*gldomain.PostingResult, error) {
	return s.void(ctx, orgID, gldomain.SourceWaste, wasteID, actor)
}

func (s *Service) VoidStocktake(ctx context.Context, orgID, stocktakeID snowflake.ID, actor string) (*gldomain.PostingResult, error) {
	return s.void(ctx, orgID, gldomain.SourceStocktake, stocktakeID, actor)
}

func (s *Service) void(ctx context.Context, orgID snowflake.ID, source gldomain.Source, sourceID snowflake.ID, actor string) (*gldomain.PostingResult, error) {
	if orgID == 0 {
		return nil, gldomain.ErrInvalidOrganization
	}
	if sourceID == 0 {
		return nil, gldomain.ErrInvalidSourceID
	}

	var result *gldomain.PostingResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, err := s.findEntry(ctx, tx, orgID, source, sourceID)
		if err != nil {
			return err
		}
		// Voiding nothing, or voiding twice, is a safe no-op.
		if original == nil || original.Status == gldomain.JournalStatusReversed {
			result = &gldomain.PostingResult{Status: gldomain.PostingStatusSkipped, IsIdempotent: original != nil}
			return nil
		}

		now := s.clock.Now()
		if err := s.periods.EnsureOpen(ctx, tx, orgID, now); err != nil {
			return err
		}

		reversal := gldomain.JournalEntry{
			ID:         s.genID.Generate(),
			OrgID:      orgID,
			BranchID:   original.BranchID,
			EntryDate:  now,
			Source:     source.VoidSource(),
			SourceID:   sourceID,
			Status:     gldomain.JournalStatusPosted,
			ReversesID: &original.ID,
			CreatedBy:  actor,
			CreatedAt:  now,
		}
		for _, line := range original.Lines {
			reversal.Lines = append(reversal.Lines, gldomain.JournalLine{
				ID:        s.genID.Generate(),
				EntryID:   reversal.ID,
				AccountID: line.AccountID,
				Debit:     line.Credit,
				Credit:    line.Debit,
				CreatedAt: now,
			})
		}
		if err := gldomain.ValidateBalanced(reversal.Lines); err != nil {
			return err
		}

		if err := s.insertEntry(ctx, tx, &reversal); err != nil {
			if db.IsDuplicateKeyErr(err) {
				result = &gldomain.PostingResult{Status: gldomain.PostingStatusSkipped, IsIdempotent: true}
				return nil
			}
			return err
		}

		if err := tx.WithContext(ctx).Model(&gldomain.JournalEntry{}).
			Where("id = ?", original.ID).
			Update("status", gldomain.JournalStatusReversed).Error; err != nil {
			return err
		}

		result = &gldomain.PostingResult{Status: gldomain.PostingStatusPosted, Entry: &reversal}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordPosting(source.VoidSource(), result.Status)
	return result, nil
}

func (s *Service) findEntry(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, source gldomain.Source, sourceID snowflake.ID) (*gldomain.JournalEntry, error) {
	var entry gldomain.JournalEntry
	err := tx.WithContext(ctx).
		Where("org_id = ? AND source = ? AND source_id = ?", orgID, source, sourceID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := tx.WithContext(ctx).
		Where("entry_id = ?", entry.ID).
		Order("id ASC").
		Find(&entry.Lines).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Service) GetEntry(ctx context.Context, orgID snowflake.ID, source gldomain.Source, sourceID snowflake.ID) (*gldomain.JournalEntry, error) {
	entry, err := s.findEntry(ctx, s.db, orgID, source, sourceID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, gldomain.ErrEntryNotFound
	}
	return entry, nil
}

func (s *Service) ListEntries(ctx context.Context, orgID snowflake.ID, filter gldomain.ListFilter) ([]*gldomain.JournalEntry, *pagination.PageInfo, error) {
	if orgID == 0 {
		return nil, nil, gldomain.ErrInvalidOrganization
	}

	stmt := s.db.WithContext(ctx).Model(&gldomain.JournalEntry{}).
		Where("org_id = ?", orgID)
	if filter.BranchID != 0 {
		stmt = stmt.Where("branch_id = ?", filter.BranchID)
	}
	if filter.Source != "" {
		stmt = stmt.Where("source = ?", filter.Source)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.PageToken != "" {
		beforeID, err := pagination.DecodeIDToken(filter.PageToken)
		if err != nil {
			return nil, nil, err
		}
		stmt = stmt.Where("id < ?", beforeID)
	}

	// Snowflake IDs are time-ordered, so the ID doubles as the
	// newest-first paging key.
	limit := filter.Limit()
	var entries []*gldomain.JournalEntry
	if err := stmt.Order("id DESC").Limit(limit + 1).Find(&entries).Error; err != nil {
		return nil, nil, err
	}
	entries, pageInfo := pagination.BuildPageInfo(entries, limit, func(e *gldomain.JournalEntry) string {
		return pagination.TokenForID(e.ID)
	})
	return entries, pageInfo, nil
}

func (s *Service) recordPosting(source gldomain.Source, status gldomain.PostingStatus) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordJournalPosting(string(source), string(status))
	}
}

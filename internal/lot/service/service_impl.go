package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bistrokit/stockbook/internal/clock"
	lotdomain "github.com/bistrokit/stockbook/internal/lot/domain"
	obsmetrics "github.com/bistrokit/stockbook/internal/observability/metrics"
	"github.com/bistrokit/stockbook/pkg/db"
)

// IncrementSourceType marks trace rows written by IncrementLot.
const IncrementSourceType = "lot_increment"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) lotdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("lot.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateLot(ctx context.Context, orgID, branchID snowflake.ID, input lotdomain.CreateLotInput) (*lotdomain.CreateLotResult, error) {
	var result *lotdomain.CreateLotResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.CreateLotTx(ctx, tx, orgID, branchID, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) CreateLotTx(ctx context.Context, tx *gorm.DB, orgID, branchID snowflake.ID, input lotdomain.CreateLotInput) (*lotdomain.CreateLotResult, error) {
	if orgID == 0 {
		return nil, lotdomain.ErrInvalidOrganization
	}
	if branchID == 0 {
		return nil, lotdomain.ErrInvalidBranch
	}
	if input.ItemID == 0 {
		return nil, lotdomain.ErrInvalidItem
	}
	if input.LocationID == 0 {
		return nil, lotdomain.ErrInvalidLocation
	}
	input.LotNumber = strings.TrimSpace(input.LotNumber)
	if input.LotNumber == "" {
		return nil, lotdomain.ErrInvalidLotNumber
	}
	if !input.Qty.IsPositive() {
		return nil, lotdomain.ErrInvalidQty
	}

	existing, err := s.findByNumber(ctx, tx, orgID, branchID, input.ItemID, input.LocationID, input.LotNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.matchExisting(existing, input)
	}

	now := s.clock.Now()
	lot := lotdomain.Lot{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		BranchID:     branchID,
		ItemID:       input.ItemID,
		LocationID:   input.LocationID,
		LotNumber:    input.LotNumber,
		ReceivedQty:  input.Qty,
		RemainingQty: input.Qty,
		UnitCost:     input.UnitCost,
		ExpiryDate:   input.ExpiryDate,
		Status:       lotdomain.LotStatusActive,
		SourceType:   input.SourceType,
		SourceID:     input.SourceID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&lot).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost the insert race; the winner's row decides.
			existing, ferr := s.findByNumber(ctx, tx, orgID, branchID, input.ItemID, input.LocationID, input.LotNumber)
			if ferr != nil {
				return nil, ferr
			}
			if existing == nil {
				return nil, err
			}
			return s.matchExisting(existing, input)
		}
		return nil, err
	}

	return &lotdomain.CreateLotResult{Lot: &lot, IsIdempotent: false}, nil
}

func (s *Service) matchExisting(existing *lotdomain.Lot, input lotdomain.CreateLotInput) (*lotdomain.CreateLotResult, error) {
	if existing.SourceType == input.SourceType && existing.SourceID == input.SourceID {
		return &lotdomain.CreateLotResult{Lot: existing, IsIdempotent: true}, nil
	}
	return nil, lotdomain.ErrLotConflict
}

func (s *Service) findByNumber(ctx context.Context, tx *gorm.DB, orgID, branchID, itemID, locationID snowflake.ID, lotNumber string) (*lotdomain.Lot, error) {
	var lot lotdomain.Lot
	err := tx.WithContext(ctx).
		Where("org_id = ? AND branch_id = ? AND item_id = ? AND location_id = ? AND lot_number = ?",
			orgID, branchID, itemID, locationID, lotNumber).
		First(&lot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lot, nil
}

func (s *Service) AllocateFEFO(ctx context.Context, orgID, branchID, itemID, locationID snowflake.ID, qtyNeeded decimal.Decimal, excludeExpired bool) (*lotdomain.Plan, error) {
	if orgID == 0 {
		return nil, lotdomain.ErrInvalidOrganization
	}
	if !qtyNeeded.IsPositive() {
		return nil, lotdomain.ErrInvalidQty
	}

	var lots []lotdomain.Lot
	if err := s.db.WithContext(ctx).
		Where("org_id = ? AND branch_id = ? AND item_id = ? AND location_id = ? AND remaining_qty > 0 AND status NOT IN ?",
			orgID, branchID, itemID, locationID,
			[]lotdomain.LotStatus{lotdomain.LotStatusQuarantine, lotdomain.LotStatusDepleted}).
		Find(&lots).Error; err != nil {
		return nil, err
	}

	plan := lotdomain.PlanFEFO(lots, qtyNeeded, excludeExpired, s.clock.Now())
	if plan.Shortfall.IsPositive() && s.obsMetrics != nil {
		s.obsMetrics.RecordAllocationShortfall()
	}
	return &plan, nil
}

func (s *Service) DecrementLot(ctx context.Context, lotID snowflake.ID, qty decimal.Decimal, sourceType string, sourceID snowflake.ID, allocationOrder int) (*lotdomain.Lot, error) {
	var lot *lotdomain.Lot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		lot, txErr = s.DecrementLotTx(ctx, tx, lotID, qty, sourceType, sourceID, allocationOrder)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

func (s *Service) DecrementLotTx(ctx context.Context, tx *gorm.DB, lotID snowflake.ID, qty decimal.Decimal, sourceType string, sourceID snowflake.ID, allocationOrder int) (*lotdomain.Lot, error) {
	if !qty.IsPositive() {
		return nil, lotdomain.ErrInvalidQty
	}

	lot, err := s.lockLot(ctx, tx, lotID)
	if err != nil {
		return nil, err
	}
	if lot.RemainingQty.LessThan(qty) {
		return nil, lotdomain.ErrInsufficientLotQty
	}

	now := s.clock.Now()
	lot.RemainingQty = lot.RemainingQty.Sub(qty)
	lot.Status = lot.DeriveStatus(now)
	lot.UpdatedAt = now

	if err := tx.WithContext(ctx).Model(&lotdomain.Lot{}).
		Where("id = ?", lot.ID).
		Updates(map[string]any{
			"remaining_qty": lot.RemainingQty,
			"status":        lot.Status,
			"updated_at":    now,
		}).Error; err != nil {
		return nil, err
	}

	trace := lotdomain.LotAllocation{
		ID:              s.genID.Generate(),
		LotID:           lot.ID,
		AllocatedQty:    qty,
		SourceType:      sourceType,
		SourceID:        sourceID,
		AllocationOrder: allocationOrder,
		CreatedAt:       now,
	}
	if err := tx.WithContext(ctx).Create(&trace).Error; err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordLotAllocation()
	}
	return lot, nil
}

func (s *Service) IncrementLot(ctx context.Context, lotID snowflake.ID, qty decimal.Decimal) (*lotdomain.Lot, error) {
	var lot *lotdomain.Lot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		lot, txErr = s.IncrementLotTx(ctx, tx, lotID, qty)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

func (s *Service) IncrementLotTx(ctx context.Context, tx *gorm.DB, lotID snowflake.ID, qty decimal.Decimal) (*lotdomain.Lot, error) {
	if !qty.IsPositive() {
		return nil, lotdomain.ErrInvalidQty
	}

	lot, err := s.lockLot(ctx, tx, lotID)
	if err != nil {
		return nil, err
	}

	next := lot.RemainingQty.Add(qty)
	if next.GreaterThan(lot.ReceivedQty) {
		return nil, lotdomain.ErrInvalidQty
	}

	now := s.clock.Now()
	lot.RemainingQty = next
	lot.Status = lot.DeriveStatus(now)
	lot.UpdatedAt = now

	if err := tx.WithContext(ctx).Model(&lotdomain.Lot{}).
		Where("id = ?", lot.ID).
		Updates(map[string]any{
			"remaining_qty": lot.RemainingQty,
			"status":        lot.Status,
			"updated_at":    now,
		}).Error; err != nil {
		return nil, err
	}

	// Negative trace row keeps the accounting identity reconstructable:
	// remaining = received − Σ(positive traces) + Σ(negated negative traces).
	trace := lotdomain.LotAllocation{
		ID:           s.genID.Generate(),
		LotID:        lot.ID,
		AllocatedQty: qty.Neg(),
		SourceType:   IncrementSourceType,
		CreatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&trace).Error; err != nil {
		return nil, err
	}

	return lot, nil
}

func (s *Service) lockLot(ctx context.Context, tx *gorm.DB, lotID snowflake.ID) (*lotdomain.Lot, error) {
	if lotID == 0 {
		return nil, lotdomain.ErrLotNotFound
	}
	stmt := tx.WithContext(ctx)
	if tx.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var lot lotdomain.Lot
	if err := stmt.Where("id = ?", lotID).First(&lot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, lotdomain.ErrLotNotFound
		}
		return nil, err
	}
	return &lot, nil
}

func (s *Service) GetLot(ctx context.Context, lotID snowflake.ID) (*lotdomain.Lot, error) {
	if lotID == 0 {
		return nil, lotdomain.ErrLotNotFound
	}
	var lot lotdomain.Lot
	if err := s.db.WithContext(ctx).Where("id = ?", lotID).First(&lot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, lotdomain.ErrLotNotFound
		}
		return nil, err
	}
	return &lot, nil
}

func (s *Service) GetTraceability(ctx context.Context, lotID snowflake.ID) (*lotdomain.Traceability, error) {
	lot, err := s.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}

	var allocations []*lotdomain.LotAllocation
	if err := s.db.WithContext(ctx).
		Where("lot_id = ?", lotID).
		Order("created_at ASC, id ASC").
		Find(&allocations).Error; err != nil {
		return nil, err
	}

	trace := lotdomain.Traceability{
		Lot:            lot,
		Allocations:    allocations,
		TotalAllocated: decimal.Zero,
		TotalReturned:  decimal.Zero,
	}
	for _, a := range allocations {
		if a.AllocatedQty.IsPositive() {
			trace.TotalAllocated = trace.TotalAllocated.Add(a.AllocatedQty)
		} else {
			trace.TotalReturned = trace.TotalReturned.Add(a.AllocatedQty.Neg())
		}
	}
	return &trace, nil
}

func (s *Service) RefreshStatus(ctx context.Context, orgID snowflake.ID) (int, error) {
	if orgID == 0 {
		return 0, lotdomain.ErrInvalidOrganization
	}

	now := s.clock.Now()
	affected := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&lotdomain.Lot{}).
			Where("org_id = ? AND status = ? AND expiry_date IS NOT NULL AND expiry_date < ? AND remaining_qty > 0",
				orgID, lotdomain.LotStatusActive, now).
			Updates(map[string]any{"status": lotdomain.LotStatusExpired, "updated_at": now})
		if expired.Error != nil {
			return expired.Error
		}
		affected += int(expired.RowsAffected)

		depleted := tx.Model(&lotdomain.Lot{}).
			Where("org_id = ? AND status IN ? AND remaining_qty = 0",
				orgID, []lotdomain.LotStatus{lotdomain.LotStatusActive, lotdomain.LotStatusExpired}).
			Updates(map[string]any{"status": lotdomain.LotStatusDepleted, "updated_at": now})
		if depleted.Error != nil {
			return depleted.Error
		}
		affected += int(depleted.RowsAffected)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if affected > 0 {
		s.log.Info("refreshed lot statuses",
			zap.String("org_id", orgID.String()),
			zap.Int("lots", affected),
		)
	}
	return affected, nil
}

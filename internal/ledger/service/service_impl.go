package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bistrokit/stockbook/internal/clock"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	obsmetrics "github.com/bistrokit/stockbook/internal/observability/metrics"
	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

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

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) RecordEntry(ctx context.Context, orgID, branchID snowflake.ID, input ledgerdomain.RecordInput) (*ledgerdomain.RecordResult, error) {
	var result *ledgerdomain.RecordResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.RecordEntryTx(ctx, tx, orgID, branchID, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) RecordEntryTx(ctx context.Context, tx *gorm.DB, orgID, branchID snowflake.ID, input ledgerdomain.RecordInput) (*ledgerdomain.RecordResult, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	if branchID == 0 {
		return nil, ledgerdomain.ErrInvalidBranch
	}
	if input.ItemID == 0 {
		return nil, ledgerdomain.ErrInvalidItem
	}
	if input.LocationID == 0 {
		return nil, ledgerdomain.ErrInvalidLocation
	}
	if input.Qty.IsZero() {
		return nil, ledgerdomain.ErrInvalidQty
	}
	if input.Reason == "" {
		return nil, ledgerdomain.ErrInvalidReason
	}

	// Same-pair writers serialize on the cached level row so the
	// non-negative check cannot race between two decrements.
	if err := s.lockLevelRow(ctx, tx, orgID, branchID, input.ItemID, input.LocationID); err != nil {
		return nil, err
	}

	onHand, err := sumQty(ctx, tx, orgID, branchID, input.ItemID, input.LocationID)
	if err != nil {
		return nil, err
	}

	next := onHand.Add(input.Qty)
	if next.IsNegative() && !input.AllowNegative && !input.Reason.UnconditionalInbound() {
		return nil, ledgerdomain.ErrInsufficientStock
	}

	now := s.clock.Now()
	movement := ledgerdomain.StockMovement{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		BranchID:      branchID,
		ItemID:        input.ItemID,
		LocationID:    input.LocationID,
		Qty:           input.Qty,
		Reason:        input.Reason,
		SourceType:    input.SourceType,
		SourceID:      input.SourceID,
		CorrelationID: uuid.NewString(),
		CreatedBy:     input.CreatedBy,
		Metadata:      datatypes.JSONMap(input.Metadata),
		CreatedAt:     now,
	}
	if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).Model(&ledgerdomain.StockLevel{}).
		Where("org_id = ? AND branch_id = ? AND item_id = ? AND location_id = ?", orgID, branchID, input.ItemID, input.LocationID).
		Updates(map[string]any{"qty": next, "updated_at": now}).Error; err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordMovement(string(input.Reason))
	}

	return &ledgerdomain.RecordResult{Movement: movement, OnHand: next}, nil
}

// lockLevelRow ensures the cache row exists, then takes a row lock on it
// (postgres/mysql). SQLite serializes writers on its own.
func (s *Service) lockLevelRow(ctx context.Context, tx *gorm.DB, orgID, branchID, itemID, locationID snowflake.ID) error {
	level := ledgerdomain.StockLevel{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		BranchID:   branchID,
		ItemID:     itemID,
		LocationID: locationID,
		Qty:        decimal.Zero,
		UpdatedAt:  s.clock.Now(),
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&level).Error; err != nil {
		return err
	}

	stmt := tx.WithContext(ctx)
	if tx.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var locked ledgerdomain.StockLevel
	return stmt.
		Where("org_id = ? AND branch_id = ? AND item_id = ? AND location_id = ?", orgID, branchID, itemID, locationID).
		First(&locked).Error
}

func sumQty(ctx context.Context, tx *gorm.DB, orgID, branchID, itemID, locationID snowflake.ID) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := tx.WithContext(ctx).Model(&ledgerdomain.StockMovement{}).
		Select("COALESCE(SUM(qty), 0)").
		Where("org_id = ? AND branch_id = ? AND item_id = ? AND location_id = ?", orgID, branchID, itemID, locationID).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Service) GetOnHand(ctx context.Context, orgID, branchID, itemID, locationID snowflake.ID) (decimal.Decimal, error) {
	if orgID == 0 {
		return decimal.Zero, ledgerdomain.ErrInvalidOrganization
	}
	return sumQty(ctx, s.db, orgID, branchID, itemID, locationID)
}

type groupedRow struct {
	GroupID snowflake.ID    `gorm:"column:group_id"`
	Total   decimal.Decimal `gorm:"column:total"`
}

func (s *Service) GetOnHandByLocation(ctx context.Context, orgID, branchID, itemID snowflake.ID) (map[snowflake.ID]decimal.Decimal, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	var rows []groupedRow
	if err := s.db.WithContext(ctx).Model(&ledgerdomain.StockMovement{}).
		Select("location_id AS group_id, COALESCE(SUM(qty), 0) AS total").
		Where("org_id = ? AND branch_id = ? AND item_id = ?", orgID, branchID, itemID).
		Group("location_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return groupTotals(rows), nil
}

func (s *Service) GetOnHandByBranch(ctx context.Context, orgID, itemID snowflake.ID) (map[snowflake.ID]decimal.Decimal, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	var rows []groupedRow
	if err := s.db.WithContext(ctx).Model(&ledgerdomain.StockMovement{}).
		Select("branch_id AS group_id, COALESCE(SUM(qty), 0) AS total").
		Where("org_id = ? AND item_id = ?", orgID, itemID).
		Group("branch_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return groupTotals(rows), nil
}

func groupTotals(rows []groupedRow) map[snowflake.ID]decimal.Decimal {
	out := make(map[snowflake.ID]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.GroupID] = r.Total
	}
	return out
}

func (s *Service) ListMovements(ctx context.Context, orgID snowflake.ID, filter ledgerdomain.ListFilter) ([]*ledgerdomain.StockMovement, *pagination.PageInfo, error) {
	if orgID == 0 {
		return nil, nil, ledgerdomain.ErrInvalidOrganization
	}
	stmt := s.db.WithContext(ctx).Model(&ledgerdomain.StockMovement{}).
		Where("org_id = ?", orgID)
	if filter.BranchID != 0 {
		stmt = stmt.Where("branch_id = ?", filter.BranchID)
	}
	if filter.ItemID != 0 {
		stmt = stmt.Where("item_id = ?", filter.ItemID)
	}
	if filter.LocationID != 0 {
		stmt = stmt.Where("location_id = ?", filter.LocationID)
	}
	if filter.Reason != "" {
		stmt = stmt.Where("reason = ?", filter.Reason)
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
	var movements []*ledgerdomain.StockMovement
	if err := stmt.Order("id DESC").Limit(limit + 1).Find(&movements).Error; err != nil {
		return nil, nil, err
	}
	movements, pageInfo := pagination.BuildPageInfo(movements, limit, func(m *ledgerdomain.StockMovement) string {
		return pagination.TokenForID(m.ID)
	})
	return movements, pageInfo, nil
}

func (s *Service) Rebuild(ctx context.Context, orgID snowflake.ID) (int, error) {
	if orgID == 0 {
		return 0, ledgerdomain.ErrInvalidOrganization
	}

	type pairRow struct {
		BranchID   snowflake.ID    `gorm:"column:branch_id"`
		ItemID     snowflake.ID    `gorm:"column:item_id"`
		LocationID snowflake.ID    `gorm:"column:location_id"`
		Total      decimal.Decimal `gorm:"column:total"`
	}

	rebuilt := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pairs []pairRow
		if err := tx.Model(&ledgerdomain.StockMovement{}).
			Select("branch_id, item_id, location_id, COALESCE(SUM(qty), 0) AS total").
			Where("org_id = ?", orgID).
			Group("branch_id, item_id, location_id").
			Scan(&pairs).Error; err != nil {
			return err
		}

		now := s.clock.Now()
		for _, p := range pairs {
			level := ledgerdomain.StockLevel{
				ID:         s.genID.Generate(),
				OrgID:      orgID,
				BranchID:   p.BranchID,
				ItemID:     p.ItemID,
				LocationID: p.LocationID,
				Qty:        p.Total,
				UpdatedAt:  now,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "org_id"}, {Name: "branch_id"}, {Name: "item_id"}, {Name: "location_id"}},
				DoUpdates: clause.Assignments(map[string]any{"qty": p.Total, "updated_at": now}),
			}).Create(&level).Error; err != nil {
				return err
			}
			rebuilt++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("rebuilt stock levels from movement ledger",
		zap.String("org_id", orgID.String()),
		zap.Int("pairs", rebuilt),
	)
	return rebuilt, nil
}

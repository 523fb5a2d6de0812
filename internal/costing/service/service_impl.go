package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bistrokit/stockbook/internal/clock"
	costingdomain "github.com/bistrokit/stockbook/internal/costing/domain"
	recipedomain "github.com/bistrokit/stockbook/internal/recipe/domain"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Recipes recipedomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	recipes recipedomain.Repository
}

func NewService(p Params) costingdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("costing.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		recipes: p.Recipes,
	}
}

func (s *Service) AddLayerTx(ctx context.Context, tx *gorm.DB, orgID, branchID snowflake.ID, input costingdomain.LayerInput) (*costingdomain.CostLayer, error) {
	if orgID == 0 {
		return nil, costingdomain.ErrInvalidOrganization
	}
	if input.ItemID == 0 {
		return nil, costingdomain.ErrInvalidItem
	}
	if !input.Qty.IsPositive() {
		return nil, costingdomain.ErrInvalidQty
	}
	if input.UnitCost.IsNegative() {
		return nil, costingdomain.ErrInvalidUnitCost
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.clock.Now()
	}

	layer := costingdomain.CostLayer{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		BranchID:     branchID,
		ItemID:       input.ItemID,
		LocationID:   input.LocationID,
		QtyReceived:  input.Qty,
		QtyRemaining: input.Qty,
		UnitCost:     input.UnitCost,
		SourceType:   input.SourceType,
		SourceID:     input.SourceID,
		CreatedAt:    receivedAt,
	}
	if err := tx.WithContext(ctx).Create(&layer).Error; err != nil {
		return nil, err
	}
	return &layer, nil
}

func (s *Service) ConsumeLayersTx(ctx context.Context, tx *gorm.DB, orgID, branchID, itemID, locationID snowflake.ID, qty decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, costingdomain.ErrInvalidQty
	}

	layers, err := s.lockLayers(ctx, tx, orgID, branchID, itemID, locationID, "created_at ASC, id ASC")
	if err != nil {
		return decimal.Zero, err
	}

	consumed := decimal.Zero
	remaining := qty
	for _, layer := range layers {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, layer.QtyRemaining)
		if !take.IsPositive() {
			continue
		}
		if err := tx.WithContext(ctx).Model(&costingdomain.CostLayer{}).
			Where("id = ?", layer.ID).
			Update("qty_remaining", layer.QtyRemaining.Sub(take)).Error; err != nil {
			return decimal.Zero, err
		}
		consumed = consumed.Add(take)
		remaining = remaining.Sub(take)
	}
	return consumed, nil
}

func (s *Service) RestoreLayersTx(ctx context.Context, tx *gorm.DB, orgID, branchID, itemID, locationID snowflake.ID, qty decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, costingdomain.ErrInvalidQty
	}

	layers, err := s.lockLayers(ctx, tx, orgID, branchID, itemID, locationID, "created_at DESC, id DESC")
	if err != nil {
		return decimal.Zero, err
	}

	restored := decimal.Zero
	remaining := qty
	for _, layer := range layers {
		if !remaining.IsPositive() {
			break
		}
		headroom := layer.QtyReceived.Sub(layer.QtyRemaining)
		give := decimal.Min(remaining, headroom)
		if !give.IsPositive() {
			continue
		}
		if err := tx.WithContext(ctx).Model(&costingdomain.CostLayer{}).
			Where("id = ?", layer.ID).
			Update("qty_remaining", layer.QtyRemaining.Add(give)).Error; err != nil {
			return decimal.Zero, err
		}
		restored = restored.Add(give)
		remaining = remaining.Sub(give)
	}
	return restored, nil
}

func (s *Service) lockLayers(ctx context.Context, tx *gorm.DB, orgID, branchID, itemID, locationID snowflake.ID, order string) ([]costingdomain.CostLayer, error) {
	stmt := tx.WithContext(ctx)
	if tx.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var layers []costingdomain.CostLayer
	err := stmt.
		Where("org_id = ? AND branch_id = ? AND item_id = ? AND location_id = ?", orgID, branchID, itemID, locationID).
		Order(order).
		Find(&layers).Error
	if err != nil {
		return nil, err
	}
	return layers, nil
}

func (s *Service) GetWAC(ctx context.Context, orgID, itemID snowflake.ID) (decimal.Decimal, error) {
	if orgID == 0 {
		return decimal.Zero, costingdomain.ErrInvalidOrganization
	}
	if itemID == 0 {
		return decimal.Zero, costingdomain.ErrInvalidItem
	}

	var layers []costingdomain.CostLayer
	if err := s.db.WithContext(ctx).
		Where("org_id = ? AND item_id = ? AND qty_remaining > 0", orgID, itemID).
		Find(&layers).Error; err != nil {
		return decimal.Zero, err
	}
	return costingdomain.WeightedAverage(layers), nil
}

func (s *Service) GetRecipeCost(ctx context.Context, orgID, targetID snowflake.ID, selectedModifiers map[string]bool) (decimal.Decimal, error) {
	if orgID == 0 {
		return decimal.Zero, costingdomain.ErrInvalidOrganization
	}

	lines, err := s.recipes.GetLines(ctx, orgID, targetID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, line := range lines {
		// Unselected modifier lines are excluded entirely, not zeroed.
		if line.IsModifier() && !selectedModifiers[*line.ModifierKey] {
			continue
		}
		wac, err := s.GetWAC(ctx, orgID, line.ItemID)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(line.QtyPerUnit.Mul(wac))
	}
	return total.Round(costingdomain.WACScale), nil
}

func (s *Service) CalculateItemCosting(ctx context.Context, orgID, targetID snowflake.ID, selectedModifiers map[string]bool, input costingdomain.CostingInput) (*costingdomain.ItemCosting, error) {
	costUnit, err := s.GetRecipeCost(ctx, orgID, targetID, selectedModifiers)
	if err != nil {
		return nil, err
	}
	costing := costingdomain.ComputeItemCosting(costUnit, input)
	return &costing, nil
}

package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/bistrokit/stockbook/internal/audit/domain"
	costingdomain "github.com/bistrokit/stockbook/internal/costing/domain"
	"github.com/bistrokit/stockbook/internal/depletion/domain"
	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	lotdomain "github.com/bistrokit/stockbook/internal/lot/domain"
	obsmetrics "github.com/bistrokit/stockbook/internal/observability/metrics"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Ledger     ledgerdomain.Service
	Lots       lotdomain.Service
	Costing    costingdomain.Service
	GL         gldomain.Service
	Audit      auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	ledger     ledgerdomain.Service
	lots       lotdomain.Service
	costing    costingdomain.Service
	gl         gldomain.Service
	audit      auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("depletion.service"),
		genID:      p.GenID,
		ledger:     p.Ledger,
		lots:       p.Lots,
		costing:    p.Costing,
		gl:         p.GL,
		audit:      p.Audit,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Deplete(ctx context.Context, orgID, branchID snowflake.ID, input domain.DepleteInput) (*domain.DepleteResult, error) {
	input.ExcludeExpired = true
	return s.consume(ctx, orgID, branchID, input, ledgerdomain.ReasonSaleDepletion, domain.SourceTypeDepletion)
}

func (s *Service) Waste(ctx context.Context, orgID, branchID snowflake.ID, input domain.DepleteInput) (*domain.DepleteResult, error) {
	return s.consume(ctx, orgID, branchID, input, ledgerdomain.ReasonWaste, domain.SourceTypeWaste)
}

func (s *Service) consume(ctx context.Context, orgID, branchID snowflake.ID, input domain.DepleteInput, reason ledgerdomain.MovementReason, sourceType string) (*domain.DepleteResult, error) {
	switch {
	case orgID == 0:
		return nil, domain.ErrInvalidOrganization
	case branchID == 0:
		return nil, domain.ErrInvalidBranch
	case !input.Qty.IsPositive():
		return nil, domain.ErrInvalidQty
	}

	if input.DepletionID == 0 {
		input.DepletionID = s.genID.Generate()
	}

	// Valuation uses the WAC as of before this consumption.
	wac, err := s.costing.GetWAC(ctx, orgID, input.ItemID)
	if err != nil {
		return nil, err
	}
	amount := input.Qty.Mul(wac)

	result := &domain.DepleteResult{
		DepletionID: input.DepletionID,
		UnitCost:    wac,
		Amount:      amount,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.lots.AllocateFEFO(ctx, orgID, branchID, input.ItemID, input.LocationID, input.Qty, input.ExcludeExpired)
		if err != nil {
			return err
		}
		result.Plan = plan

		for i, alloc := range plan.Allocations {
			if _, err := s.lots.DecrementLotTx(ctx, tx, alloc.LotID, alloc.Qty, sourceType, input.DepletionID, i+1); err != nil {
				return err
			}
		}

		// The movement carries the full requested quantity; the ledger's
		// non-negative check is the hard gate, lot coverage is not. Stock
		// received before lot tracking was enabled has no lots to
		// decrement but is still on hand.
		movement, err := s.ledger.RecordEntryTx(ctx, tx, orgID, branchID, ledgerdomain.RecordInput{
			ItemID:     input.ItemID,
			LocationID: input.LocationID,
			Qty:        input.Qty.Neg(),
			Reason:     reason,
			SourceType: sourceType,
			SourceID:   input.DepletionID,
			CreatedBy:  input.Actor,
			Metadata:   map[string]any{"unit_cost": wac.String()},
		})
		if err != nil {
			return err
		}
		result.Movement = movement

		if _, err := s.costing.ConsumeLayersTx(ctx, tx, orgID, branchID, input.ItemID, input.LocationID, input.Qty); err != nil {
			return err
		}

		posting, err := s.postByKind(ctx, tx, orgID, branchID, input.DepletionID, amount, input.Actor, sourceType)
		if err != nil {
			return err
		}
		result.Posting = posting
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Plan != nil && result.Plan.Shortfall.IsPositive() {
		s.obsMetrics.RecordAllocationShortfall()
		s.log.Warn("lot coverage shortfall",
			zap.Int64("item_id", input.ItemID.Int64()),
			zap.String("shortfall", result.Plan.Shortfall.String()),
		)
	}

	s.audit.Record(ctx, orgID, branchID, input.Actor, "inventory."+sourceType, sourceType, input.DepletionID.String(), map[string]any{
		"item_id": input.ItemID.String(),
		"qty":     input.Qty.String(),
		"amount":  amount.String(),
	})

	s.log.Info("stock consumed",
		zap.Int64("org_id", orgID.Int64()),
		zap.String("source_type", sourceType),
		zap.Int64("source_id", input.DepletionID.Int64()),
		zap.String("qty", input.Qty.String()),
		zap.String("amount", amount.String()),
	)
	return result, nil
}

func (s *Service) postByKind(ctx context.Context, tx *gorm.DB, orgID, branchID, sourceID snowflake.ID, amount decimal.Decimal, actor, sourceType string) (*gldomain.PostingResult, error) {
	if sourceType == domain.SourceTypeWaste {
		return s.gl.PostWasteTx(ctx, tx, orgID, branchID, sourceID, amount, actor)
	}
	return s.gl.PostDepletionTx(ctx, tx, orgID, branchID, sourceID, amount, actor)
}

package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/bistrokit/stockbook/internal/audit/domain"
	"github.com/bistrokit/stockbook/internal/clock"
	"github.com/bistrokit/stockbook/internal/config"
	costingdomain "github.com/bistrokit/stockbook/internal/costing/domain"
	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	"github.com/bistrokit/stockbook/internal/stocktake/domain"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	GenID   *snowflake.Node
	Clock   clock.Clock
	Ledger  ledgerdomain.Service
	Costing costingdomain.Service
	GL      gldomain.Service
	Audit   auditdomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     config.Config
	genID   *snowflake.Node
	clock   clock.Clock
	ledger  ledgerdomain.Service
	costing costingdomain.Service
	gl      gldomain.Service
	audit   auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("stocktake.service"),
		cfg:     p.Config,
		genID:   p.GenID,
		clock:   p.Clock,
		ledger:  p.Ledger,
		costing: p.Costing,
		gl:      p.GL,
		audit:   p.Audit,
	}
}

func (s *Service) ApplyCount(ctx context.Context, orgID, branchID snowflake.ID, input domain.CountInput) (*domain.CountResult, error) {
	switch {
	case orgID == 0:
		return nil, domain.ErrInvalidOrganization
	case branchID == 0:
		return nil, domain.ErrInvalidBranch
	case input.CountedQty.IsNegative():
		return nil, domain.ErrInvalidCount
	}

	if input.StocktakeID == 0 {
		input.StocktakeID = s.genID.Generate()
	}

	systemQty, err := s.ledger.GetOnHand(ctx, orgID, branchID, input.ItemID, input.LocationID)
	if err != nil {
		return nil, err
	}
	variance := input.CountedQty.Sub(systemQty)

	result := &domain.CountResult{
		StocktakeID: input.StocktakeID,
		SystemQty:   systemQty,
		CountedQty:  input.CountedQty,
		Variance:    variance,
	}

	if variance.Abs().LessThanOrEqual(s.cfg.StocktakeTolerance) {
		result.WithinTolerance = true
		s.log.Info("count within tolerance, no adjustment",
			zap.Int64("item_id", input.ItemID.Int64()),
			zap.String("variance", variance.String()),
		)
		return result, nil
	}

	wac, err := s.costing.GetWAC(ctx, orgID, input.ItemID)
	if err != nil {
		return nil, err
	}
	amount := variance.Mul(wac)
	result.UnitCost = wac
	result.Amount = amount

	reason := ledgerdomain.ReasonStocktakeGain
	if variance.IsNegative() {
		reason = ledgerdomain.ReasonStocktakeShrink
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		movement, err := s.ledger.RecordEntryTx(ctx, tx, orgID, branchID, ledgerdomain.RecordInput{
			ItemID:     input.ItemID,
			LocationID: input.LocationID,
			Qty:        variance,
			Reason:     reason,
			SourceType: domain.SourceType,
			SourceID:   input.StocktakeID,
			CreatedBy:  input.Actor,
			Metadata: map[string]any{
				"system_qty":  systemQty.String(),
				"counted_qty": input.CountedQty.String(),
			},
		})
		if err != nil {
			return err
		}
		result.Movement = movement

		// Keep the cost-layer pool in step with on-hand so the WAC
		// denominator stays honest. Gains enter at the current WAC.
		if variance.IsPositive() {
			if _, err := s.costing.AddLayerTx(ctx, tx, orgID, branchID, costingdomain.LayerInput{
				ItemID:     input.ItemID,
				LocationID: input.LocationID,
				Qty:        variance,
				UnitCost:   wac,
				SourceType: domain.SourceType,
				SourceID:   input.StocktakeID,
				ReceivedAt: s.clock.Now(),
			}); err != nil {
				return err
			}
		} else {
			if _, err := s.costing.ConsumeLayersTx(ctx, tx, orgID, branchID, input.ItemID, input.LocationID, variance.Abs()); err != nil {
				return err
			}
		}

		posting, err := s.gl.PostStocktakeTx(ctx, tx, orgID, branchID, input.StocktakeID, amount, input.Actor)
		if err != nil {
			return err
		}
		result.Posting = posting
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, orgID, branchID, input.Actor, "inventory.stocktake", domain.SourceType, input.StocktakeID.String(), map[string]any{
		"item_id":     input.ItemID.String(),
		"system_qty":  systemQty.String(),
		"counted_qty": input.CountedQty.String(),
		"variance":    variance.String(),
		"amount":      amount.String(),
	})

	s.log.Info("stocktake adjustment applied",
		zap.Int64("org_id", orgID.Int64()),
		zap.Int64("stocktake_id", input.StocktakeID.Int64()),
		zap.String("variance", variance.String()),
		zap.String("amount", amount.String()),
	)
	return result, nil
}

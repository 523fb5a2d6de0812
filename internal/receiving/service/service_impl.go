package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/bistrokit/stockbook/internal/audit/domain"
	"github.com/bistrokit/stockbook/internal/clock"
	costingdomain "github.com/bistrokit/stockbook/internal/costing/domain"
	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	lotdomain "github.com/bistrokit/stockbook/internal/lot/domain"
	"github.com/bistrokit/stockbook/internal/receiving/domain"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Ledger  ledgerdomain.Service
	Lots    lotdomain.Service
	Costing costingdomain.Service
	GL      gldomain.Service
	Audit   auditdomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	ledger  ledgerdomain.Service
	lots    lotdomain.Service
	costing costingdomain.Service
	gl      gldomain.Service
	audit   auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("receiving.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		ledger:  p.Ledger,
		lots:    p.Lots,
		costing: p.Costing,
		gl:      p.GL,
		audit:   p.Audit,
	}
}

func (s *Service) Receive(ctx context.Context, orgID, branchID snowflake.ID, input domain.ReceiveInput) (*domain.ReceiveResult, error) {
	switch {
	case orgID == 0:
		return nil, domain.ErrInvalidOrganization
	case branchID == 0:
		return nil, domain.ErrInvalidBranch
	case !input.Qty.IsPositive():
		return nil, domain.ErrInvalidQty
	case input.UnitCost.IsNegative():
		return nil, domain.ErrInvalidUnitCost
	}

	if input.ReceiptID == 0 {
		input.ReceiptID = s.genID.Generate()
	}

	result := &domain.ReceiveResult{ReceiptID: input.ReceiptID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lotRes, err := s.lots.CreateLotTx(ctx, tx, orgID, branchID, lotdomain.CreateLotInput{
			ItemID:     input.ItemID,
			LocationID: input.LocationID,
			LotNumber:  input.LotNumber,
			Qty:        input.Qty,
			UnitCost:   input.UnitCost,
			ExpiryDate: input.ExpiryDate,
			SourceType: domain.SourceType,
			SourceID:   input.ReceiptID,
		})
		if err != nil {
			return err
		}
		result.Lot = lotRes.Lot

		// A replayed lot means the whole receipt already applied:
		// movement, layer and journal entry share the same source key.
		if lotRes.IsIdempotent {
			result.IsIdempotent = true
			return nil
		}

		movement, err := s.ledger.RecordEntryTx(ctx, tx, orgID, branchID, ledgerdomain.RecordInput{
			ItemID:     input.ItemID,
			LocationID: input.LocationID,
			Qty:        input.Qty,
			Reason:     ledgerdomain.ReasonPurchaseReceipt,
			SourceType: domain.SourceType,
			SourceID:   input.ReceiptID,
			CreatedBy:  input.Actor,
			Metadata:   map[string]any{"lot_number": input.LotNumber},
		})
		if err != nil {
			return err
		}
		result.Movement = movement

		layer, err := s.costing.AddLayerTx(ctx, tx, orgID, branchID, costingdomain.LayerInput{
			ItemID:     input.ItemID,
			LocationID: input.LocationID,
			Qty:        input.Qty,
			UnitCost:   input.UnitCost,
			SourceType: domain.SourceType,
			SourceID:   input.ReceiptID,
			ReceivedAt: s.clock.Now(),
		})
		if err != nil {
			return err
		}
		result.Layer = layer

		amount := input.Qty.Mul(input.UnitCost)
		posting, err := s.gl.PostGoodsReceiptTx(ctx, tx, orgID, branchID, input.ReceiptID, amount, input.Actor)
		if err != nil {
			// Only a locked fiscal period surfaces as an error; it
			// rolls the whole receipt back.
			return err
		}
		result.Posting = posting
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.IsIdempotent {
		s.audit.Record(ctx, orgID, branchID, input.Actor, "inventory.receive", domain.SourceType, input.ReceiptID.String(), map[string]any{
			"item_id":    input.ItemID.String(),
			"lot_number": input.LotNumber,
			"qty":        input.Qty.String(),
			"unit_cost":  input.UnitCost.String(),
		})
	}

	s.log.Info("goods receipt applied",
		zap.Int64("org_id", orgID.Int64()),
		zap.Int64("receipt_id", input.ReceiptID.Int64()),
		zap.String("qty", input.Qty.String()),
		zap.Bool("idempotent", result.IsIdempotent),
	)
	return result, nil
}

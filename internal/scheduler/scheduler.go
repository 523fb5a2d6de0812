package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bistrokit/stockbook/internal/clock"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	lotdomain "github.com/bistrokit/stockbook/internal/lot/domain"
	organizationdomain "github.com/bistrokit/stockbook/internal/organization/domain"
)

var ErrInvalidConfig = errors.New("scheduler requires db, logger, clock and services")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	LedgerSvc ledgerdomain.Service
	LotSvc    lotdomain.Service
	Config    Config `optional:"true"`
}

// Scheduler runs the periodic maintenance jobs: lot status derivation
// and the stock-level cache reconcile.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	ledgerSvc   ledgerdomain.Service
	lotSvc      lotdomain.Service
	lastRebuild time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.LedgerSvc == nil || p.LotSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler"),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		ledgerSvc: p.LedgerSvc,
		lotSvc:    p.LotSvc,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := s.clock.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	s.log.Debug("job finished",
		zap.String("job", name),
		zap.Duration("duration", duration),
	)
	return nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	if s.isJobEnabled("refresh_lot_status") {
		err = errors.Join(err, s.runJob(parent, "refresh_lot_status", 30*time.Second, s.RefreshLotStatusJob))
	}

	if s.isJobEnabled("rebuild_stock_levels") && s.clock.Now().Sub(s.lastRebuild) >= s.cfg.RebuildInterval {
		err = errors.Join(err, s.runJob(parent, "rebuild_stock_levels", 5*time.Minute, s.RebuildStockLevelsJob))
		s.lastRebuild = s.clock.Now()
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty EnabledJobs list enables everything (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// RefreshLotStatusJob flips lots to EXPIRED or DEPLETED as their
// derived status changes with time.
func (s *Scheduler) RefreshLotStatusJob(ctx context.Context) error {
	orgIDs, err := s.listOrgIDs(ctx)
	if err != nil {
		return err
	}

	for _, orgID := range orgIDs {
		updated, err := s.lotSvc.RefreshStatus(ctx, orgID)
		if err != nil {
			return err
		}
		if updated > 0 {
			s.log.Info("lot statuses refreshed",
				zap.Int64("org_id", orgID.Int64()),
				zap.Int("updated", updated),
			)
		}
	}
	return nil
}

// RebuildStockLevelsJob reconciles the cached stock levels against the
// movement ledger.
func (s *Scheduler) RebuildStockLevelsJob(ctx context.Context) error {
	orgIDs, err := s.listOrgIDs(ctx)
	if err != nil {
		return err
	}

	for _, orgID := range orgIDs {
		updated, err := s.ledgerSvc.Rebuild(ctx, orgID)
		if err != nil {
			return err
		}
		if updated > 0 {
			s.log.Info("stock levels reconciled",
				zap.Int64("org_id", orgID.Int64()),
				zap.Int("updated", updated),
			)
		}
	}
	return nil
}

func (s *Scheduler) listOrgIDs(ctx context.Context) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).
		Model(&organizationdomain.Organization{}).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

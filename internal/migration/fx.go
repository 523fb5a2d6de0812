package migration

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	accountmappingdomain "github.com/bistrokit/stockbook/internal/accountmapping/domain"
	auditdomain "github.com/bistrokit/stockbook/internal/audit/domain"
	"github.com/bistrokit/stockbook/internal/config"
	costingdomain "github.com/bistrokit/stockbook/internal/costing/domain"
	fiscalperioddomain "github.com/bistrokit/stockbook/internal/fiscalperiod/domain"
	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	lotdomain "github.com/bistrokit/stockbook/internal/lot/domain"
	organizationdomain "github.com/bistrokit/stockbook/internal/organization/domain"
	recipedomain "github.com/bistrokit/stockbook/internal/recipe/domain"
	"github.com/bistrokit/stockbook/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := autoMigrate(conn); err != nil {
				return err
			}
		}

		if cfg.DefaultOrgID != 0 {
			return seed.EnsureMainOrgWithID(conn, snowflake.ID(cfg.DefaultOrgID), snowflake.ID(cfg.DefaultBranchID))
		}
		return seed.EnsureMainOrg(conn)
	}),
)

func autoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&organizationdomain.Organization{},
		&organizationdomain.Branch{},
		&ledgerdomain.StockMovement{},
		&ledgerdomain.StockLevel{},
		&lotdomain.Lot{},
		&lotdomain.LotAllocation{},
		&costingdomain.CostLayer{},
		&recipedomain.RecipeLine{},
		&accountmappingdomain.Account{},
		&accountmappingdomain.AccountMapping{},
		&fiscalperioddomain.FiscalPeriod{},
		&gldomain.JournalEntry{},
		&gldomain.JournalLine{},
		&auditdomain.AuditLog{},
	)
}

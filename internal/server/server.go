package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bistrokit/stockbook/internal/accountmapping"
	"github.com/bistrokit/stockbook/internal/audit"
	auditdomain "github.com/bistrokit/stockbook/internal/audit/domain"
	"github.com/bistrokit/stockbook/internal/config"
	"github.com/bistrokit/stockbook/internal/costing"
	costingdomain "github.com/bistrokit/stockbook/internal/costing/domain"
	"github.com/bistrokit/stockbook/internal/depletion"
	depletiondomain "github.com/bistrokit/stockbook/internal/depletion/domain"
	"github.com/bistrokit/stockbook/internal/fiscalperiod"
	fiscalperioddomain "github.com/bistrokit/stockbook/internal/fiscalperiod/domain"
	"github.com/bistrokit/stockbook/internal/gl"
	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	"github.com/bistrokit/stockbook/internal/ledger"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	"github.com/bistrokit/stockbook/internal/lot"
	lotdomain "github.com/bistrokit/stockbook/internal/lot/domain"
	obsmetrics "github.com/bistrokit/stockbook/internal/observability/metrics"
	"github.com/bistrokit/stockbook/internal/organization"
	organizationdomain "github.com/bistrokit/stockbook/internal/organization/domain"
	"github.com/bistrokit/stockbook/internal/receiving"
	receivingdomain "github.com/bistrokit/stockbook/internal/receiving/domain"
	"github.com/bistrokit/stockbook/internal/recipe"
	"github.com/bistrokit/stockbook/internal/stocktake"
	stocktakedomain "github.com/bistrokit/stockbook/internal/stocktake/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	accountmapping.Module,
	audit.Module,
	costing.Module,
	depletion.Module,
	fiscalperiod.Module,
	gl.Module,
	ledger.Module,
	lot.Module,
	organization.Module,
	receiving.Module,
	recipe.Module,
	stocktake.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if registry := m.Registry(); registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	return r
}

func registerGin(log *zap.Logger, m *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(log, m)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	ledgerSvc       ledgerdomain.Service
	lotSvc          lotdomain.Service
	costingSvc      costingdomain.Service
	glSvc           gldomain.Service
	receivingSvc    receivingdomain.Service
	depletionSvc    depletiondomain.Service
	stocktakeSvc    stocktakedomain.Service
	fiscalperiodSvc fiscalperioddomain.Service
	auditSvc        auditdomain.Service
	organizationSvc organizationdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	LedgerSvc       ledgerdomain.Service
	LotSvc          lotdomain.Service
	CostingSvc      costingdomain.Service
	GLSvc           gldomain.Service
	ReceivingSvc    receivingdomain.Service
	DepletionSvc    depletiondomain.Service
	StocktakeSvc    stocktakedomain.Service
	FiscalperiodSvc fiscalperioddomain.Service
	AuditSvc        auditdomain.Service
	OrganizationSvc organizationdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		ledgerSvc:       p.LedgerSvc,
		lotSvc:          p.LotSvc,
		costingSvc:      p.CostingSvc,
		glSvc:           p.GLSvc,
		receivingSvc:    p.ReceivingSvc,
		depletionSvc:    p.DepletionSvc,
		stocktakeSvc:    p.StocktakeSvc,
		fiscalperiodSvc: p.FiscalperiodSvc,
		auditSvc:        p.AuditSvc,
		organizationSvc: p.OrganizationSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/stock/on-hand", s.GetOnHand)
	v1.GET("/stock/movements", s.ListMovements)
	v1.POST("/stock/rebuild", s.RebuildStockLevels)

	v1.GET("/lots/:id", s.GetLot)
	v1.GET("/lots/:id/traceability", s.GetLotTraceability)
	v1.POST("/lots/allocate-plan", s.PlanAllocation)

	v1.GET("/costing/wac", s.GetWAC)
	v1.GET("/costing/recipe-cost", s.GetRecipeCost)
	v1.POST("/costing/item", s.CalculateItemCosting)

	v1.POST("/receipts", s.Receive)
	v1.POST("/depletions", s.Deplete)
	v1.POST("/waste", s.Waste)
	v1.POST("/stocktakes", s.ApplyStocktake)

	v1.GET("/journal/entries", s.ListJournalEntries)
	v1.GET("/journal/entries/by-source", s.GetJournalEntry)
	v1.POST("/journal/voids", s.VoidJournalEntry)

	v1.GET("/audit/logs", s.ListAuditLogs)
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

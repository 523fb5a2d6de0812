package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	depletiondomain "github.com/bistrokit/stockbook/internal/depletion/domain"
)

type depleteRequest struct {
	ItemID         snowflake.ID    `json:"item_id"`
	LocationID     snowflake.ID    `json:"location_id"`
	Qty            decimal.Decimal `json:"qty"`
	ExcludeExpired bool            `json:"exclude_expired"`
	DepletionID    snowflake.ID    `json:"depletion_id"`
	Actor          string          `json:"actor"`
}

type consumeFunc func(ctx context.Context, orgID, branchID snowflake.ID, input depletiondomain.DepleteInput) (*depletiondomain.DepleteResult, error)

func (s *Server) Deplete(c *gin.Context) {
	s.consume(c, s.depletionSvc.Deplete)
}

func (s *Server) Waste(c *gin.Context) {
	s.consume(c, s.depletionSvc.Waste)
}

func (s *Server) consume(c *gin.Context, apply consumeFunc) {
	orgID, branchID, ok := s.orgScope(c)
	if !ok {
		return
	}

	var req depleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := apply(c.Request.Context(), orgID, branchID, depletiondomain.DepleteInput{
		ItemID:         req.ItemID,
		LocationID:     req.LocationID,
		Qty:            req.Qty,
		ExcludeExpired: req.ExcludeExpired,
		DepletionID:    req.DepletionID,
		Actor:          req.Actor,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

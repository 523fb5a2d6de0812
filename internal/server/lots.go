package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (s *Server) GetLot(c *gin.Context) {
	lotID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	lot, err := s.lotSvc.GetLot(c.Request.Context(), lotID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, lot)
}

func (s *Server) GetLotTraceability(c *gin.Context) {
	lotID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	trace, err := s.lotSvc.GetTraceability(c.Request.Context(), lotID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, trace)
}

type planAllocationRequest struct {
	ItemID         snowflake.ID    `json:"item_id"`
	LocationID     snowflake.ID    `json:"location_id"`
	Qty            decimal.Decimal `json:"qty"`
	ExcludeExpired bool            `json:"exclude_expired"`
}

func (s *Server) PlanAllocation(c *gin.Context) {
	orgID, branchID, ok := s.orgScope(c)
	if !ok {
		return
	}

	var req planAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	plan, err := s.lotSvc.AllocateFEFO(c.Request.Context(), orgID, branchID, req.ItemID, req.LocationID, req.Qty, req.ExcludeExpired)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func parseIDParam(c *gin.Context, key string) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param(key))
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		AbortWithError(c, newValidationError(key, "invalid_id", "invalid identifier"))
		return 0, false
	}
	return snowflake.ID(parsed), true
}

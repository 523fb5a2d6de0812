package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	costingdomain "github.com/bistrokit/stockbook/internal/costing/domain"
)

func (s *Server) GetWAC(c *gin.Context) {
	orgID, _, ok := s.orgScope(c)
	if !ok {
		return
	}

	itemID := parseIDQuery(c, "item_id")
	if itemID == 0 {
		AbortWithError(c, newValidationError("item_id", "invalid_item", "item_id is required"))
		return
	}

	wac, err := s.costingSvc.GetWAC(c.Request.Context(), orgID, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item_id":     itemID,
		"wac":         wac,
		"wac_display": wac.StringFixed(2),
	})
}

func (s *Server) GetRecipeCost(c *gin.Context) {
	orgID, _, ok := s.orgScope(c)
	if !ok {
		return
	}

	targetID := parseIDQuery(c, "target_id")
	if targetID == 0 {
		AbortWithError(c, newValidationError("target_id", "invalid_target", "target_id is required"))
		return
	}

	selected := map[string]bool{}
	for _, key := range strings.Split(c.Query("modifiers"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			selected[key] = true
		}
	}

	cost, err := s.costingSvc.GetRecipeCost(c.Request.Context(), orgID, targetID, selected)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"target_id":    targetID,
		"cost":         cost,
		"cost_display": cost.StringFixed(2),
	})
}

type itemCostingRequest struct {
	TargetID       snowflake.ID    `json:"target_id"`
	Modifiers      []string        `json:"modifiers"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	ModifiersPrice decimal.Decimal `json:"modifiers_price"`
	Discount       decimal.Decimal `json:"discount"`
}

func (s *Server) CalculateItemCosting(c *gin.Context) {
	orgID, _, ok := s.orgScope(c)
	if !ok {
		return
	}

	var req itemCostingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	selected := make(map[string]bool, len(req.Modifiers))
	for _, key := range req.Modifiers {
		if key = strings.TrimSpace(key); key != "" {
			selected[key] = true
		}
	}

	costing, err := s.costingSvc.CalculateItemCosting(c.Request.Context(), orgID, req.TargetID, selected, costingdomain.CostingInput{
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPrice,
		ModifiersPrice: req.ModifiersPrice,
		Discount:       req.Discount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, costing)
}

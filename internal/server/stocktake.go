package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	stocktakedomain "github.com/bistrokit/stockbook/internal/stocktake/domain"
)

type stocktakeRequest struct {
	ItemID      snowflake.ID    `json:"item_id"`
	LocationID  snowflake.ID    `json:"location_id"`
	CountedQty  decimal.Decimal `json:"counted_qty"`
	StocktakeID snowflake.ID    `json:"stocktake_id"`
	Actor       string          `json:"actor"`
}

func (s *Server) ApplyStocktake(c *gin.Context) {
	orgID, branchID, ok := s.orgScope(c)
	if !ok {
		return
	}

	var req stocktakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.stocktakeSvc.ApplyCount(c.Request.Context(), orgID, branchID, stocktakedomain.CountInput{
		ItemID:      req.ItemID,
		LocationID:  req.LocationID,
		CountedQty:  req.CountedQty,
		StocktakeID: req.StocktakeID,
		Actor:       req.Actor,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.WithinTolerance {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	receivingdomain "github.com/bistrokit/stockbook/internal/receiving/domain"
)

type receiveRequest struct {
	ItemID     snowflake.ID    `json:"item_id"`
	LocationID snowflake.ID    `json:"location_id"`
	LotNumber  string          `json:"lot_number"`
	Qty        decimal.Decimal `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
	ReceiptID  snowflake.ID    `json:"receipt_id"`
	Actor      string          `json:"actor"`
}

func (s *Server) Receive(c *gin.Context) {
	orgID, branchID, ok := s.orgScope(c)
	if !ok {
		return
	}

	var req receiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.receivingSvc.Receive(c.Request.Context(), orgID, branchID, receivingdomain.ReceiveInput{
		ItemID:     req.ItemID,
		LocationID: req.LocationID,
		LotNumber:  req.LotNumber,
		Qty:        req.Qty,
		UnitCost:   req.UnitCost,
		ExpiryDate: req.ExpiryDate,
		ReceiptID:  req.ReceiptID,
		Actor:      req.Actor,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.IsIdempotent {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

func (s *Server) GetOnHand(c *gin.Context) {
	orgID, branchID, ok := s.orgScope(c)
	if !ok {
		return
	}

	itemID := parseIDQuery(c, "item_id")
	if itemID == 0 {
		AbortWithError(c, newValidationError("item_id", "invalid_item", "item_id is required"))
		return
	}

	locationID := parseIDQuery(c, "location_id")
	if locationID != 0 {
		qty, err := s.ledgerSvc.GetOnHand(c.Request.Context(), orgID, branchID, itemID, locationID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"item_id": itemID, "location_id": locationID, "on_hand": qty})
		return
	}

	byLocation, err := s.ledgerSvc.GetOnHandByLocation(c.Request.Context(), orgID, branchID, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": itemID, "on_hand_by_location": byLocation})
}

func (s *Server) ListMovements(c *gin.Context) {
	orgID, branchID, ok := s.orgScope(c)
	if !ok {
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, err)
		return
	}

	movements, pageInfo, err := s.ledgerSvc.ListMovements(c.Request.Context(), orgID, ledgerdomain.ListFilter{
		BranchID:   branchID,
		ItemID:     parseIDQuery(c, "item_id"),
		LocationID: parseIDQuery(c, "location_id"),
		Reason:     ledgerdomain.MovementReason(strings.TrimSpace(c.Query("reason"))),
		Pagination: page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements, "page_info": pageInfo})
}

func (s *Server) RebuildStockLevels(c *gin.Context) {
	orgID, _, ok := s.orgScope(c)
	if !ok {
		return
	}

	updated, err := s.ledgerSvc.Rebuild(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

func (s *Server) ListJournalEntries(c *gin.Context) {
	orgID, branchID, ok := s.orgScope(c)
	if !ok {
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, err)
		return
	}

	entries, pageInfo, err := s.glSvc.ListEntries(c.Request.Context(), orgID, gldomain.ListFilter{
		BranchID:   branchID,
		Source:     gldomain.Source(strings.TrimSpace(c.Query("source"))),
		Status:     gldomain.JournalStatus(strings.TrimSpace(c.Query("status"))),
		Pagination: page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "page_info": pageInfo})
}

func (s *Server) GetJournalEntry(c *gin.Context) {
	orgID, _, ok := s.orgScope(c)
	if !ok {
		return
	}

	source := gldomain.Source(strings.TrimSpace(c.Query("source")))
	sourceID := parseIDQuery(c, "source_id")
	if source == "" || sourceID == 0 {
		AbortWithError(c, newValidationError("source", "invalid_source", "source and source_id are required"))
		return
	}

	entry, err := s.glSvc.GetEntry(c.Request.Context(), orgID, source, sourceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type voidRequest struct {
	Source   gldomain.Source `json:"source"`
	SourceID snowflake.ID    `json:"source_id"`
	Actor    string          `json:"actor"`
}

func (s *Server) VoidJournalEntry(c *gin.Context) {
	orgID, _, ok := s.orgScope(c)
	if !ok {
		return
	}

	var req voidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	var (
		result *gldomain.PostingResult
		err    error
	)
	switch req.Source {
	case gldomain.SourceGoodsReceipt:
		result, err = s.glSvc.VoidGoodsReceipt(c.Request.Context(), orgID, req.SourceID, req.Actor)
	case gldomain.SourceDepletion:
		result, err = s.glSvc.VoidDepletion(c.Request.Context(), orgID, req.SourceID, req.Actor)
	case gldomain.SourceWaste:
		result, err = s.glSvc.VoidWaste(c.Request.Context(), orgID, req.SourceID, req.Actor)
	case gldomain.SourceStocktake:
		result, err = s.glSvc.VoidStocktake(c.Request.Context(), orgID, req.SourceID, req.Actor)
	default:
		AbortWithError(c, newValidationError("source", "invalid_source", "unknown journal source"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

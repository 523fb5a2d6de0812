package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/bistrokit/stockbook/internal/audit/domain"
	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	orgID, _, ok := s.orgScope(c)
	if !ok {
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, err)
		return
	}

	logs, pageInfo, err := s.auditSvc.List(c.Request.Context(), orgID, auditdomain.ListFilter{
		Action:       strings.TrimSpace(c.Query("action")),
		ResourceType: strings.TrimSpace(c.Query("resource_type")),
		ResourceID:   strings.TrimSpace(c.Query("resource_id")),
		Pagination:   page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "page_info": pageInfo})
}

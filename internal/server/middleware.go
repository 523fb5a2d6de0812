package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderOrg    = "X-Org-ID"
	HeaderBranch = "X-Branch-ID"
)

// RequestLogger emits one structured line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.Last().Error()))
			log.Warn("request failed", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

// orgScope resolves the tenant scope from headers, falling back to the
// configured defaults for single-tenant installs.
func (s *Server) orgScope(c *gin.Context) (snowflake.ID, snowflake.ID, bool) {
	orgID := parseIDHeader(c, HeaderOrg, s.cfg.DefaultOrgID)
	branchID := parseIDHeader(c, HeaderBranch, s.cfg.DefaultBranchID)
	if orgID == 0 {
		AbortWithError(c, newValidationError("org_id", "invalid_organization", "organization scope is required"))
		return 0, 0, false
	}
	return orgID, branchID, true
}

func parseIDHeader(c *gin.Context, header string, def int64) snowflake.ID {
	raw := strings.TrimSpace(c.GetHeader(header))
	if raw == "" {
		return snowflake.ID(def)
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return snowflake.ID(def)
	}
	return snowflake.ID(parsed)
}

func parseIDQuery(c *gin.Context, key string) snowflake.ID {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0
	}
	return snowflake.ID(parsed)
}

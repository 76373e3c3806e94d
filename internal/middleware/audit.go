package middleware

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/pkg/middleware/requestid"
)

// AuditWriter persists audit entries.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit records an HTTP_MUTATION entry for every successful mutating
// request. Failures to write are logged and never surface to the caller.
func Audit(writer AuditWriter, resource string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		status := c.Writer.Status()
		if status >= 400 || c.Request.Method == "GET" {
			return
		}

		entry := &models.AuditLog{
			Action:    models.AuditActionHTTPMutation,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
			CreatedAt: start,
		}
		if claims, ok := CurrentClaims(c); ok {
			userID := claims.UserID
			entry.UserID = &userID
		}
		if id, err := strconv.ParseInt(c.Param("id"), 10, 64); err == nil {
			entry.ResourceID = &id
		}
		entry.NewValues, _ = json.Marshal(map[string]interface{}{
			"route":      c.FullPath(),
			"method":     c.Request.Method,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": requestid.Value(c),
		})

		if err := writer.CreateAuditLog(c.Request.Context(), entry); err != nil {
			logger.Warn("write http audit entry", zap.String("resource", resource), zap.Error(err))
		}
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

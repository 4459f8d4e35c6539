package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/models"
	"github.com/noah-isme/newsdesk/pkg/middleware/requestid"
)

// Audit writes one audit line per successful editorial request, naming the
// acting identity and the target resource.
func Audit(logger *zap.Logger, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		fields := []zap.Field{
			zap.String("action", action),
			zap.String("resource", resource),
			zap.String("resource_id", c.Param("id")),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			zap.String("ip", c.ClientIP()),
		}
		if id := requestid.FromContext(c.Request.Context()); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if session, ok := c.Value(ContextSessionKey).(models.Session); ok {
			fields = append(fields,
				zap.String("actor_id", session.IdentityID),
				zap.String("actor_role", string(session.Role)))
		}
		logger.Info("audit", fields...)
	}
}

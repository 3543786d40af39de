package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/yt-extract-go/pkg/logger"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a JSON 500. Hijacked websocket
// connections and responses that already started are only aborted.
func Recovery(log *zap.Logger, multiLogger *logger.MultiLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			fields := []zap.Field{
				zap.Any("panic", rec),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Bool("websocket", isWebSocket(c)),
				zap.Stack("stack"),
			}
			log.Error("Panic recovered", fields...)
			if multiLogger != nil {
				multiLogger.LogAppError("Panic recovered", append(fields, zap.String("client_ip", c.ClientIP()))...)
			}

			if c.Writer.Written() || isWebSocket(c) {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
			})
		}()
		c.Next()
	}
}

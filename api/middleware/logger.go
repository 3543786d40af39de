package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/yt-extract-go/pkg/logger"
	"go.uber.org/zap"
)

// pollPaths are hit on a timer by the page, health checks and scrapers
var pollPaths = map[string]bool{
	"/health":                   true,
	"/ready":                    true,
	"/metrics":                  true,
	"/api/v1/downloads/current": true,
}

func isWebSocket(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// Logger logs one line per request. Polled endpoints go to debug, websocket
// sessions are logged when they close. Responses >= 500 are copied to the
// error category log when multiLogger is set.
func Logger(log *zap.Logger, multiLogger *logger.MultiLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		ws := isWebSocket(c)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}

		switch {
		case ws:
			log.Info("WebSocket session closed", fields...)
		case pollPaths[path] && status < 400:
			log.Debug("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}

		if status >= 500 && multiLogger != nil {
			multiLogger.LogAppError("HTTP error response",
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.Int("status", status),
				zap.String("errors", c.Errors.String()),
			)
		}
	}
}

// CORS rejects cross-origin requests that policy does not list and answers
// preflights. Listed origins get their own origin echoed back, never "*".
func CORS(policy *OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !policy.Allows(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}

		if origin := c.GetHeader("Origin"); origin != "" && policy.Listed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

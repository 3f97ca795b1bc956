package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lumetube/lume/internal/logger"
)

// RequestLogger logs HTTP requests at debug level. Health checks and
// websocket upgrades are skipped.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/api/health" || c.IsWebsocket() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		logger.Debug("%s %s -> %d (%s, %d bytes)",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			duration,
			c.Writer.Size(),
		)
	}
}

// ErrorLogger logs errors attached to the gin context
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			for _, err := range c.Errors {
				logger.Error("Request error on %s %s: %v",
					c.Request.Method, c.Request.URL.Path, err.Err)
			}
		}
	}
}

// Package security provides response hardening and CORS middleware for the
// wallet risk API.
package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AllowedHeaders are the request headers browsers may send cross-origin.
var AllowedHeaders = []string{"Content-Type", "X-Request-ID", "Idempotency-Key"}

// HeadersMiddleware adds security headers to all responses. The service
// serves JSON and a websocket only, so the content policy denies everything.
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// CORSMiddleware lets the dashboard call the API from another origin. An
// empty list or "*" allows any origin. The request origin is echoed back,
// never a literal "*".
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	originsMap := make(map[string]bool)
	for _, o := range allowedOrigins {
		originsMap[o] = true
	}
	allowAny := len(allowedOrigins) == 0 || originsMap["*"]
	allowHeaders := strings.Join(AllowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		c.Header("Vary", "Origin")

		if origin != "" && (allowAny || originsMap[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", allowHeaders)
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, Idempotent-Replayed")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Package security provides response hardening and CORS middleware for the
// escrow API.
package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/samuelarogbonlo/dot-escrow/internal/validation"
)

// AllowedHeaders lists the request headers browsers may send cross-origin.
var AllowedHeaders = []string{"Content-Type", "X-Request-ID", validation.CallerHeader}

// responseHeaders is applied to every response. The API serves JSON and a
// websocket, and responses carry per-caller escrow state.
var responseHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; connect-src 'self' ws: wss:; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=()"},
}

// HeadersMiddleware sets the hardening headers on every response.
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range responseHeaders {
			h.Set(kv[0], kv[1])
		}
		c.Next()
	}
}

// CORSMiddleware allows the listed origins. An empty list allows any origin
// without credentials, as does "*".
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	wildcard := len(allowedOrigins) == 0 || allowed["*"]
	allowHeaders := strings.Join(AllowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Expose-Headers", "X-Request-ID")
			h.Set("Access-Control-Max-Age", "86400")
			// credentials are never combined with a wildcard
			if !wildcard {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

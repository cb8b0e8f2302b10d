package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var suspiciousAgents = []string{"sqlmap", "nmap", "nikto", "masscan", "zgrab"}

// RequestValidationMiddleware rejects anything the read-only JSON API
// cannot serve: write methods, non-JSON Accept headers and known scanners.
func RequestValidationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			c.Header("Allow", "GET, HEAD, OPTIONS")
			c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{
				"error": "API is read-only",
			})
			return
		}

		accept := c.GetHeader("Accept")
		if accept != "" && !strings.Contains(accept, "application/json") &&
			!strings.Contains(accept, "*/*") {
			c.AbortWithStatusJSON(http.StatusNotAcceptable, gin.H{
				"error": "API only supports application/json responses",
			})
			return
		}

		userAgent := strings.ToLower(c.GetHeader("User-Agent"))
		for _, pattern := range suspiciousAgents {
			if strings.Contains(userAgent, pattern) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "Request rejected",
				})
				return
			}
		}

		c.Next()
	}
}

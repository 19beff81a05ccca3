package utils

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ClientIP returns the caller's address for audit logs on the admin endpoints.
// X-Real-IP wins over X-Forwarded-For, then gin's own resolution.
func ClientIP(c *gin.Context) string {
	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}

	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if first, _, _ := strings.Cut(xff, ","); strings.TrimSpace(first) != "" {
			return strings.TrimSpace(first)
		}
	}

	return c.ClientIP()
}

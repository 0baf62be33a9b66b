package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MorphGate/morphgate/internal/model"
	"github.com/MorphGate/morphgate/internal/service"
)

// RateLimitMiddleware enforces the per-tenant token bucket. Must run
// after AuthMiddleware so the tenant is resolved.
func RateLimitMiddleware(tm *service.TenantManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantVal, exists := c.Get(ContextTenantKey)
		if !exists {
			c.Next()
			return
		}
		tenant := tenantVal.(*model.Tenant)

		limiter := tm.GetLimiterForTenant(tenant.ID)
		if limiter == nil {
			c.Next()
			return
		}

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

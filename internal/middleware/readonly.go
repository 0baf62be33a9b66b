package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MorphGate/morphgate/internal/pkg/apperrors"
)

// ReadOnlyMiddleware blocks mutating requests when the gateway runs in
// read-only mode. Emergency recovery stays reachable so the owner can
// still pull funds out.
func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		if c.FullPath() == "/v1/admin/recover" {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		default:
			c.Error(apperrors.New(apperrors.ErrReadOnly, "read-only mode enabled", nil))
			c.Abort()
			return
		}
	}
}

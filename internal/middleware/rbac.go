package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
	"github.com/noah-isme/sma-billing-api/pkg/response"
)

// RequireCapability admits callers whose role holds capability in the
// role matrix.
func RequireCapability(capability models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if !claims.Role.Can(capability) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" lacks "+string(capability)))
			return
		}
		c.Next()
	}
}

// RequireCapabilityOrSelf additionally admits a caller whose user ID equals
// the route parameter param, so students can read their own ledger.
func RequireCapabilityOrSelf(capability models.Capability, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if claims.Role.Can(capability) {
			c.Next()
			return
		}
		if target := c.Param(param); target != "" && target == formatID(claims.UserID) {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
	}
}

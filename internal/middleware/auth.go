package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/classdesk/internal/auth"
	"github.com/charlesng35/classdesk/internal/services"
	appErrors "github.com/charlesng35/classdesk/pkg/errors"
	"github.com/charlesng35/classdesk/pkg/logger"
	"github.com/charlesng35/classdesk/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxPrincipalKey = "principal"
)

// PrincipalResolver loads the current role and activation state of a user.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, userID string) (services.Principal, error)
}

// Auth verifies the bearer token and resolves the caller's principal once
// per request.
func Auth(jwt *iauth.JWTService, resolver PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.Verify(strings.TrimSpace(authz[7:]))
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		principal, err := resolver.ResolvePrincipal(c.Request.Context(), claims.UserID())
		if err != nil {
			if errors.Is(err, services.ErrUnavailable) {
				logger.WithModule("http").Error("resolve principal", zap.Error(err))
				response.Error(c, appErrors.ErrServiceUnavailable)
			} else {
				c.Header("WWW-Authenticate", "Bearer")
				response.Error(c, appErrors.ErrUnauthorized)
			}
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, principal.ID)
		c.Set(CtxPrincipalKey, principal)

		c.Next()
	}
}

// PrincipalFromContext returns the principal stored by Auth.
func PrincipalFromContext(c *gin.Context) (services.Principal, bool) {
	value, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return services.Principal{}, false
	}
	principal, ok := value.(services.Principal)
	return principal, ok
}

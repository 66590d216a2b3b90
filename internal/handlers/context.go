package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/classdesk/internal/middleware"
	"github.com/charlesng35/classdesk/internal/services"
	appErrors "github.com/charlesng35/classdesk/pkg/errors"
	"github.com/charlesng35/classdesk/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requirePrincipal returns the authenticated caller or writes a 401.
func requirePrincipal(c *gin.Context) (services.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok || principal.ID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return services.Principal{}, false
	}
	return principal, true
}

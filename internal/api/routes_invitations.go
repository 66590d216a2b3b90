package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/classdesk/internal/handlers"
)

func registerInvitationRoutes(api *gin.RouterGroup, handler *handlers.InvitationHandler) {
	invitations := api.Group("/invitations")
	{
		invitations.POST("", handler.Issue)
		invitations.GET("", handler.List)
		invitations.GET("/lookup", handler.Lookup)
		invitations.POST("/redeem", handler.Redeem)
		invitations.POST("/:id/deactivate", handler.Deactivate)
	}
}

package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/classdesk/internal/handlers"
)

func registerSubmissionRoutes(api *gin.RouterGroup, handler *handlers.SubmissionHandler) {
	assignments := api.Group("/assignments/:id")
	{
		assignments.POST("/submissions", handler.Create)
		assignments.GET("/submissions", handler.ListForAssignment)
	}

	api.GET("/submissions", handler.ListMine)
	api.POST("/submissions/:id/grade", handler.Grade)
	api.GET("/attachments/:id/download", handler.Download)
}

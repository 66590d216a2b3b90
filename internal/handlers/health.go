package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	appErrors "github.com/charlesng35/classdesk/pkg/errors"
	"github.com/charlesng35/classdesk/pkg/response"
)

// Health reports readiness, including a database ping.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			response.Error(c, appErrors.ErrServiceUnavailable.WithInternal(err))
			return
		}

		response.Success(c, http.StatusOK, gin.H{
			"status":     "ok",
			"checked_at": time.Now().UTC(),
		})
	}
}

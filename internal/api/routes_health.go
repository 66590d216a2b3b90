package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/classdesk/internal/app"
	"github.com/charlesng35/classdesk/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, db *gorm.DB, cfg *app.Config, metricsPath string) {
	r.GET("/health", handlers.Health(db))

	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}
}

package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/classdesk/internal/app"
	iauth "github.com/charlesng35/classdesk/internal/auth"
	"github.com/charlesng35/classdesk/internal/handlers"
	"github.com/charlesng35/classdesk/internal/middleware"
	"github.com/charlesng35/classdesk/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers the
// invitation and submission routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, store services.BlobStore) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if store == nil {
		return nil, fmt.Errorf("blob store must be provided")
	}

	metricsPath := cfg.Monitoring.Prometheus.Endpoint
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := gin.New()
	if cfg.Uploads.MaxMemory > 0 {
		r.MaxMultipartMemory = cfg.Uploads.MaxMemory
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(metricsPath))
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	registerHealthRoutes(r, db, cfg, metricsPath)

	auditSvc, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	userSvc, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}
	invitationSvc, err := services.NewInvitationService(db,
		services.WithTransactionTimeout(cfg.Database.TransactionTimeout),
		services.WithInvitationAudit(auditSvc),
	)
	if err != nil {
		return nil, err
	}
	attachmentSvc, err := services.NewAttachmentService(db, store,
		services.WithAttachmentLimits(cfg.Uploads.MaxBytes, cfg.Uploads.AllowedExtensions),
		services.WithAttachmentMaxFiles(cfg.Uploads.MaxFiles),
		services.WithAttachmentTransactionTimeout(cfg.Database.TransactionTimeout),
		services.WithAttachmentAudit(auditSvc),
	)
	if err != nil {
		return nil, err
	}
	submissionSvc, err := services.NewSubmissionService(db, store, services.WithSubmissionAudit(auditSvc))
	if err != nil {
		return nil, err
	}

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(jwt, userSvc))

	registerInvitationRoutes(api, handlers.NewInvitationHandler(invitationSvc))
	registerSubmissionRoutes(api, handlers.NewSubmissionHandler(attachmentSvc, submissionSvc))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

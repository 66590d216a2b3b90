package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/classdesk/internal/api"
	"github.com/charlesng35/classdesk/internal/app"
	"github.com/charlesng35/classdesk/internal/app/maintenance"
	iauth "github.com/charlesng35/classdesk/internal/auth"
	"github.com/charlesng35/classdesk/internal/database"
	"github.com/charlesng35/classdesk/internal/models"
	"github.com/charlesng35/classdesk/internal/services"
	"github.com/charlesng35/classdesk/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Store    services.BlobStore
	AuditSvc *services.AuditService
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, blob store, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	stack.Store, err = services.NewFilesystemBlobStore(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("initialise blob store: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.AuditSvc, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.DB, stack.Store, stack.AuditSvc,
			maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
			maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
			maintenance.WithOrphanGracePeriod(cfg.Maintenance.OrphanGracePeriod),
			maintenance.WithOrphanSchedule(cfg.Maintenance.OrphanSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, stack.Store)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

// provisionUser creates one account against the configured database.
// Accounts are created out of band; the API has no sign-up route.
func provisionUser(ctx context.Context, cfg *app.Config, log *zap.Logger, username, role, email string) (*models.User, error) {
	parsed, err := models.ParseRole(role)
	if err != nil {
		return nil, err
	}

	db, err := initialiseDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeDatabase(db, log)

	users, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}
	user, err := users.Create(ctx, services.CreateUserInput{Username: username, Email: email, Role: parsed})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	log.Info("user provisioned",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

func initialiseDatabase(ctx context.Context, cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}

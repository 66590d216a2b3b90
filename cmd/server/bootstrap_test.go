package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/classdesk/internal/app"
	"github.com/charlesng35/classdesk/internal/models"
	"github.com/charlesng35/classdesk/internal/services"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	dir := t.TempDir()

	return &app.Config{
		Server: app.ServerConfig{Port: 8000, RequestTimeout: 5 * time.Second},
		Database: app.DatabaseConfig{
			Driver:             "sqlite",
			Path:               filepath.Join(dir, "classdesk.sqlite"),
			TransactionTimeout: 5 * time.Second,
		},
		Storage: app.StorageConfig{Root: filepath.Join(dir, "blobs")},
		Uploads: app.UploadConfig{
			MaxBytes:          services.DefaultMaxAttachmentBytes,
			AllowedExtensions: services.DefaultAllowedExtensions,
		},
		Auth: app.AuthConfig{JWT: app.JWTSettings{Secret: "bootstrap-secret", Issuer: "test"}},
		Maintenance: app.MaintenanceConfig{
			Enabled:            true,
			OrphanSchedule:     "@hourly",
			OrphanGracePeriod:  time.Hour,
			AuditSchedule:      "@daily",
			AuditRetentionDays: 30,
		},
	}
}

func TestBootstrapRuntimeServesHealth(t *testing.T) {
	cfg := testConfig(t)

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer stack.Shutdown(context.Background(), zap.NewNop())

	require.NotNil(t, stack.Cleaner)
	_, err = os.Stat(filepath.Join(cfg.Storage.Root, services.BlobNamespace))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	stack.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestBootstrapRuntimeRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "open database")
}

func TestBootstrapRuntimeRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.OrphanSchedule = "whenever"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "start maintenance jobs")
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "nope"))
	require.ErrorContains(t, err, "does not exist")
}

func TestEnsureSecretsPresent(t *testing.T) {
	require.Error(t, ensureSecretsPresent(nil))

	cfg := &app.Config{}
	cfg.Auth.JWT.Secret = "   "
	require.Error(t, ensureSecretsPresent(cfg))

	cfg.Auth.JWT.Secret = " secret "
	require.NoError(t, ensureSecretsPresent(cfg))
	require.Equal(t, "secret", cfg.Auth.JWT.Secret)
}

func TestProvisionUser(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	user, err := provisionUser(ctx, cfg, zap.NewNop(), "hopper", "Teacher", "Hopper@Example.com")
	require.NoError(t, err)
	require.Equal(t, models.RoleTeacher, user.Role)
	require.Equal(t, "hopper@example.com", user.Email)

	_, err = provisionUser(ctx, cfg, zap.NewNop(), "root", "admin", "")
	require.ErrorContains(t, err, "unknown role")

	_, err = provisionUser(ctx, cfg, zap.NewNop(), "hopper", "student", "")
	require.ErrorIs(t, err, services.ErrInvalidInput)

	db, err := initialiseDatabase(ctx, cfg)
	require.NoError(t, err)
	defer closeDatabase(db, zap.NewNop())

	var stored models.User
	require.NoError(t, db.Take(&stored, "username = ?", "hopper").Error)
	require.Equal(t, user.ID, stored.ID)
	require.False(t, stored.IsVerified)
}

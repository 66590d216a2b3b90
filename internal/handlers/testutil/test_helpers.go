package testutil

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/classdesk/internal/api"
	"github.com/charlesng35/classdesk/internal/app"
	iauth "github.com/charlesng35/classdesk/internal/auth"
	sharedtestutil "github.com/charlesng35/classdesk/internal/database/testutil"
	"github.com/charlesng35/classdesk/internal/models"
	"github.com/charlesng35/classdesk/internal/services"
	"github.com/charlesng35/classdesk/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Store  *services.FilesystemBlobStore
	Config *app.Config
}

// Option customises the test configuration before the router is built.
type Option func(*app.Config)

// WithUploadLimits overrides the per-file size limit and allowed extensions.
func WithUploadLimits(maxBytes int64, extensions ...string) Option {
	return func(cfg *app.Config) {
		cfg.Uploads.MaxBytes = maxBytes
		if len(extensions) > 0 {
			cfg.Uploads.AllowedExtensions = extensions
		}
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Server:   app.ServerConfig{RequestTimeout: 30 * time.Second},
		Database: app.DatabaseConfig{TransactionTimeout: 5 * time.Second},
		Storage:  app.StorageConfig{Root: t.TempDir()},
		Uploads: app.UploadConfig{
			MaxBytes:          services.DefaultMaxAttachmentBytes,
			AllowedExtensions: services.DefaultAllowedExtensions,
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	store, err := services.NewFilesystemBlobStore(cfg.Storage.Root)
	require.NoError(t, err)

	router, err := api.NewRouter(db, jwtSvc, cfg, store)
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Store:  store,
		Config: cfg,
	}
}

// CreateUser inserts a user with a random username suffix.
func (e *Env) CreateUser(role models.Role, verified bool) *models.User {
	e.T.Helper()

	username := string(role) + "-" + uuid.NewString()
	user := &models.User{
		Username:   username,
		Email:      username + "@example.com",
		Role:       role,
		IsVerified: verified,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// Token issues a bearer token for user.
func (e *Env) Token(user *models.User) string {
	e.T.Helper()

	token, err := e.JWT.Issue(user.ID)
	require.NoError(e.T, err)
	return token
}

// CreateAssignment inserts an assignment.
func (e *Env) CreateAssignment(title string, active bool, dueAt *time.Time) *models.Assignment {
	e.T.Helper()

	assignment := &models.Assignment{Title: title, IsActive: active, DueAt: dueAt}
	require.NoError(e.T, e.DB.Create(assignment).Error)
	return assignment
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(req, token)
}

// UploadFile is one part of a multipart submission request.
type UploadFile struct {
	Name    string
	Content []byte
}

// Upload posts files as multipart "files" parts.
func (e *Env) Upload(path string, files []UploadFile, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, file := range files {
		part, err := writer.CreateFormFile("files", file.Name)
		require.NoError(e.T, err)
		_, err = part.Write(file.Content)
		require.NoError(e.T, err)
	}
	require.NoError(e.T, writer.Close())

	req, err := http.NewRequest(http.MethodPost, path, body)
	require.NoError(e.T, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return e.serve(req, token)
}

// Do executes a prepared request against the test router.
func (e *Env) Do(req *http.Request, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.serve(req, token)
}

func (e *Env) serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

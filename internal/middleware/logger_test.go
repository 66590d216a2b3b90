package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/classdesk/pkg/logger"
)

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	require.NoError(t, logger.Init("debug", "json"))

	r := gin.New()
	r.Use(Logger())
	r.GET("/ping", func(c *gin.Context) {
		c.Set(CtxUserIDKey, "user-1")
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "pong", w.Body.String())
}

func TestTimeoutMiddlewareSetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Timeout(time.Second))
	r.GET("/deadline", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		require.True(t, ok)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/deadline", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestMetricsMiddlewarePassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics("/metrics"))
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/things/:id", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	for path, want := range map[string]int{"/metrics": http.StatusOK, "/api/things/42": http.StatusAccepted} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, want, w.Code)
	}
}

package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

const testSecret = "test-secret"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, tenantID string, expiresIn time.Duration) string {
	t.Helper()
	claims := models.TenantClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func tenantRouter(cfg *config.AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), Tenant(cfg, quietLogger()))
	router.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, GetTenantFromContext(c))
	})
	return router
}

func TestTenant_AuthEnabled(t *testing.T) {
	router := tenantRouter(&config.AuthConfig{Enabled: true, JWTSecret: testSecret})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{
			name:   "valid token",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), "acme", time.Hour),
			status: http.StatusOK,
			body:   "acme",
		},
		{
			name:   "missing header",
			status: http.StatusUnauthorized,
		},
		{
			name:   "wrong scheme",
			header: "Basic abc",
			status: http.StatusUnauthorized,
		},
		{
			name:   "wrong secret",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), "acme", time.Hour),
			status: http.StatusUnauthorized,
		},
		{
			name:   "expired",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), "acme", -time.Hour),
			status: http.StatusUnauthorized,
		},
		{
			name:   "no tenant claim",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), "", time.Hour),
			status: http.StatusUnauthorized,
		},
		{
			name:   "other hmac algorithm",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), "acme", time.Hour),
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
		})
	}
}

func TestTenant_AuthDisabled(t *testing.T) {
	router := tenantRouter(&config.AuthConfig{Enabled: false})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(TenantIDHeader, "T1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T1", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_TENANT")
}

func TestRequestID_Propagates(t *testing.T) {
	router := tenantRouter(&config.AuthConfig{})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(TenantIDHeader, "T1")
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Recovery(quietLogger()))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestCORS_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS(&config.CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

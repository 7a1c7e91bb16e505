package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

const (
	TenantIDKey    = "tenant_id"
	TenantIDHeader = "X-Tenant-ID"
)

var errInvalidTenantToken = errors.New("invalid tenant token")

// Tenant resolves the calling tenant. With auth enabled the tenant comes from
// the tenant_id claim of an HS256 bearer token; otherwise from X-Tenant-ID.
func Tenant(cfg *config.AuthConfig, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			tenantID := strings.TrimSpace(c.GetHeader(TenantIDHeader))
			if tenantID == "" {
				abort(c, http.StatusBadRequest, "MISSING_TENANT", "X-Tenant-ID header is required")
				return
			}
			c.Set(TenantIDKey, tenantID)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "MISSING_AUTHORIZATION", "Authorization header is required")
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			abort(c, http.StatusUnauthorized, "INVALID_AUTHORIZATION_FORMAT", "Authorization header must be in format 'Bearer <token>'")
			return
		}

		claims, err := ParseTenantToken(tokenParts[1], cfg.JWTSecret)
		if err != nil {
			logger.WithError(err).Warn("Invalid tenant token")
			abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set(TenantIDKey, claims.TenantID)
		c.Next()
	}
}

// ParseTenantToken verifies an HS256 token and returns its claims.
func ParseTenantToken(tokenString, secret string) (*models.TenantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TenantClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidTenantToken
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.TenantClaims)
	if !ok || !token.Valid || claims.TenantID == "" {
		return nil, errInvalidTenantToken
	}
	return claims, nil
}

// GetTenantFromContext returns the tenant set by Tenant.
func GetTenantFromContext(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

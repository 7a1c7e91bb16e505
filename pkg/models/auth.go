package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TenantClaims is the payload of the bearer tokens issued to storefronts.
type TenantClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

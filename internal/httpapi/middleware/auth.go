package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/suPer8Hu/salesbot/internal/common"
)

const TenantIDKey = "tenant_id"

// OperatorClaims identifies the tenant an operator token acts for.
type OperatorClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// SignOperatorToken issues an HS256 operator token for tenantID.
func SignOperatorToken(tenantID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseOperatorToken(raw, secret string) (*OperatorClaims, error) {
	var claims OperatorClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.TenantID) == "" {
		return nil, errors.New("token has no tenant")
	}
	return &claims, nil
}

// AuthRequired checks the bearer token and stores its tenant in the context.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			return
		}
		claims, err := parseOperatorToken(strings.TrimSpace(raw), secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			return
		}
		c.Set(TenantIDKey, claims.TenantID)
		c.Next()
	}
}

func TenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}

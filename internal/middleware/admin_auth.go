package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/config"
)

// AdminClaims is the JWT payload for the admin surface (spec.md §9's
// supplemented admin operation: the forced expiry sweep). The
// payment-session API itself uses the plain API key
// of auth.go; this JWT layer gates the smaller admin-only surface.
type AdminClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuthMiddleware gates the admin surface with a JWT signed by
// cfg.API.AdminJWTSecret. Adapted from the teacher's admin auth
// middleware (internal/middleware/admin_auth.go), keeping its
// Bearer-parsing and role-check shape.
type AdminAuthMiddleware struct {
	cfg *config.Config
	log *logrus.Entry
}

// NewAdminAuthMiddleware constructs an AdminAuthMiddleware bound to
// cfg's admin JWT secret.
func NewAdminAuthMiddleware(cfg *config.Config, log *logrus.Entry) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{cfg: cfg, log: log}
}

// RequireAdminAuth rejects requests without a valid admin JWT bearing
// role "admin".
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.reject(c, http.StatusUnauthorized, "MISSING_AUTH_HEADER", "missing Authorization header")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.reject(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be in format: Bearer <token>")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			a.reject(c, http.StatusUnauthorized, "EMPTY_TOKEN", "empty token")
			return
		}

		claims, err := a.validate(tokenString)
		if err != nil {
			a.log.WithError(err).Warn("admin auth: invalid token")
			a.reject(c, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
			return
		}

		if claims.Role != "admin" {
			a.reject(c, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", "insufficient permissions")
			return
		}

		c.Set("admin_username", claims.Username)
		c.Set("admin_role", claims.Role)
		c.Next()
	}
}

func (a *AdminAuthMiddleware) validate(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.cfg.API.AdminJWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token not valid")
	}
	return claims, nil
}

func (a *AdminAuthMiddleware) reject(c *gin.Context, status int, code, message string) {
	a.log.WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
		"code":   code,
	}).Warn("admin auth: request rejected")

	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    strings.ToLower(code),
			"message": message,
		},
	})
	c.Abort()
}

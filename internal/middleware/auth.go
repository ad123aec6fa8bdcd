package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/config"
)

// AuthMiddleware gates the payment-session API surface with the
// single shared bearer API key of spec.md §6. Adapted from the
// teacher's JWT bearer-parsing middleware, swapping JWT validation for
// a constant-time API key comparison: this service has a single
// shared key, not per-user sessions.
type AuthMiddleware struct {
	cfg *config.Config
	log *logrus.Entry
}

// NewAuthMiddleware constructs an AuthMiddleware bound to cfg's API key.
func NewAuthMiddleware(cfg *config.Config, log *logrus.Entry) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg, log: log}
}

// RequireAPIKey rejects requests without a valid
// "Authorization: Bearer <API_KEY>" header, responding with the error
// envelope of spec.md §6.
func (a *AuthMiddleware) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.reject(c, "missing Authorization header")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.reject(c, "Authorization header must be in format: Bearer <token>")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" || !a.cfg.CheckAPIKey(token) {
			a.reject(c, "invalid API key")
			return
		}

		c.Next()
	}
}

func (a *AuthMiddleware) reject(c *gin.Context, reason string) {
	a.log.WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
		"reason": reason,
	}).Warn("auth: request rejected")

	c.JSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    "unauthorized",
			"message": reason,
		},
	})
	c.Abort()
}

// Package router wires the gin.Engine: CORS, health/metrics endpoints,
// the bearer-auth-gated payment-session API, and the websocket stream
// endpoint. Adapted from the teacher's SetupRouter (CORS middleware,
// /health, /metrics, NoRoute handler kept close to the original; the
// ZK-pay/admin-UI/localhost-only routes are replaced by the payment
// session routes of spec.md §6).
package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/api"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/config"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/handlers"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/middleware"
)

// corsMiddleware applies an allow-all CORS policy. The origin list is
// fixed to "*"; no allow-list is read from cfg or the environment.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigins := []string{"*"}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, o := range allowedOrigins {
				if strings.TrimSpace(o) == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, Accept")
		c.Header("Access-Control-Max-Age", strconv.Itoa(3600))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// SetupRouter builds the gin.Engine exposing the HTTP API of spec.md §6.
func SetupRouter(cfg *config.Config, facade *api.Facade, log *logrus.Entry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-session-service"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sessionHandler := handlers.NewSessionHandler(facade)
	transferHandler := handlers.NewTransferHandler(facade)
	systemHandler := handlers.NewSystemHandler(facade, log)

	auth := middleware.NewAuthMiddleware(cfg, log)

	v1 := r.Group("/api/v1")
	v1.Use(auth.RequireAPIKey())
	{
		v1.POST("/payment-sessions", sessionHandler.Create)
		v1.GET("/payment-sessions/:id", sessionHandler.Get)
		v1.GET("/payment-sessions", sessionHandler.List)
		v1.POST("/payment-sessions/:id/recreate", sessionHandler.Recreate)

		v1.GET("/transactions/:id", transferHandler.Get)
		v1.GET("/transactions", transferHandler.List)

		v1.GET("/system/network-status", systemHandler.NetworkStatus)
		v1.GET("/system/stream", facade.StreamHandler(log))
	}

	if cfg.API.AdminJWTSecret != "" {
		admin := middleware.NewAdminAuthMiddleware(cfg, log)
		adminGroup := r.Group("/api/v1/admin")
		adminGroup.Use(admin.RequireAdminAuth())
		{
			adminGroup.POST("/expiry-sweep", systemHandler.ForceExpirySweep)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "not_found",
				"message": "endpoint not found",
			},
		})
	})

	return r
}

package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"shambascan/internal/config"
	"shambascan/internal/handler"
	"shambascan/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	ScanHandler         *handler.ScanHandler
	PaymentHandler      *handler.PaymentHandler
	SubscriptionHandler *handler.SubscriptionHandler
	NotificationHandler *handler.NotificationHandler
	RedisClient         *redis.Client
	NewRelicApp         *newrelic.Application
	Auth                config.AuthConfig
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authRequired := middleware.AuthMiddleware(deps.Auth.JWTSecret, deps.Auth.JWTAudience)

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// The gateway result callback authenticates by URL secrecy, not
		// bearer token.
		v1.POST("/payments/callback", deps.PaymentHandler.Callback)

		// Public catalog routes.
		v1.GET("/plans", deps.SubscriptionHandler.ListPlans)
		v1.GET("/diseases", deps.ScanHandler.ListDiseases)

		// Scan routes.
		scans := v1.Group("/scans", authRequired)
		{
			scans.POST("", deps.ScanHandler.Analyze)
			scans.GET("", deps.ScanHandler.ListScans)
			scans.GET("/:id", deps.ScanHandler.GetScan)
		}

		// Payment routes.
		payments := v1.Group("/payments", authRequired)
		{
			payments.POST("/stkpush", deps.PaymentHandler.STKPush)
			payments.GET("/sessions/:id", deps.PaymentHandler.GetSession)
			payments.POST("/sessions/:id/cancel", deps.PaymentHandler.CancelSession)
		}

		// Subscription routes.
		subscriptions := v1.Group("/subscriptions", authRequired)
		{
			subscriptions.POST("", deps.SubscriptionHandler.Subscribe)
			subscriptions.GET("/me", deps.SubscriptionHandler.GetStatus)
		}

		// Notification routes.
		v1.GET("/notifications", authRequired, deps.NotificationHandler.List)
	}

	return router
}

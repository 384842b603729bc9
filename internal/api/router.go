package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/api/handlers"
	"github.com/corekit/storefront/internal/api/middleware"
	"github.com/corekit/storefront/internal/commerce"
	"github.com/corekit/storefront/internal/config"
	"github.com/corekit/storefront/internal/metrics"
	"github.com/corekit/storefront/internal/repository"
	"github.com/corekit/storefront/internal/service"
)

// NewRouter creates and configures the Gin router for the commerce sandbox
func NewRouter(
	cfg *config.SandboxConfig,
	repos *repository.Repositories,
	gatherer prometheus.Gatherer,
	serverMetrics *metrics.ServerMetrics,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	pricing := service.NewPricingService(repos, cfg.Pricing, logger)
	orders := service.NewOrderService(repos, pricing, cfg.HoldOrders, logger)
	payments := service.NewPaymentService(repos, cfg, logger)

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))
	router.Use(middleware.MetricsMiddleware(serverMetrics))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))

	api := router.Group("")
	api.Use(middleware.AuthMiddleware(cfg.TokenHash, logger))
	{
		api.GET("/products", handlers.HandleListProducts(repos, logger))
		api.GET("/products/:id", handlers.HandleGetProduct(repos, logger))
		api.POST(commerce.ValidateCartPath, handlers.HandleValidateCart(pricing, logger))
		api.POST(commerce.OrdersPath, middleware.IdempotencyMiddleware(), handlers.HandleCreateOrder(orders, logger))
		api.GET(commerce.OrdersPath+"/:id", handlers.HandleGetOrder(orders, logger))
		api.POST(commerce.PaymentIntentsPath, handlers.HandleCreatePaymentIntent(payments, logger))
		api.POST(commerce.ConfirmPaymentPath, handlers.HandleConfirmPayment(payments, logger))
	}

	admin := router.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg.TokenHash, logger))
	{
		admin.GET("/orders", handlers.HandleListOrders(orders, logger))
		admin.POST("/orders/:id/confirm", handlers.HandleConfirmOrder(orders, logger))
		admin.POST("/orders/:id/cancel", handlers.HandleCancelOrder(orders, logger))
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
		)
	}
}

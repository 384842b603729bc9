package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/api/middleware"
	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/service"
)

// HandleCreateOrder handles POST /orders. A replayed key answers 200 with the
// original order, a new order answers 201.
func HandleCreateOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := middleware.GetIdempotencyKey(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}

		var req domain.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}

		order, replayed, err := orders.CreateOrder(c.Request.Context(), key, req)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		if replayed {
			c.JSON(http.StatusOK, order)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

// HandleGetOrder handles GET /orders/:id
func HandleGetOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := orders.GetOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

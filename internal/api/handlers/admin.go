package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/service"
)

// CancelOrderRequest represents cancel order request
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// HandleConfirmOrder handles POST /admin/orders/:id/confirm
func HandleConfirmOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := orders.ConfirmOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"orderId": order.OrderID,
			"status":  order.Status,
		})
	}
}

// HandleCancelOrder handles POST /admin/orders/:id/cancel
func HandleCancelOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}

		order, err := orders.CancelOrder(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"orderId": order.OrderID,
			"status":  order.Status,
		})
	}
}

// HandleListOrders handles GET /admin/orders
func HandleListOrders(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var status *domain.OrderStatus
		if s := c.Query("status"); s != "" {
			filter := domain.OrderStatus(s)
			if !filter.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
				return
			}
			status = &filter
		}

		list, err := orders.ListOrders(c.Request.Context(), status)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"orders": list,
			"count":  len(list),
		})
	}
}

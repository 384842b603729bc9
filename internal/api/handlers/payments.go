package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/service"
)

// HandleCreatePaymentIntent handles POST /payments/intents
func HandleCreatePaymentIntent(payments *service.PaymentService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req domain.CreatePaymentIntentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}

		intent, err := payments.CreateIntent(c.Request.Context(), req.OrderID)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, intent)
	}
}

// HandleConfirmPayment handles POST /payments/confirm
func HandleConfirmPayment(payments *service.PaymentService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req domain.ConfirmPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}

		result, err := payments.Confirm(c.Request.Context(), req)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/commerce"
	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/service"
)

// HandleValidateCart handles POST /cart/validate
func HandleValidateCart(pricing *service.PricingService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req commerce.ValidateCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}

		items := make([]domain.CartItemRequest, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, domain.CartItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		result, err := pricing.Quote(c.Request.Context(), items)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

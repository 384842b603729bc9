package commerce

import "github.com/corekit/storefront/internal/domain"

// Remote commerce API paths, relative to the configured base URL
const (
	ProductsPath       = "/products"
	ValidateCartPath   = "/cart/validate"
	OrdersPath         = "/orders"
	PaymentIntentsPath = "/payments/intents"
	ConfirmPaymentPath = "/payments/confirm"
)

// Operation names used in logs and metrics
const (
	OpListProducts  = "list_products"
	OpGetProduct    = "get_product"
	OpValidateCart  = "validate_cart"
	OpCreateOrder   = "create_order"
	OpGetOrder      = "get_order"
	OpCreateIntent  = "create_payment_intent"
	OpConfirmIntent = "confirm_payment"
)

// ValidateCartRequest is the body of POST /cart/validate
type ValidateCartRequest struct {
	Items []CartItem `json:"items" binding:"required,min=1,dive"`
}

// CartItem mirrors domain.CartItemRequest on the wire
type CartItem struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// ProductList is the body of GET /products
type ProductList struct {
	Products []domain.StockedProduct `json:"products"`
}

// ErrorResponse is the error body returned by the API
type ErrorResponse struct {
	Error   string   `json:"error,omitempty"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

func (e ErrorResponse) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

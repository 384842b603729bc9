// Package memory holds process-local repositories for the commerce sandbox.
package memory

import (
	"github.com/corekit/storefront/internal/repository"
)

// NewRepositories creates empty in-memory repositories
func NewRepositories() *repository.Repositories {
	return &repository.Repositories{
		Product:       NewProductRepository(),
		Order:         NewOrderRepository(),
		Idempotency:   NewIdempotencyRepository(),
		PaymentIntent: NewPaymentIntentRepository(),
	}
}

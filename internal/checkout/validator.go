package checkout

import (
	"context"

	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

// PricingAuthority reconciles requested lines against server prices and stock
type PricingAuthority interface {
	ValidateCart(ctx context.Context, items []domain.CartItemRequest) (*domain.CartValidationResult, error)
}

// Validator produces the reconciled view of the cart. Warnings are advisory
// and never block submission.
type Validator struct {
	authority PricingAuthority
	logger    *zap.Logger
}

func NewValidator(authority PricingAuthority, logger *zap.Logger) *Validator {
	return &Validator{
		authority: authority,
		logger:    logger,
	}
}

// Validate returns a fresh CartValidationResult. Any failure is wrapped in a
// CartValidationError whose cause keeps its taxonomy kind.
func (v *Validator) Validate(ctx context.Context, items []domain.CartItemRequest) (*domain.CartValidationResult, error) {
	if len(items) == 0 {
		return nil, &errors.CartValidationError{Err: &errors.ValidationError{Message: "cart is empty"}}
	}

	result, err := v.authority.ValidateCart(ctx, items)
	if err != nil {
		return nil, &errors.CartValidationError{Err: err}
	}

	for _, item := range items {
		if _, ok := result.Item(item.ProductID); !ok {
			v.logger.Warn("Validation result is missing a requested line", zap.String("product_id", item.ProductID))
		}
	}
	if result.HasWarnings() {
		v.logger.Info("Cart validation returned warnings", zap.Strings("warnings", result.Warnings))
	}
	return result, nil
}

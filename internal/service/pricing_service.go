package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/config"
	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/repository"
	"github.com/corekit/storefront/pkg/errors"
)

type PricingService struct {
	repos  *repository.Repositories
	cfg    config.PricingConfig
	logger *zap.Logger
}

// NewPricingService creates a new pricing service
func NewPricingService(repos *repository.Repositories, cfg config.PricingConfig, logger *zap.Logger) *PricingService {
	return &PricingService{
		repos:  repos,
		cfg:    cfg,
		logger: logger,
	}
}

// Quote reconciles requested lines with current prices and stock. Stock
// shortfalls become warnings; unknown products are rejected.
func (s *PricingService) Quote(ctx context.Context, items []domain.CartItemRequest) (*domain.CartValidationResult, error) {
	merged, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	result := &domain.CartValidationResult{Items: make([]domain.CartValidationItem, 0, len(merged))}
	itemsTotal := decimal.Zero

	for _, item := range merged {
		product, err := s.repos.Product.GetByID(ctx, item.ProductID)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil, &errors.ValidationError{Message: fmt.Sprintf("unknown product %s", item.ProductID)}
			}
			return nil, err
		}

		subtotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		itemsTotal = itemsTotal.Add(subtotal)

		result.Items = append(result.Items, domain.CartValidationItem{
			ProductID:      product.ID,
			Name:           product.Name,
			ImageURL:       product.ImageURL,
			Price:          product.Price,
			AvailableStock: product.Stock,
			Quantity:       item.Quantity,
			Subtotal:       subtotal,
		})

		switch {
		case product.Stock == 0:
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s is out of stock", product.Name))
		case product.Stock < item.Quantity:
			result.Warnings = append(result.Warnings, fmt.Sprintf("Only %d of %s available", product.Stock, product.Name))
		}
	}

	result.Totals = s.totals(itemsTotal)
	return result, nil
}

func (s *PricingService) totals(itemsTotal decimal.Decimal) domain.Totals {
	shipping := s.cfg.ShippingFlatFee
	if s.cfg.FreeShippingThreshold.IsPositive() && itemsTotal.GreaterThanOrEqual(s.cfg.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	taxes := itemsTotal.Mul(s.cfg.TaxRate).Round(2)

	return domain.Totals{
		ItemsTotal: itemsTotal,
		Shipping:   shipping,
		Taxes:      taxes,
		GrandTotal: itemsTotal.Add(shipping).Add(taxes),
	}
}

// mergeItems folds repeated product ids into one line, keeping first-seen order
func mergeItems(items []domain.CartItemRequest) ([]domain.CartItemRequest, error) {
	if len(items) == 0 {
		return nil, &errors.ValidationError{Message: "at least one item is required"}
	}

	index := make(map[string]int, len(items))
	merged := make([]domain.CartItemRequest, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			return nil, &errors.ValidationError{Message: "productId is required"}
		}
		if item.Quantity < 1 {
			return nil, &errors.ValidationError{Message: fmt.Sprintf("quantity for %s must be at least 1", item.ProductID)}
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

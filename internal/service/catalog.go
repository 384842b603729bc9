package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/repository"
)

// DefaultCatalog is seeded when no catalog file is configured
func DefaultCatalog() []domain.StockedProduct {
	return []domain.StockedProduct{
		{Product: domain.Product{ID: "prod-mug", Name: "Enamel Mug", Price: decimal.RequireFromString("12.50")}, Stock: 25},
		{Product: domain.Product{ID: "prod-lamp", Name: "Desk Lamp", Price: decimal.RequireFromString("49.90")}, Stock: 5},
		{Product: domain.Product{ID: "prod-chair", Name: "Oak Chair", Price: decimal.RequireFromString("129.00")}, Stock: 2},
		{Product: domain.Product{ID: "prod-poster", Name: "Limited Poster", Price: decimal.RequireFromString("19.99")}, Stock: 0},
	}
}

// LoadCatalog reads a JSON array of products
func LoadCatalog(fs afero.Fs, path string) ([]domain.StockedProduct, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var products []domain.StockedProduct
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return products, nil
}

// SeedCatalog upserts products into the product repository
func SeedCatalog(ctx context.Context, repos *repository.Repositories, products []domain.StockedProduct) error {
	for i := range products {
		if products[i].ID == "" {
			return fmt.Errorf("catalog entry %d has no id", i)
		}
		if err := repos.Product.Upsert(ctx, &products[i]); err != nil {
			return fmt.Errorf("failed to seed %s: %w", products[i].ID, err)
		}
	}
	return nil
}

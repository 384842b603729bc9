package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

type productRepository struct {
	mu       sync.RWMutex
	products map[string]domain.StockedProduct
}

func NewProductRepository() *productRepository {
	return &productRepository{products: make(map[string]domain.StockedProduct)}
}

func (r *productRepository) GetByID(_ context.Context, id string) (*domain.StockedProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "product", ID: id}
	}
	return &p, nil
}

func (r *productRepository) List(_ context.Context) ([]*domain.StockedProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.StockedProduct, 0, len(r.products))
	for _, p := range r.products {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *productRepository) Upsert(_ context.Context, product *domain.StockedProduct) error {
	if product.Stock < 0 {
		return &errors.ValidationError{Message: "stock cannot be negative"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ID] = *product
	return nil
}

func (r *productRepository) AdjustStock(_ context.Context, deltas map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, delta := range deltas {
		p, ok := r.products[id]
		if !ok {
			return &errors.ErrNotFound{Resource: "product", ID: id}
		}
		if p.Stock+delta < 0 {
			return &errors.ConflictError{Message: fmt.Sprintf("insufficient stock for %s", id)}
		}
	}
	for id, delta := range deltas {
		p := r.products[id]
		p.Stock += delta
		r.products[id] = p
	}
	return nil
}

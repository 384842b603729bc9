package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

type orderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	number int
}

func NewOrderRepository() *orderRepository {
	return &orderRepository{orders: make(map[string]*domain.Order)}
}

func (r *orderRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.OrderID == "" {
		order.OrderID = uuid.NewString()
	}
	if _, exists := r.orders[order.OrderID]; exists {
		return fmt.Errorf("order %s already exists", order.OrderID)
	}
	if order.OrderNumber == "" {
		r.number++
		order.OrderNumber = fmt.Sprintf("%06d", r.number)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	r.orders[order.OrderID] = cloneOrder(order)
	return nil
}

func (r *orderRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "order", ID: id}
	}
	return cloneOrder(order), nil
}

func (r *orderRepository) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "order", ID: id}
	}
	if order.Status != from || !from.CanTransitionTo(to) {
		return &errors.ErrInvalidStateTransition{Entity: "order", From: string(order.Status), To: string(to)}
	}
	order.Status = to
	return nil
}

func (r *orderRepository) List(_ context.Context, status *domain.OrderStatus) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if status != nil && order.Status != *status {
			continue
		}
		out = append(out, cloneOrder(order))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out, nil
}

func cloneOrder(order *domain.Order) *domain.Order {
	c := *order
	c.Items = append([]domain.OrderItem(nil), order.Items...)
	return &c
}

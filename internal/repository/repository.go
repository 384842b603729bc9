package repository

import (
	"context"
	"errors"

	"github.com/corekit/storefront/internal/domain"
)

// ErrDuplicateKey is returned when an idempotency key is already recorded
var ErrDuplicateKey = errors.New("idempotency key already recorded")

// ProductRepository stores the sandbox catalog and its stock
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.StockedProduct, error)
	List(ctx context.Context) ([]*domain.StockedProduct, error)
	Upsert(ctx context.Context, product *domain.StockedProduct) error
	// AdjustStock applies all deltas or none. A delta that would take stock
	// below zero fails with a ConflictError.
	AdjustStock(ctx context.Context, deltas map[string]int) error
}

type OrderRepository interface {
	// Create assigns OrderNumber when empty.
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	// UpdateStatus moves the order from one status to another. It fails with
	// ErrInvalidStateTransition when the stored status is not from.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error
	List(ctx context.Context, status *domain.OrderStatus) ([]*domain.Order, error)
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	// Create fails with ErrDuplicateKey when the key exists.
	Create(ctx context.Context, record *domain.IdempotencyRecord) error
}

type PaymentIntentRepository interface {
	Create(ctx context.Context, intent *domain.PaymentIntent) error
	GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.PaymentIntentStatus) error
	// CancelOpen cancels every intent of the order still awaiting confirmation.
	CancelOpen(ctx context.Context, orderID string) (int, error)
}

// Repositories groups the sandbox repositories
type Repositories struct {
	Product       ProductRepository
	Order         OrderRepository
	Idempotency   IdempotencyRepository
	PaymentIntent PaymentIntentRepository
}

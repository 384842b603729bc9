package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

type paymentIntentRepository struct {
	mu      sync.RWMutex
	intents map[string]domain.PaymentIntent
}

func NewPaymentIntentRepository() *paymentIntentRepository {
	return &paymentIntentRepository{intents: make(map[string]domain.PaymentIntent)}
}

func (r *paymentIntentRepository) Create(_ context.Context, intent *domain.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if intent.ID == "" {
		intent.ID = "pi_" + uuid.NewString()
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	r.intents[intent.ID] = *intent
	return nil
}

func (r *paymentIntentRepository) GetByID(_ context.Context, id string) (*domain.PaymentIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	intent, ok := r.intents[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "payment intent", ID: id}
	}
	return &intent, nil
}

func (r *paymentIntentRepository) UpdateStatus(_ context.Context, id string, from, to domain.PaymentIntentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.intents[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "payment intent", ID: id}
	}
	if intent.Status != from || !from.CanTransitionTo(to) {
		return &errors.ErrInvalidStateTransition{Entity: "payment intent", From: string(intent.Status), To: string(to)}
	}
	intent.Status = to
	r.intents[id] = intent
	return nil
}

func (r *paymentIntentRepository) CancelOpen(_ context.Context, orderID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancelled := 0
	for id, intent := range r.intents {
		if intent.OrderID == orderID && intent.Status == domain.PaymentIntentRequiresConfirmation {
			intent.Status = domain.PaymentIntentCanceled
			r.intents[id] = intent
			cancelled++
		}
	}
	return cancelled, nil
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/repository"
	"github.com/corekit/storefront/pkg/errors"
)

type idempotencyRepository struct {
	mu      sync.RWMutex
	records map[string]domain.IdempotencyRecord
}

func NewIdempotencyRepository() *idempotencyRepository {
	return &idempotencyRepository{records: make(map[string]domain.IdempotencyRecord)}
}

func (r *idempotencyRepository) Get(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "idempotency key", ID: key}
	}
	return &rec, nil
}

func (r *idempotencyRepository) Create(_ context.Context, record *domain.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.Key]; exists {
		return repository.ErrDuplicateKey
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	r.records[record.Key] = *record
	return nil
}

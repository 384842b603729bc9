package postgres

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/repository"
	"github.com/corekit/storefront/pkg/errors"
)

type idempotencyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIdempotencyRepository creates a new idempotency key repository
func NewIdempotencyRepository(db *sql.DB, logger *zap.Logger) *idempotencyRepository {
	return &idempotencyRepository{
		db:     db,
		logger: logger,
	}
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT key, request_hash, order_id, created_at
		FROM idempotency_keys
		WHERE key = $1
	`

	var rec domain.IdempotencyRecord
	err := r.db.QueryRowContext(ctx, query, key).Scan(&rec.Key, &rec.RequestHash, &rec.OrderID, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "idempotency key", ID: key}
	}
	if err != nil {
		r.logger.Error("Failed to get idempotency key", zap.Error(err))
		return nil, err
	}
	return &rec, nil
}

func (r *idempotencyRepository) Create(ctx context.Context, record *domain.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_keys (key, request_hash, order_id, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query, record.Key, record.RequestHash, record.OrderID, record.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrDuplicateKey
	}
	if err != nil {
		r.logger.Error("Failed to record idempotency key", zap.Error(err))
		return err
	}
	return nil
}

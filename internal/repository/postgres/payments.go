package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

type paymentIntentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPaymentIntentRepository creates a new payment intent repository
func NewPaymentIntentRepository(db *sql.DB, logger *zap.Logger) *paymentIntentRepository {
	return &paymentIntentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *paymentIntentRepository) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (id, order_id, amount, currency, provider, client_token, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if intent.ID == "" {
		intent.ID = "pi_" + uuid.NewString()
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		intent.ID,
		intent.OrderID,
		intent.Amount,
		intent.Currency,
		intent.Provider,
		intent.ClientToken,
		intent.Status,
		intent.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create payment intent", zap.String("order_id", intent.OrderID), zap.Error(err))
		return err
	}
	return nil
}

func (r *paymentIntentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	query := `
		SELECT id, order_id, amount, currency, provider, client_token, status, created_at
		FROM payment_intents
		WHERE id = $1
	`

	var intent domain.PaymentIntent
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&intent.ID,
		&intent.OrderID,
		&intent.Amount,
		&intent.Currency,
		&intent.Provider,
		&intent.ClientToken,
		&intent.Status,
		&intent.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "payment intent", ID: id}
	}
	if err != nil {
		r.logger.Error("Failed to get payment intent", zap.String("intent_id", id), zap.Error(err))
		return nil, err
	}
	return &intent, nil
}

func (r *paymentIntentRepository) UpdateStatus(ctx context.Context, id string, from, to domain.PaymentIntentStatus) error {
	if !from.CanTransitionTo(to) {
		return &errors.ErrInvalidStateTransition{Entity: "payment intent", From: string(from), To: string(to)}
	}

	query := `
		UPDATE payment_intents
		SET status = $3
		WHERE id = $1 AND status = $2
	`

	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		r.logger.Error("Failed to update payment intent", zap.String("intent_id", id), zap.Error(err))
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return &errors.ErrInvalidStateTransition{Entity: "payment intent", From: string(current.Status), To: string(to)}
}

func (r *paymentIntentRepository) CancelOpen(ctx context.Context, orderID string) (int, error) {
	query := `
		UPDATE payment_intents
		SET status = $3
		WHERE order_id = $1 AND status = $2
	`

	res, err := r.db.ExecContext(ctx, query, orderID, domain.PaymentIntentRequiresConfirmation, domain.PaymentIntentCanceled)
	if err != nil {
		r.logger.Error("Failed to cancel open payment intents", zap.String("order_id", orderID), zap.Error(err))
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

const orderColumns = `id, order_number, status, items, totals, customer, shipping_address, notes, payment_method, created_at`

type orderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB, logger *zap.Logger) *orderRepository {
	return &orderRepository{
		db:     db,
		logger: logger,
	}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, COALESCE(NULLIF($2, ''), lpad(nextval('order_number_seq')::text, 6, '0')), $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING order_number
	`

	if order.OrderID == "" {
		order.OrderID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	items, totals, customer, address, err := encodeOrder(order)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx, query,
		order.OrderID,
		order.OrderNumber,
		order.Status,
		items,
		totals,
		customer,
		address,
		order.Notes,
		order.PaymentMethod,
		order.CreatedAt,
	).Scan(&order.OrderNumber)
	if err != nil {
		r.logger.Error("Failed to create order", zap.String("order_id", order.OrderID), zap.Error(err))
		return err
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &errors.ErrNotFound{Resource: "order", ID: id}
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "order", ID: id}
	}
	if err != nil {
		r.logger.Error("Failed to get order", zap.String("order_id", id), zap.Error(err))
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return &errors.ErrInvalidStateTransition{Entity: "order", From: string(from), To: string(to)}
	}

	query := `
		UPDATE orders
		SET status = $3
		WHERE id = $1 AND status = $2
	`

	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		r.logger.Error("Failed to update order status", zap.String("order_id", id), zap.Error(err))
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
	return &errors.ErrInvalidStateTransition{Entity: "order", From: string(current.Status), To: string(to)}
}

func (r *orderRepository) List(ctx context.Context, status *domain.OrderStatus) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var items, totals, customer, address []byte
	var notes sql.NullString

	err := row.Scan(
		&order.OrderID,
		&order.OrderNumber,
		&order.Status,
		&items,
		&totals,
		&customer,
		&address,
		&notes,
		&order.PaymentMethod,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, field := range []struct {
		raw  []byte
		dest interface{}
	}{
		{items, &order.Items},
		{totals, &order.Totals},
		{customer, &order.Customer},
		{address, &order.ShippingAddress},
	} {
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return nil, fmt.Errorf("failed to decode order %s: %w", order.OrderID, err)
		}
	}
	order.Notes = notes.String
	return &order, nil
}

func encodeOrder(order *domain.Order) (items, totals, customer, address []byte, err error) {
	if items, err = json.Marshal(order.Items); err != nil {
		return
	}
	if totals, err = json.Marshal(order.Totals); err != nil {
		return
	}
	if customer, err = json.Marshal(order.Customer); err != nil {
		return
	}
	address, err = json.Marshal(order.ShippingAddress)
	return
}

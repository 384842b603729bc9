package checkout

import (
	"context"

	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

// OrderAPI is the order half of the remote commerce API
type OrderAPI interface {
	CreateOrder(ctx context.Context, payload domain.CreateOrderRequest, key string) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
}

// NextStep is what the checkout does with a freshly created order
type NextStep int

const (
	StepNotActionable NextStep = iota
	StepComplete
	StepPayment
)

// NextStepFor maps an order status to the next checkout step
func NextStepFor(order *domain.Order) NextStep {
	switch order.Status {
	case domain.OrderStatusConfirmed:
		return StepComplete
	case domain.OrderStatusPendingPayment:
		return StepPayment
	default:
		return StepNotActionable
	}
}

// Submitter performs idempotent order creation
type Submitter struct {
	orders OrderAPI
	logger *zap.Logger
}

func NewSubmitter(orders OrderAPI, logger *zap.Logger) *Submitter {
	return &Submitter{
		orders: orders,
		logger: logger,
	}
}

// CreateOrder submits payload under key. Retrying with the same key returns
// the order created by the first successful attempt.
func (s *Submitter) CreateOrder(ctx context.Context, payload domain.CreateOrderRequest, key string) (*domain.Order, error) {
	order, err := s.orders.CreateOrder(ctx, payload, key)
	if err != nil {
		return nil, err
	}
	if err := domain.ObserveOrderStatus("", order.Status); err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.OrderID),
		zap.String("order_number", order.OrderNumber),
		zap.String("status", string(order.Status)),
		zap.String("idempotency_key", key),
	)
	return order, nil
}

// Refresh refetches an order and checks the observed status against the known one
func (s *Submitter) Refresh(ctx context.Context, known *domain.Order) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, known.OrderID)
	if err != nil {
		return nil, err
	}
	if err := domain.ObserveOrderStatus(known.Status, order.Status); err != nil {
		s.logger.Error("Order moved outside its lifecycle",
			zap.String("order_id", known.OrderID),
			zap.Error(err),
		)
		return nil, err
	}
	return order, nil
}

// Lookup fetches an order the client has no prior status for
func (s *Submitter) Lookup(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, &errors.ValidationError{Message: "order id is required"}
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := domain.ObserveOrderStatus("", order.Status); err != nil {
		return nil, err
	}
	return order, nil
}

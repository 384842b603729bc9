package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/repository"
	"github.com/corekit/storefront/pkg/errors"
)

type OrderService struct {
	repos      *repository.Repositories
	pricing    *PricingService
	holdOrders bool
	logger     *zap.Logger

	// mu makes key lookup, stock reservation and order creation one step
	mu sync.Mutex
}

// NewOrderService creates a new order service
func NewOrderService(repos *repository.Repositories, pricing *PricingService, holdOrders bool, logger *zap.Logger) *OrderService {
	return &OrderService{
		repos:      repos,
		pricing:    pricing,
		holdOrders: holdOrders,
		logger:     logger,
	}
}

// CreateOrder creates an order once per idempotency key. A repeated key with
// the same request returns the original order and replayed=true.
func (s *OrderService) CreateOrder(ctx context.Context, key string, req domain.CreateOrderRequest) (order *domain.Order, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, &errors.ValidationError{Message: "Idempotency-Key header is required"}
	}
	if !req.PaymentMethod.IsValid() {
		return nil, false, &errors.ValidationError{Message: fmt.Sprintf("unsupported payment method %q", req.PaymentMethod)}
	}
	hash, err := req.ContentHash()
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.replay(ctx, key, hash); err != nil || existing != nil {
		return existing, existing != nil, err
	}

	quote, err := s.pricing.Quote(ctx, req.Items)
	if err != nil {
		return nil, false, err
	}
	if shortages := quote.Shortages(); len(shortages) > 0 {
		return nil, false, &errors.ConflictError{Message: fmt.Sprintf("insufficient stock for %s", shortages[0].Name)}
	}
	if req.ExpectedTotal != nil && !req.ExpectedTotal.Equal(quote.Totals.GrandTotal) {
		return nil, false, &errors.ConflictError{
			Message: fmt.Sprintf("order total changed from %s to %s", req.ExpectedTotal.String(), quote.Totals.GrandTotal.String()),
		}
	}

	deltas := make(map[string]int, len(quote.Items))
	for _, item := range quote.Items {
		deltas[item.ProductID] = -item.Quantity
	}
	if err := s.repos.Product.AdjustStock(ctx, deltas); err != nil {
		return nil, false, err
	}

	order = &domain.Order{
		Status:          s.initialStatus(req.PaymentMethod),
		Items:           make([]domain.OrderItem, 0, len(quote.Items)),
		Totals:          quote.Totals,
		Customer:        req.Customer,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		PaymentMethod:   req.PaymentMethod,
	}
	for _, item := range quote.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal,
		})
	}

	if err := s.repos.Order.Create(ctx, order); err != nil {
		s.releaseStock(ctx, order)
		return nil, false, err
	}

	record := &domain.IdempotencyRecord{Key: key, RequestHash: hash, OrderID: order.OrderID}
	if err := s.repos.Idempotency.Create(ctx, record); err != nil {
		// Another instance recorded the key first; its order wins.
		if stderrors.Is(err, repository.ErrDuplicateKey) {
			s.abandon(ctx, order)
			existing, replayErr := s.replay(ctx, key, hash)
			return existing, existing != nil, replayErr
		}
		return nil, false, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.OrderID),
		zap.String("order_number", order.OrderNumber),
		zap.String("status", string(order.Status)),
		zap.String("grand_total", order.Totals.GrandTotal.String()),
	)
	return order, false, nil
}

func (s *OrderService) initialStatus(method domain.PaymentMethodType) domain.OrderStatus {
	if method == domain.PaymentMethodCard {
		return domain.OrderStatusPendingPayment
	}
	if s.holdOrders {
		return domain.OrderStatusPending
	}
	return domain.OrderStatusConfirmed
}

// replay returns the order bound to key, nil when the key is new
func (s *OrderService) replay(ctx context.Context, key, hash string) (*domain.Order, error) {
	record, err := s.repos.Idempotency.Get(ctx, key)
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if record.RequestHash != hash {
		return nil, &errors.ValidationError{Message: "Idempotency-Key was already used with a different request"}
	}

	s.logger.Info("Replaying order for idempotency key", zap.String("order_id", record.OrderID))
	return s.repos.Order.GetByID(ctx, record.OrderID)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repos.Order.GetByID(ctx, orderID)
}

func (s *OrderService) ListOrders(ctx context.Context, status *domain.OrderStatus) ([]*domain.Order, error) {
	return s.repos.Order.List(ctx, status)
}

// ConfirmOrder confirms a held or unpaid order
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.repos.Order.UpdateStatus(ctx, orderID, order.Status, domain.OrderStatusConfirmed); err != nil {
		return nil, err
	}
	if _, err := s.repos.PaymentIntent.CancelOpen(ctx, orderID); err != nil {
		s.logger.Warn("Failed to cancel open payment intents", zap.String("order_id", orderID), zap.Error(err))
	}

	s.logger.Info("Order confirmed by admin",
		zap.String("order_id", orderID),
		zap.String("from", string(order.Status)),
	)
	order.Status = domain.OrderStatusConfirmed
	return order, nil
}

// CancelOrder cancels an order that is not yet confirmed and returns its stock
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.repos.Order.UpdateStatus(ctx, orderID, order.Status, domain.OrderStatusCancelled); err != nil {
		return nil, err
	}
	if _, err := s.repos.PaymentIntent.CancelOpen(ctx, orderID); err != nil {
		s.logger.Warn("Failed to cancel open payment intents", zap.String("order_id", orderID), zap.Error(err))
	}
	s.releaseStock(ctx, order)

	s.logger.Info("Order cancelled",
		zap.String("order_id", orderID),
		zap.String("from", string(order.Status)),
		zap.String("reason", reason),
	)
	order.Status = domain.OrderStatusCancelled
	return order, nil
}

func (s *OrderService) abandon(ctx context.Context, order *domain.Order) {
	if err := s.repos.Order.UpdateStatus(ctx, order.OrderID, order.Status, domain.OrderStatusCancelled); err != nil {
		s.logger.Error("Failed to cancel duplicate order", zap.String("order_id", order.OrderID), zap.Error(err))
		return
	}
	s.releaseStock(ctx, order)
}

func (s *OrderService) releaseStock(ctx context.Context, order *domain.Order) {
	deltas := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		deltas[item.ProductID] += item.Quantity
	}
	if err := s.repos.Product.AdjustStock(ctx, deltas); err != nil {
		s.logger.Error("Failed to release stock", zap.String("order_id", order.OrderID), zap.Error(err))
	}
}

package service

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/config"
	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/repository"
	"github.com/corekit/storefront/pkg/errors"
)

const (
	// SandboxProvider names the simulated payment provider
	SandboxProvider = "sandbox"
	// DeclineReason is the provider message for a declined test card
	DeclineReason = "Your card was declined."
)

var cardDigits = regexp.MustCompile(`^\d{12,19}$`)

type PaymentService struct {
	repos    *repository.Repositories
	currency string
	declines map[string]bool
	logger   *zap.Logger

	mu sync.Mutex
}

// NewPaymentService creates a new payment service
func NewPaymentService(repos *repository.Repositories, cfg *config.SandboxConfig, logger *zap.Logger) *PaymentService {
	declines := make(map[string]bool, len(cfg.DeclineCards))
	for _, card := range cfg.DeclineCards {
		declines[card] = true
	}
	return &PaymentService{
		repos:    repos,
		currency: cfg.Pricing.Currency,
		declines: declines,
		logger:   logger,
	}
}

// CreateIntent opens a payment intent for an order awaiting payment. Earlier
// intents of the order that were never confirmed are cancelled.
func (s *PaymentService) CreateIntent(ctx context.Context, orderID string) (*domain.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPendingPayment {
		return nil, &errors.PaymentSetupError{OrderID: orderID, Message: "order status is " + string(order.Status)}
	}

	if n, err := s.repos.PaymentIntent.CancelOpen(ctx, orderID); err != nil {
		return nil, err
	} else if n > 0 {
		s.logger.Info("Cancelled superseded payment intents", zap.String("order_id", orderID), zap.Int("count", n))
	}

	intent := &domain.PaymentIntent{
		OrderID:     orderID,
		Amount:      order.Totals.GrandTotal,
		Currency:    s.currency,
		Provider:    SandboxProvider,
		ClientToken: "secret_" + uuid.NewString(),
		Status:      domain.PaymentIntentRequiresConfirmation,
	}
	if err := s.repos.PaymentIntent.Create(ctx, intent); err != nil {
		return nil, err
	}

	s.logger.Info("Payment intent created",
		zap.String("intent_id", intent.ID),
		zap.String("order_id", orderID),
		zap.String("amount", intent.Amount.String()),
	)
	return intent, nil
}

// Confirm charges the intent. Cards on the decline list fail the intent.
func (s *PaymentService) Confirm(ctx context.Context, req domain.ConfirmPaymentRequest) (*domain.PaymentResult, error) {
	number := strings.ReplaceAll(req.PaymentMethod.CardNumber, " ", "")
	if !cardDigits.MatchString(number) {
		return nil, &errors.ValidationError{Message: "invalid card number"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	intent, err := s.repos.PaymentIntent.GetByID(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != domain.PaymentIntentRequiresConfirmation {
		return nil, &errors.PaymentSetupError{OrderID: intent.OrderID, Message: "payment intent is " + string(intent.Status)}
	}

	order, err := s.repos.Order.GetByID(ctx, intent.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPendingPayment {
		if err := s.repos.PaymentIntent.UpdateStatus(ctx, intent.ID, intent.Status, domain.PaymentIntentCanceled); err != nil {
			s.logger.Warn("Failed to cancel intent of settled order", zap.String("intent_id", intent.ID), zap.Error(err))
		}
		return nil, &errors.PaymentSetupError{OrderID: order.OrderID, Message: "order status is " + string(order.Status)}
	}

	if s.declines[number] {
		if err := s.repos.PaymentIntent.UpdateStatus(ctx, intent.ID, intent.Status, domain.PaymentIntentFailed); err != nil {
			return nil, err
		}
		s.logger.Info("Payment declined", zap.String("intent_id", intent.ID), zap.String("order_id", order.OrderID))
		return nil, &errors.PaymentDeclinedError{IntentID: intent.ID, Reason: DeclineReason}
	}

	if err := s.repos.PaymentIntent.UpdateStatus(ctx, intent.ID, intent.Status, domain.PaymentIntentSucceeded); err != nil {
		return nil, err
	}
	if err := s.repos.Order.UpdateStatus(ctx, order.OrderID, order.Status, domain.OrderStatusConfirmed); err != nil {
		return nil, err
	}

	intent.Status = domain.PaymentIntentSucceeded
	order.Status = domain.OrderStatusConfirmed
	s.logger.Info("Payment succeeded",
		zap.String("intent_id", intent.ID),
		zap.String("order_id", order.OrderID),
	)
	return &domain.PaymentResult{Intent: *intent, Order: *order}, nil
}

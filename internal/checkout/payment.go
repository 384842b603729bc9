package checkout

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

// PaymentAPI is the payment half of the remote commerce API
type PaymentAPI interface {
	CreatePaymentIntent(ctx context.Context, orderID string) (*domain.PaymentIntent, error)
	ConfirmPayment(ctx context.Context, req domain.ConfirmPaymentRequest) (*domain.PaymentResult, error)
}

// PaymentState is the client-side view of the payment step
type PaymentState string

const (
	PaymentNoIntent      PaymentState = "NoIntent"
	PaymentIntentCreated PaymentState = "IntentCreated"
	PaymentConfirming    PaymentState = "Confirming"
	PaymentSucceeded     PaymentState = "Succeeded"
	PaymentFailed        PaymentState = "Failed"
	PaymentUserCancelled PaymentState = "UserCancelled"
)

// PaymentOutcomeKind classifies how a payment attempt ended
type PaymentOutcomeKind string

const (
	PaymentOutcomeSucceeded PaymentOutcomeKind = "Succeeded"
	PaymentOutcomeDeclined  PaymentOutcomeKind = "Declined"
	PaymentOutcomeCancelled PaymentOutcomeKind = "Cancelled"
)

// PaymentOutcome is the result of one payment attempt
type PaymentOutcome struct {
	Kind   PaymentOutcomeKind
	Intent *domain.PaymentIntent
	Order  *domain.Order
	// Reason is the user-visible decline message.
	Reason string
}

// PaymentCoordinator drives one order through intent creation and
// confirmation. An intent that failed or was abandoned is never reused.
type PaymentCoordinator struct {
	api    PaymentAPI
	logger *zap.Logger

	mu         sync.Mutex
	state      PaymentState
	intent     *domain.PaymentIntent
	generation uint64
}

func NewPaymentCoordinator(api PaymentAPI, logger *zap.Logger) *PaymentCoordinator {
	return &PaymentCoordinator{
		api:    api,
		logger: logger,
		state:  PaymentNoIntent,
	}
}

func (p *PaymentCoordinator) State() PaymentState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Intent returns a copy of the live intent, if any
func (p *PaymentCoordinator) Intent() *domain.PaymentIntent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.intent == nil {
		return nil
	}
	intent := *p.intent
	return &intent
}

// CreateIntent opens a payment intent for order. A live intent for the same
// order is returned as is, so retries after a transient failure reuse it.
func (p *PaymentCoordinator) CreateIntent(ctx context.Context, order *domain.Order) (*domain.PaymentIntent, error) {
	if order.Status != domain.OrderStatusPendingPayment {
		return nil, &errors.PaymentSetupError{OrderID: order.OrderID, Message: "order status is " + string(order.Status)}
	}

	p.mu.Lock()
	switch p.state {
	case PaymentConfirming:
		p.mu.Unlock()
		return nil, &errors.ErrBusy{Action: "payment confirmation"}
	case PaymentSucceeded:
		p.mu.Unlock()
		return nil, &errors.ErrInvalidStateTransition{Entity: "payment", From: string(PaymentSucceeded), To: string(PaymentIntentCreated)}
	case PaymentIntentCreated:
		if p.intent != nil && p.intent.OrderID == order.OrderID {
			intent := *p.intent
			p.mu.Unlock()
			return &intent, nil
		}
	}
	gen := p.generation
	p.mu.Unlock()

	intent, err := p.api.CreatePaymentIntent(ctx, order.OrderID)
	if err != nil {
		return nil, err
	}
	if intent.OrderID != "" && intent.OrderID != order.OrderID {
		return nil, &errors.PaymentSetupError{OrderID: order.OrderID, Message: "intent belongs to order " + intent.OrderID}
	}
	if intent.Status != domain.PaymentIntentRequiresConfirmation {
		return nil, &errors.ErrInvalidStateTransition{Entity: "payment intent", From: "", To: string(intent.Status)}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return nil, &errors.ErrStaleAttempt{Attempt: "payment intent " + intent.ID}
	}
	p.state = PaymentIntentCreated
	p.intent = intent

	p.logger.Info("Payment intent created",
		zap.String("order_id", order.OrderID),
		zap.String("intent_id", intent.ID),
		zap.String("amount", intent.Amount.String()),
		zap.String("currency", intent.Currency),
	)
	copied := *intent
	return &copied, nil
}

// Confirm submits card against the live intent. A decline returns a Declined
// outcome together with the PaymentDeclinedError; the intent is dropped and a
// new one is needed for the next attempt.
func (p *PaymentCoordinator) Confirm(ctx context.Context, card domain.CardDetails) (*PaymentOutcome, error) {
	p.mu.Lock()
	switch p.state {
	case PaymentConfirming:
		p.mu.Unlock()
		return nil, &errors.ErrBusy{Action: "payment confirmation"}
	case PaymentIntentCreated:
	default:
		from := p.state
		p.mu.Unlock()
		return nil, &errors.ErrInvalidStateTransition{Entity: "payment", From: string(from), To: string(PaymentConfirming)}
	}
	intent := *p.intent
	p.state = PaymentConfirming
	gen := p.generation
	p.mu.Unlock()

	result, err := p.api.ConfirmPayment(ctx, domain.ConfirmPaymentRequest{
		PaymentIntentID: intent.ID,
		PaymentMethod:   wireCard(card),
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		p.logger.Info("Discarding payment result for abandoned intent", zap.String("intent_id", intent.ID))
		return nil, &errors.ErrStaleAttempt{Attempt: "payment intent " + intent.ID}
	}

	if err != nil {
		declined, isDeclined := errors.AsPaymentDeclined(err)
		switch {
		case isDeclined:
			p.state = PaymentFailed
			p.intent = nil
			p.logger.Info("Payment declined", zap.String("intent_id", intent.ID), zap.String("reason", declined.Reason))
			return &PaymentOutcome{Kind: PaymentOutcomeDeclined, Intent: &intent, Reason: declined.UserMessage()}, err
		case errors.IsPaymentSetup(err):
			p.state = PaymentFailed
			p.intent = nil
		default:
			// Transient failures and rejected card details keep the intent.
			p.state = PaymentIntentCreated
		}
		return nil, err
	}

	if err := p.checkResult(intent, result); err != nil {
		p.state = PaymentFailed
		p.intent = nil
		return nil, err
	}

	p.state = PaymentSucceeded
	p.intent = &result.Intent
	order := result.Order
	confirmed := result.Intent
	p.logger.Info("Payment succeeded",
		zap.String("intent_id", intent.ID),
		zap.String("order_id", order.OrderID),
	)
	return &PaymentOutcome{Kind: PaymentOutcomeSucceeded, Intent: &confirmed, Order: &order}, nil
}

func (p *PaymentCoordinator) checkResult(sent domain.PaymentIntent, result *domain.PaymentResult) error {
	if err := domain.ObservePaymentIntentStatus(sent.Status, result.Intent.Status); err != nil {
		return err
	}
	if result.Intent.Status != domain.PaymentIntentSucceeded {
		return &errors.ErrInvalidStateTransition{Entity: "payment intent", From: string(sent.Status), To: string(result.Intent.Status)}
	}
	if err := domain.ObserveOrderStatus(domain.OrderStatusPendingPayment, result.Order.Status); err != nil {
		return err
	}
	if result.Order.Status != domain.OrderStatusConfirmed {
		return &errors.ErrInvalidStateTransition{Entity: "order", From: string(domain.OrderStatusPendingPayment), To: string(result.Order.Status)}
	}
	return nil
}

// Cancel abandons the current attempt. A result still in flight is discarded.
func (p *PaymentCoordinator) Cancel() *PaymentOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	var intent *domain.PaymentIntent
	if p.intent != nil {
		copied := *p.intent
		intent = &copied
	}
	if p.state == PaymentSucceeded {
		return &PaymentOutcome{Kind: PaymentOutcomeSucceeded, Intent: intent}
	}
	p.state = PaymentUserCancelled
	p.intent = nil
	p.generation++
	p.logger.Info("Payment cancelled by user", zap.Uint64("generation", p.generation))
	return &PaymentOutcome{Kind: PaymentOutcomeCancelled, Intent: intent}
}

// Reset forgets any intent, used when the checkout moves to a different order
func (p *PaymentCoordinator) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PaymentNoIntent
	p.intent = nil
	p.generation++
}

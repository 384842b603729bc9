package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/cart"
	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/idempotency"
	"github.com/corekit/storefront/internal/metrics"
	"github.com/corekit/storefront/pkg/errors"
)

// Orchestrator sequences one checkout session: validate, submit, optionally
// pay, then clear the cart. Only one action runs at a time; a response that
// arrives after Reset or a payment cancellation is discarded.
type Orchestrator struct {
	cart      *cart.Store
	keys      *idempotency.KeyManager
	validator *Validator
	submitter *Submitter
	payments  *PaymentCoordinator
	logger    *zap.Logger
	metrics   *metrics.CheckoutMetrics
	now       func() time.Time

	mu         sync.Mutex
	state      State
	validation *domain.CartValidationResult
	order      *domain.Order
	busy       map[action]uint64
	seq        uint64
	generation uint64
	// unsettled fingerprints an order payload whose submission outcome is unknown.
	unsettled string
	completed string
}

type Option func(*Orchestrator)

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the clock used for card expiry checks
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(
	cartStore *cart.Store,
	keys *idempotency.KeyManager,
	validator *Validator,
	submitter *Submitter,
	payments *PaymentCoordinator,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cart:      cartStore,
		keys:      keys,
		validator: validator,
		submitter: submitter,
		payments:  payments,
		logger:    logger,
		now:       time.Now,
		state:     StateIdle,
		busy:      make(map[action]uint64),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type ticket struct {
	action     action
	seq        uint64
	generation uint64
}

func (o *Orchestrator) begin(a action, allowed ...State) (ticket, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for outstanding := range o.busy {
		return ticket{}, &errors.ErrBusy{Action: string(outstanding)}
	}
	permitted := false
	for _, s := range allowed {
		if o.state == s {
			permitted = true
			break
		}
	}
	if !permitted {
		return ticket{}, &errors.ErrInvalidStateTransition{Entity: "checkout", From: string(o.state), To: string(a)}
	}

	o.seq++
	o.busy[a] = o.seq
	return ticket{action: a, seq: o.seq, generation: o.generation}, nil
}

func (o *Orchestrator) end(t ticket) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy[t.action] == t.seq {
		delete(o.busy, t.action)
	}
}

// current reports whether t still owns the session. Callers hold o.mu.
func (o *Orchestrator) current(t ticket) bool {
	return t.generation == o.generation && o.busy[t.action] == t.seq
}

func (o *Orchestrator) stale(t ticket) error {
	o.logger.Info("Discarding response for superseded checkout attempt",
		zap.String("action", string(t.action)),
		zap.Uint64("attempt", t.seq),
	)
	return &errors.ErrStaleAttempt{Attempt: fmt.Sprintf("%s#%d", t.action, t.seq)}
}

func (o *Orchestrator) transition(to State) {
	from := o.state
	if from == to {
		return
	}
	o.state = to
	o.metrics.ObserveTransition(string(from), string(to))
	o.logger.Debug("Checkout state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

func (o *Orchestrator) outcomeLocked() *Outcome {
	out := &Outcome{
		State:      o.state,
		Validation: o.validation,
	}
	if o.validation != nil && len(o.validation.Warnings) > 0 {
		out.Warnings = append([]string(nil), o.validation.Warnings...)
	}
	if o.order != nil {
		order := *o.order
		out.Order = &order
	}
	return out
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Validation() *domain.CartValidationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.validation
}

func (o *Orchestrator) Order() *domain.Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.order == nil {
		return nil
	}
	order := *o.order
	return &order
}

// Enter validates the current cart against the server. An empty cart yields a
// catalog redirect and no server call.
func (o *Orchestrator) Enter(ctx context.Context) (*Outcome, error) {
	t, err := o.begin(actionEnter, StateIdle, StateReadyToSubmit, StateConflict, StateFailed, StateDone)
	if err != nil {
		return nil, err
	}
	defer o.end(t)

	lines := o.cart.Snapshot()

	o.mu.Lock()
	o.order = nil
	if len(lines) == 0 {
		defer o.mu.Unlock()
		o.validation = nil
		o.transition(StateIdle)
		out := o.outcomeLocked()
		out.Redirect = RedirectCatalog
		return out, nil
	}
	o.transition(StateValidating)
	o.mu.Unlock()

	result, err := o.validator.Validate(ctx, domain.ItemRequests(lines))

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(t) {
		return nil, o.stale(t)
	}

	if err != nil {
		o.validation = nil
		if errors.IsUnauthorized(err) {
			o.transition(StateIdle)
			out := o.outcomeLocked()
			out.Redirect = RedirectLogin
			out.Message = MessageSessionExpired
			return out, err
		}
		o.logger.Warn("Cart validation failed", zap.Error(err))
		if errors.IsTransient(err) || ctx.Err() != nil {
			// retryable: entering again revalidates
			o.transition(StateIdle)
			out := o.outcomeLocked()
			out.Message = MessageTransient
			return out, err
		}
		o.transition(StateFailed)
		out := o.outcomeLocked()
		out.Message = MessageValidationFailed
		return out, err
	}

	o.validation = result
	o.transition(StateReadyToSubmit)
	return o.outcomeLocked(), nil
}

// Submit re-validates the cart and creates the order under the session's
// idempotency key. Retries reuse the key so the server never creates a second
// order for the same attempt.
func (o *Orchestrator) Submit(ctx context.Context, form OrderForm) (*Outcome, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	t, err := o.begin(actionSubmit, StateReadyToSubmit, StateConflict, StateFailed)
	if err != nil {
		return nil, err
	}
	defer o.end(t)

	lines := o.cart.Snapshot()

	o.mu.Lock()
	if len(lines) == 0 {
		defer o.mu.Unlock()
		o.validation = nil
		o.transition(StateIdle)
		out := o.outcomeLocked()
		out.Redirect = RedirectCatalog
		return out, nil
	}
	o.transition(StateSubmitting)
	o.mu.Unlock()

	items := domain.ItemRequests(lines)
	validation, err := o.validator.Validate(ctx, items)
	if err != nil {
		return o.submitFailed(ctx, t, err, "")
	}

	payload := form.request(items, validation.Totals.GrandTotal)
	fingerprint, err := payload.ContentHash()
	if err != nil {
		return o.submitFailed(ctx, t, err, "")
	}

	o.mu.Lock()
	if !o.current(t) {
		o.mu.Unlock()
		return nil, o.stale(t)
	}
	o.validation = validation
	rotate := o.unsettled != "" && o.unsettled != fingerprint
	o.mu.Unlock()

	if rotate {
		o.logger.Info("Order content changed after an unsettled submission, minting a new idempotency key")
		o.keys.Clear(ctx)
	}
	key := o.keys.GetOrCreateKey(ctx)

	order, err := o.submitter.CreateOrder(ctx, payload, key)
	if err != nil {
		return o.submitFailed(ctx, t, err, fingerprint)
	}

	o.mu.Lock()
	if !o.current(t) {
		o.mu.Unlock()
		return nil, o.stale(t)
	}
	o.unsettled = ""
	out, cleanup := o.settleLocked(order)
	o.mu.Unlock()

	cleanup(ctx)
	return out, nil
}

// submitFailed classifies a failed submission. fingerprint is empty when no
// create request was sent.
func (o *Orchestrator) submitFailed(ctx context.Context, t ticket, cause error, fingerprint string) (*Outcome, error) {
	o.mu.Lock()
	if !o.current(t) {
		o.mu.Unlock()
		return nil, o.stale(t)
	}

	var out *Outcome
	switch {
	case errors.IsConflict(cause):
		// A conflict binds no order to the key, so the same key is retried.
		o.unsettled = ""
		o.transition(StateConflict)
		o.mu.Unlock()
		return o.revalidate(ctx, t, cause)
	case errors.IsTransient(cause) || ctx.Err() != nil:
		if fingerprint != "" {
			o.unsettled = fingerprint
		}
		o.transition(StateReadyToSubmit)
		out = o.outcomeLocked()
		out.Message = MessageTransient
	case errors.IsUnauthorized(cause):
		o.transition(StateReadyToSubmit)
		out = o.outcomeLocked()
		out.Redirect = RedirectLogin
		out.Message = MessageSessionExpired
	default:
		o.transition(StateFailed)
		out = o.outcomeLocked()
		out.Message = fmt.Sprintf("We could not place your order: %v", cause)
	}
	o.mu.Unlock()

	o.logger.Warn("Order submission failed",
		zap.String("state", string(out.State)),
		zap.Error(cause),
	)
	return out, cause
}

func (o *Orchestrator) revalidate(ctx context.Context, t ticket, cause error) (*Outcome, error) {
	result, err := o.validator.Validate(ctx, domain.ItemRequests(o.cart.Snapshot()))

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(t) {
		return nil, o.stale(t)
	}
	if err != nil {
		o.logger.Warn("Re-validation after conflict failed", zap.Error(err))
	} else {
		o.validation = result
		o.transition(StateReadyToSubmit)
	}
	out := o.outcomeLocked()
	out.Message = MessageConflict
	return out, cause
}

// Pay creates or reuses a payment intent for the pending order and confirms it
// with card.
func (o *Orchestrator) Pay(ctx context.Context, card domain.CardDetails) (*Outcome, error) {
	if err := ValidateCard(card, o.now()); err != nil {
		return nil, err
	}

	t, err := o.begin(actionPay, StateAwaitingPayment)
	if err != nil {
		return nil, err
	}
	defer o.end(t)

	o.mu.Lock()
	order := *o.order
	o.transition(StateConfirming)
	o.mu.Unlock()

	if _, err := o.payments.CreateIntent(ctx, &order); err != nil {
		return o.paymentFailed(ctx, t, err, nil)
	}
	result, err := o.payments.Confirm(ctx, card)
	if err != nil {
		return o.paymentFailed(ctx, t, err, result)
	}

	o.mu.Lock()
	if !o.current(t) {
		o.mu.Unlock()
		return nil, o.stale(t)
	}
	out, cleanup := o.settleLocked(result.Order)
	out.Payment = result
	o.mu.Unlock()

	cleanup(ctx)
	return out, nil
}

func (o *Orchestrator) paymentFailed(ctx context.Context, t ticket, cause error, payment *PaymentOutcome) (*Outcome, error) {
	o.mu.Lock()
	if !o.current(t) || errors.IsStale(cause) {
		o.mu.Unlock()
		return nil, o.stale(t)
	}

	var out *Outcome
	switch {
	case errors.IsPaymentDeclined(cause):
		o.transition(StateAwaitingPayment)
		out = o.outcomeLocked()
		out.Payment = payment
		if payment != nil {
			out.Message = payment.Reason
		}
	case errors.IsPaymentSetup(cause):
		o.mu.Unlock()
		return o.reconcile(ctx, t, cause)
	case errors.IsTransient(cause) || ctx.Err() != nil:
		o.transition(StateAwaitingPayment)
		out = o.outcomeLocked()
		out.Message = MessageTransient
	case errors.IsUnauthorized(cause):
		o.transition(StateAwaitingPayment)
		out = o.outcomeLocked()
		out.Redirect = RedirectLogin
		out.Message = MessageSessionExpired
	case errors.IsValidation(cause):
		o.transition(StateAwaitingPayment)
		out = o.outcomeLocked()
		out.Message = fmt.Sprintf("Your payment details were rejected: %v", cause)
	default:
		o.transition(StateFailed)
		out = o.outcomeLocked()
		out.Message = fmt.Sprintf("Payment could not be completed: %v", cause)
	}
	o.mu.Unlock()

	o.logger.Warn("Payment attempt failed",
		zap.String("state", string(out.State)),
		zap.Error(cause),
	)
	return out, cause
}

// reconcile reloads the order after the server refused to set up payment
func (o *Orchestrator) reconcile(ctx context.Context, t ticket, cause error) (*Outcome, error) {
	o.mu.Lock()
	known := *o.order
	o.mu.Unlock()

	fresh, err := o.submitter.Refresh(ctx, &known)

	o.mu.Lock()
	if !o.current(t) {
		o.mu.Unlock()
		return nil, o.stale(t)
	}
	if err != nil {
		var out *Outcome
		if errors.IsInvalidStateTransition(err) {
			o.transition(StateFailed)
			out = o.outcomeLocked()
			out.Message = fmt.Sprintf("Payment could not be completed: %v", err)
		} else {
			o.transition(StateAwaitingPayment)
			out = o.outcomeLocked()
			out.Message = MessageTransient
		}
		o.mu.Unlock()
		return out, cause
	}

	out, cleanup := o.settleLocked(fresh)
	o.mu.Unlock()
	cleanup(ctx)

	o.logger.Info("Order reloaded after payment setup failure",
		zap.String("order_id", fresh.OrderID),
		zap.String("status", string(fresh.Status)),
	)
	if fresh.Status == domain.OrderStatusPendingPayment {
		out.Message = "Payment could not be started. Please try again."
		return out, cause
	}
	return out, nil
}

// Resume restores a checkout for an existing order, e.g. after a reload
// during the payment step.
func (o *Orchestrator) Resume(ctx context.Context, orderID string) (*Outcome, error) {
	t, err := o.begin(actionResume, StateIdle, StateReadyToSubmit, StateFailed, StateAwaitingPayment, StateDone)
	if err != nil {
		return nil, err
	}
	defer o.end(t)

	order, err := o.submitter.Lookup(ctx, orderID)

	o.mu.Lock()
	if !o.current(t) {
		o.mu.Unlock()
		return nil, o.stale(t)
	}
	if err != nil {
		out := o.outcomeLocked()
		if errors.IsUnauthorized(err) {
			out.Redirect = RedirectLogin
			out.Message = MessageSessionExpired
		}
		o.mu.Unlock()
		return out, err
	}
	out, cleanup := o.settleLocked(order)
	o.mu.Unlock()

	cleanup(ctx)
	return out, nil
}

// CancelPayment abandons the payment step. The pending order stays payable
// and any confirmation still in flight is ignored.
func (o *Orchestrator) CancelPayment() (*Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateAwaitingPayment && o.state != StateConfirming {
		return nil, &errors.ErrInvalidStateTransition{Entity: "checkout", From: string(o.state), To: "cancel payment"}
	}
	payment := o.payments.Cancel()
	delete(o.busy, actionPay)
	o.transition(StateAwaitingPayment)

	out := o.outcomeLocked()
	out.Payment = payment
	out.Message = MessagePaymentCancelled
	return out, nil
}

// Reset returns the session to Idle and discards responses still in flight.
// The idempotency key survives, so resubmitting the same order replays it.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.generation++
	o.busy = make(map[action]uint64)
	o.validation = nil
	o.order = nil
	o.payments.Reset()
	o.transition(StateIdle)
}

// Abandon resets the session and forgets the idempotency key
func (o *Orchestrator) Abandon(ctx context.Context) {
	o.Reset()

	o.mu.Lock()
	o.unsettled = ""
	o.mu.Unlock()

	o.keys.Clear(ctx)
}

// settleLocked moves the session to the state implied by order's status. The
// returned cleanup must run after o.mu is released.
func (o *Orchestrator) settleLocked(order *domain.Order) (*Outcome, func(context.Context)) {
	if o.order == nil || o.order.OrderID != order.OrderID {
		o.payments.Reset()
	}
	o.order = order
	cleanup := func(context.Context) {}

	var message string
	redirect := RedirectNone
	pending := false

	switch order.Status {
	case domain.OrderStatusConfirmed, domain.OrderStatusPending:
		pending = order.Status == domain.OrderStatusPending
		redirect = RedirectConfirmation
		if pending {
			message = fmt.Sprintf("Order #%s received and awaiting confirmation.", order.OrderNumber)
		} else {
			message = fmt.Sprintf("Order #%s confirmed.", order.OrderNumber)
		}
		o.transition(StateDone)
		if o.completed != order.OrderID {
			o.completed = order.OrderID
			orderID := order.OrderID
			cleanup = func(ctx context.Context) { o.finish(ctx, orderID) }
		}
	case domain.OrderStatusPendingPayment:
		o.transition(StateAwaitingPayment)
		message = fmt.Sprintf("Order #%s created. Complete the payment to confirm it.", order.OrderNumber)
	default:
		o.transition(StateFailed)
		message = MessageOrderCancelled
		cleanup = o.keys.Clear
	}

	out := o.outcomeLocked()
	out.Message = message
	out.Redirect = redirect
	out.Pending = pending
	return out, cleanup
}

func (o *Orchestrator) finish(ctx context.Context, orderID string) {
	o.cart.Clear(ctx)
	o.keys.Clear(ctx)
	o.logger.Info("Checkout completed", zap.String("order_id", orderID))
}

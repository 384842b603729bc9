package domain

import (
	"github.com/corekit/storefront/pkg/errors"
)

// OrderStatus represents the server-owned lifecycle of an order
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "Pending"
	OrderStatusPendingPayment OrderStatus = "PendingPayment"
	OrderStatusConfirmed      OrderStatus = "Confirmed"
	OrderStatusCancelled      OrderStatus = "Cancelled"
)

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending,
		OrderStatusPendingPayment,
		OrderStatusConfirmed,
		OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusCancelled
}

// CanTransitionTo checks if a status transition is valid
func (s OrderStatus) CanTransitionTo(newStatus OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusPendingPayment:
		return newStatus == OrderStatusConfirmed ||
			newStatus == OrderStatusCancelled
	case OrderStatusConfirmed, OrderStatusCancelled:
		return false // Terminal states
	default:
		return false
	}
}

// ObserveOrderStatus validates a status seen on a refetched order against the
// status previously known to the client. Seeing the same status again is not a
// transition. An empty previous status accepts any valid status.
func ObserveOrderStatus(previous, observed OrderStatus) error {
	if !observed.IsValid() {
		return &errors.ErrInvalidStateTransition{Entity: "order", From: string(previous), To: string(observed)}
	}
	if previous == "" || previous == observed {
		return nil
	}
	if !previous.CanTransitionTo(observed) {
		return &errors.ErrInvalidStateTransition{Entity: "order", From: string(previous), To: string(observed)}
	}
	return nil
}

// PaymentIntentStatus represents the status of a payment intent
type PaymentIntentStatus string

const (
	PaymentIntentRequiresConfirmation PaymentIntentStatus = "RequiresConfirmation"
	PaymentIntentSucceeded            PaymentIntentStatus = "Succeeded"
	PaymentIntentFailed               PaymentIntentStatus = "Failed"
	PaymentIntentCanceled             PaymentIntentStatus = "Canceled"
)

// IsValid checks if the payment intent status is valid
func (s PaymentIntentStatus) IsValid() bool {
	switch s {
	case PaymentIntentRequiresConfirmation,
		PaymentIntentSucceeded,
		PaymentIntentFailed,
		PaymentIntentCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the intent can never be confirmed again
func (s PaymentIntentStatus) IsTerminal() bool {
	return s == PaymentIntentSucceeded || s == PaymentIntentFailed || s == PaymentIntentCanceled
}

// CanTransitionTo checks if a status transition is valid
func (s PaymentIntentStatus) CanTransitionTo(newStatus PaymentIntentStatus) bool {
	if s != PaymentIntentRequiresConfirmation {
		return false
	}
	return newStatus.IsTerminal()
}

// ObservePaymentIntentStatus is the payment intent counterpart of ObserveOrderStatus.
func ObservePaymentIntentStatus(previous, observed PaymentIntentStatus) error {
	if !observed.IsValid() {
		return &errors.ErrInvalidStateTransition{Entity: "payment intent", From: string(previous), To: string(observed)}
	}
	if previous == "" || previous == observed {
		return nil
	}
	if !previous.CanTransitionTo(observed) {
		return &errors.ErrInvalidStateTransition{Entity: "payment intent", From: string(previous), To: string(observed)}
	}
	return nil
}

// PaymentMethodType selects how an order is paid
type PaymentMethodType string

const (
	// PaymentMethodTest confirms the order on creation, no payment step.
	PaymentMethodTest PaymentMethodType = "test"
	// PaymentMethodCard leaves the order in PendingPayment until a payment intent succeeds.
	PaymentMethodCard PaymentMethodType = "card"
)

func (m PaymentMethodType) IsValid() bool {
	return m == PaymentMethodTest || m == PaymentMethodCard
}

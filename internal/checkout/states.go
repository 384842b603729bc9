package checkout

import (
	"github.com/corekit/storefront/internal/domain"
)

// State is a checkout orchestrator state
type State string

const (
	StateIdle            State = "Idle"
	StateValidating      State = "Validating"
	StateReadyToSubmit   State = "ReadyToSubmit"
	StateSubmitting      State = "Submitting"
	StateConflict        State = "Conflict"
	StateAwaitingPayment State = "AwaitingPayment"
	StateConfirming      State = "Confirming"
	StateDone            State = "Done"
	StateFailed          State = "Failed"
)

// Redirect tells the presentation layer where to go next
type Redirect string

const (
	RedirectNone         Redirect = ""
	RedirectCatalog      Redirect = "catalog"
	RedirectLogin        Redirect = "login"
	RedirectConfirmation Redirect = "order-confirmation"
)

// User-facing messages
const (
	MessageConflict         = "Prices or stock have changed. Please review your cart before placing the order."
	MessageTransient        = "We could not reach the store. Please try again."
	MessageValidationFailed = "We could not validate your cart. Please try again."
	MessageSessionExpired   = "Your session has expired. Please sign in again."
	MessageOrderCancelled   = "This order was cancelled."
	MessagePaymentCancelled = "Payment cancelled. You can try again when ready."
)

// Outcome is the result of an orchestrator action
type Outcome struct {
	State      State
	Validation *domain.CartValidationResult
	Order      *domain.Order
	Payment    *PaymentOutcome
	Warnings   []string
	Message    string
	Redirect   Redirect
	// Pending is set when the order was accepted but is awaiting server-side confirmation.
	Pending bool
}

type action string

const (
	actionEnter  action = "enter"
	actionSubmit action = "submit"
	actionPay    action = "pay"
	actionResume action = "resume"
)

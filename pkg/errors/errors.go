// Package errors defines the typed failures shared by the storefront client,
// the checkout subsystem and the commerce API sandbox.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a resource does not exist.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ErrUnauthorized is returned when the bearer credential is missing, invalid or expired.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return "unauthorized: " + e.Message
}

// ErrInvalidStateTransition is the protocol error raised when an order or a
// payment intent is observed moving outside its status lattice.
type ErrInvalidStateTransition struct {
	Entity string
	From   string
	To     string
}

func (e *ErrInvalidStateTransition) Error() string {
	entity := e.Entity
	if entity == "" {
		entity = "state"
	}
	return fmt.Sprintf("invalid %s transition from %s to %s", entity, e.From, e.To)
}

// ValidationError reports malformed input. Not retryable without changing the input.
type ValidationError struct {
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Message, strings.Join(e.Details, "; "))
}

// ConflictError reports that server-side price or stock changed since the last
// cart validation. Retry after re-validating.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message == "" {
		return "conflict: prices or stock have changed"
	}
	return "conflict: " + e.Message
}

// TransientError wraps a network failure or a 5xx response. Retry with the
// same idempotency token or the same payment intent.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: transient failure (status %d)", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
	}
}

func (e *TransientError) Unwrap() error { return e.Err }

// DefaultDeclineMessage is shown when the provider gives no reason.
const DefaultDeclineMessage = "The payment could not be processed. Please try again."

// PaymentDeclinedError is terminal for one payment intent. The user may start a new one.
type PaymentDeclinedError struct {
	IntentID string
	Reason   string
}

func (e *PaymentDeclinedError) Error() string {
	return "payment declined: " + e.UserMessage()
}

// UserMessage returns the provider reason, or a generic message when none was given.
func (e *PaymentDeclinedError) UserMessage() string {
	if strings.TrimSpace(e.Reason) == "" {
		return DefaultDeclineMessage
	}
	return e.Reason
}

// PaymentSetupError means the order is not payable in its current state.
// The caller must reload the order before trying again.
type PaymentSetupError struct {
	OrderID string
	Message string
}

func (e *PaymentSetupError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("order %s is not payable", e.OrderID)
	}
	return fmt.Sprintf("order %s is not payable: %s", e.OrderID, e.Message)
}

// CartValidationError is returned by the checkout validator when the pricing
// authority could not produce a reconciliation. Unwrap exposes the cause.
type CartValidationError struct {
	Err error
}

func (e *CartValidationError) Error() string {
	return fmt.Sprintf("cart validation failed: %v", e.Err)
}

func (e *CartValidationError) Unwrap() error { return e.Err }

// ErrBusy is returned when an action is triggered while the same action is still outstanding.
type ErrBusy struct {
	Action string
}

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("%s already in progress", e.Action)
}

// ErrStaleAttempt is returned when a response arrives for an attempt that has since been reset.
type ErrStaleAttempt struct {
	Attempt string
}

func (e *ErrStaleAttempt) Error() string {
	return fmt.Sprintf("attempt %s was superseded, response discarded", e.Attempt)
}

func IsNotFound(err error) bool {
	var target *ErrNotFound
	return stderrors.As(err, &target)
}

func IsUnauthorized(err error) bool {
	var target *ErrUnauthorized
	return stderrors.As(err, &target)
}

func IsInvalidStateTransition(err error) bool {
	var target *ErrInvalidStateTransition
	return stderrors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return stderrors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return stderrors.As(err, &target)
}

func IsTransient(err error) bool {
	var target *TransientError
	return stderrors.As(err, &target)
}

func IsPaymentDeclined(err error) bool {
	var target *PaymentDeclinedError
	return stderrors.As(err, &target)
}

// AsPaymentDeclined extracts the decline from err's chain
func AsPaymentDeclined(err error) (*PaymentDeclinedError, bool) {
	var target *PaymentDeclinedError
	ok := stderrors.As(err, &target)
	return target, ok
}

func IsPaymentSetup(err error) bool {
	var target *PaymentSetupError
	return stderrors.As(err, &target)
}

func IsBusy(err error) bool {
	var target *ErrBusy
	return stderrors.As(err, &target)
}

func IsStale(err error) bool {
	var target *ErrStaleAttempt
	return stderrors.As(err, &target)
}

// Retryable reports whether the same action may be attempted again without
// the user changing anything but a fresh cart validation.
func Retryable(err error) bool {
	return IsTransient(err) || IsConflict(err)
}

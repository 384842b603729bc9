package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

func TestCheckout_TestPaymentCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 2)

	out, err := h.orch.Enter(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReadyToSubmit, out.State)
	assert.True(t, decimal.RequireFromString("35.25").Equal(out.Validation.Totals.GrandTotal))
	assert.Empty(t, out.Warnings)

	out, err = h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, RedirectConfirmation, out.Redirect)
	require.NotNil(t, out.Order)
	assert.Equal(t, domain.OrderStatusConfirmed, out.Order.Status)
	assert.Contains(t, out.Message, out.Order.OrderNumber)

	assert.True(t, h.cart.IsEmpty())
	_, ok := h.keys.Peek(ctx)
	assert.False(t, ok, "key is released after success")
	assert.Equal(t, 1, h.orderCount())
	assert.Equal(t, 1, h.stock("mug"))
}

func TestCheckout_ConflictKeepsKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 5)

	out, err := h.orch.Enter(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReadyToSubmit, out.State)
	assert.Equal(t, []string{"Only 3 of Mug available"}, out.Warnings)

	out, err = h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, StateReadyToSubmit, out.State)
	assert.Equal(t, MessageConflict, out.Message)
	item, ok := out.Validation.Item("mug")
	require.True(t, ok)
	assert.Equal(t, 3, item.AvailableStock)
	assert.False(t, h.cart.IsEmpty())

	h.cart.SetQuantity(ctx, "mug", 3)

	out, err = h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)

	keys := h.proxy.sentKeys()
	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, 1, h.orderCount())
	assert.Equal(t, 0, h.stock("mug"))
}

func TestCheckout_LostResponseIsReplayed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 1)

	_, err := h.orch.Enter(ctx)
	require.NoError(t, err)

	h.proxy.inject("POST /orders", lostResponse)

	out, err := h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StateReadyToSubmit, out.State)
	assert.Equal(t, MessageTransient, out.Message)
	assert.False(t, h.cart.IsEmpty())
	assert.Equal(t, 1, h.orderCount(), "the server created the order before the response was lost")

	out, err = h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)

	keys := h.proxy.sentKeys()
	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, 1, h.orderCount())
	assert.Equal(t, 2, h.stock("mug"))
}

func TestCheckout_ChangedOrderAfterUnsettledAttemptGetsNewKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 1)

	_, err := h.orch.Enter(ctx)
	require.NoError(t, err)
	h.proxy.inject("POST /orders", lostResponse)

	_, err = h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	require.True(t, errors.IsTransient(err))

	h.cart.SetQuantity(ctx, "mug", 2)
	out, err := h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 2, out.Order.Items[0].Quantity)

	keys := h.proxy.sentKeys()
	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0], keys[1])
}

func TestCheckout_RetryAfterPriceChangeReplaysLostOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 1)

	_, err := h.orch.Enter(ctx)
	require.NoError(t, err)
	h.proxy.inject("POST /orders", lostResponse)

	_, err = h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	require.True(t, errors.IsTransient(err))
	require.Equal(t, 1, h.orderCount())

	repriced := mug
	repriced.Price = decimal.RequireFromString("14.00")
	require.NoError(t, h.repos.Product.Upsert(ctx, &domain.StockedProduct{Product: repriced, Stock: h.stock("mug")}))

	out, err := h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.True(t, decimal.RequireFromString("12.50").Equal(out.Order.Items[0].Price), "the order placed by the lost attempt is returned")

	keys := h.proxy.sentKeys()
	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, 1, h.orderCount())
}

func TestCheckout_DeclineThenSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 1)

	_, err := h.orch.Enter(ctx)
	require.NoError(t, err)

	out, err := h.orch.Submit(ctx, testForm(domain.PaymentMethodCard))
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPayment, out.State)
	assert.Equal(t, domain.OrderStatusPendingPayment, out.Order.Status)
	assert.False(t, h.cart.IsEmpty(), "cart is kept until payment succeeds")

	out, err = h.orch.Pay(ctx, testCard(declinedCard))
	require.Error(t, err)
	assert.True(t, errors.IsPaymentDeclined(err))
	assert.Equal(t, StateAwaitingPayment, out.State)
	require.NotNil(t, out.Payment)
	assert.Equal(t, PaymentOutcomeDeclined, out.Payment.Kind)
	assert.Equal(t, "Your card was declined.", out.Message)

	out, err = h.orch.Pay(ctx, testCard(goodCard))
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, PaymentOutcomeSucceeded, out.Payment.Kind)
	assert.Equal(t, domain.OrderStatusConfirmed, out.Order.Status)
	assert.True(t, h.cart.IsEmpty())
	assert.Equal(t, 2, h.proxy.callCount("POST /payments/intents"), "a declined intent is never reused")
	assert.Equal(t, 1, h.orderCount())
}

func TestCheckout_TransientConfirmReusesIntent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(lamp, 1)

	_, err := h.orch.Enter(ctx)
	require.NoError(t, err)
	_, err = h.orch.Submit(ctx, testForm(domain.PaymentMethodCard))
	require.NoError(t, err)

	h.proxy.inject("POST /payments/confirm", failWith(http.StatusServiceUnavailable))
	out, err := h.orch.Pay(ctx, testCard(goodCard))
	require.True(t, errors.IsTransient(err))
	assert.Equal(t, StateAwaitingPayment, out.State)

	out, err = h.orch.Pay(ctx, testCard(goodCard))
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 1, h.proxy.callCount("POST /payments/intents"))
}

func TestCheckout_EmptyCartRedirectsToCatalog(t *testing.T) {
	h := newHarness(t)

	out, err := h.orch.Enter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, out.State)
	assert.Equal(t, RedirectCatalog, out.Redirect)
	assert.Nil(t, out.Order)
	assert.Zero(t, h.proxy.callCount("POST /cart/validate"))
}

func TestCheckout_ExpiredSessionRedirectsToLogin(t *testing.T) {
	h := newHarness(t)
	h.add(mug, 1)
	orch := h.orchestrator(h.newClient("expired"))

	out, err := orch.Enter(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsUnauthorized(err))
	assert.Equal(t, RedirectLogin, out.Redirect)
	assert.Equal(t, StateIdle, out.State)
}

func TestCheckout_ValidationOutageIsRetryable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 1)

	h.proxy.inject("POST /cart/validate", failWith(http.StatusServiceUnavailable))
	out, err := h.orch.Enter(ctx)
	require.Error(t, err)
	var cve *errors.CartValidationError
	assert.ErrorAs(t, err, &cve)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StateIdle, out.State, "a transient outage is retryable, not a failure")
	assert.Equal(t, MessageTransient, out.Message)

	out, err = h.orch.Enter(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReadyToSubmit, out.State)
}

func TestCheckout_RejectedCartFails(t *testing.T) {
	h := newHarness(t)
	h.add(domain.Product{ID: "ghost", Name: "Ghost", Price: decimal.NewFromInt(1)}, 1)

	out, err := h.orch.Enter(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, MessageValidationFailed, out.Message)
}

func TestCheckout_InvalidFormLeavesStateAlone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 1)
	_, err := h.orch.Enter(ctx)
	require.NoError(t, err)

	form := testForm(domain.PaymentMethodTest)
	form.Customer.Email = "not-an-email"
	_, err = h.orch.Submit(ctx, form)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, StateReadyToSubmit, h.orch.State())
	assert.Zero(t, h.proxy.callCount("POST /orders"))
}

func TestCheckout_SubmitIsSingleFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 1)
	_, err := h.orch.Enter(ctx)
	require.NoError(t, err)

	entered, release := make(chan struct{}), make(chan struct{})
	h.proxy.inject("POST /orders", blockUntil(entered, release))

	type result struct {
		out *Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
		done <- result{out, err}
	}()
	<-entered

	assert.Equal(t, StateSubmitting, h.orch.State())
	_, err = h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	assert.True(t, errors.IsBusy(err))
	_, err = h.orch.Enter(ctx)
	assert.True(t, errors.IsBusy(err))

	close(release)
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, StateDone, r.out.State)
	assert.Equal(t, 1, h.orderCount())
}

func TestCheckout_ResetDiscardsInFlightSubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 1)
	_, err := h.orch.Enter(ctx)
	require.NoError(t, err)

	entered, release := make(chan struct{}), make(chan struct{})
	h.proxy.inject("POST /orders", blockUntil(entered, release))

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
		done <- err
	}()
	<-entered

	h.orch.Reset()
	assert.Equal(t, StateIdle, h.orch.State())
	close(release)

	err = <-done
	assert.True(t, errors.IsStale(err))
	assert.Equal(t, StateIdle, h.orch.State())
	assert.False(t, h.cart.IsEmpty(), "a discarded response must not clear the cart")

	// The key survived the reset, so the same order is replayed.
	_, err = h.orch.Enter(ctx)
	require.NoError(t, err)
	out, err := h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 1, h.orderCount())
}

func TestCheckout_CancelPaymentDiscardsInFlightConfirm(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 1)
	_, err := h.orch.Enter(ctx)
	require.NoError(t, err)
	_, err = h.orch.Submit(ctx, testForm(domain.PaymentMethodCard))
	require.NoError(t, err)

	entered, release := make(chan struct{}), make(chan struct{})
	h.proxy.inject("POST /payments/confirm", blockUntil(entered, release))

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Pay(ctx, testCard(goodCard))
		done <- err
	}()
	<-entered
	assert.Equal(t, StateConfirming, h.orch.State())

	out, err := h.orch.CancelPayment()
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPayment, out.State)
	assert.Equal(t, PaymentOutcomeCancelled, out.Payment.Kind)
	assert.Equal(t, MessagePaymentCancelled, out.Message)

	out, err = h.orch.Pay(ctx, testCard(goodCard))
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)

	close(release)
	err = <-done
	assert.True(t, errors.IsStale(err))
	assert.Equal(t, StateDone, h.orch.State())
	assert.Equal(t, 2, h.proxy.callCount("POST /payments/intents"), "an abandoned intent is never reused")
}

func TestCheckout_ResumeAfterReload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 1)
	_, err := h.orch.Enter(ctx)
	require.NoError(t, err)
	out, err := h.orch.Submit(ctx, testForm(domain.PaymentMethodCard))
	require.NoError(t, err)
	orderID := out.Order.OrderID

	h.reload()
	assert.False(t, h.cart.IsEmpty(), "cart survives the reload")

	out, err = h.orch.Resume(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPayment, out.State)

	out, err = h.orch.Pay(ctx, testCard(goodCard))
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.True(t, h.cart.IsEmpty())

	// Done is entered once per order; resuming it again leaves a new cart alone.
	h.add(lamp, 1)
	out, err = h.orch.Resume(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.False(t, h.cart.IsEmpty())

	_, err = h.orch.Resume(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.IsNotFound(err))
}

func TestCheckout_PaymentSetupReloadsOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("cancelled elsewhere", func(t *testing.T) {
		h := newHarness(t)
		h.add(mug, 1)
		_, err := h.orch.Enter(ctx)
		require.NoError(t, err)
		out, err := h.orch.Submit(ctx, testForm(domain.PaymentMethodCard))
		require.NoError(t, err)

		require.NoError(t, h.repos.Order.UpdateStatus(ctx, out.Order.OrderID, domain.OrderStatusPendingPayment, domain.OrderStatusCancelled))

		out, err = h.orch.Pay(ctx, testCard(goodCard))
		require.NoError(t, err)
		assert.Equal(t, StateFailed, out.State)
		assert.Equal(t, MessageOrderCancelled, out.Message)
		assert.Equal(t, domain.OrderStatusCancelled, out.Order.Status)
		_, ok := h.keys.Peek(ctx)
		assert.False(t, ok)
		assert.False(t, h.cart.IsEmpty())
	})

	t.Run("paid elsewhere", func(t *testing.T) {
		h := newHarness(t)
		h.add(mug, 1)
		_, err := h.orch.Enter(ctx)
		require.NoError(t, err)
		out, err := h.orch.Submit(ctx, testForm(domain.PaymentMethodCard))
		require.NoError(t, err)

		require.NoError(t, h.repos.Order.UpdateStatus(ctx, out.Order.OrderID, domain.OrderStatusPendingPayment, domain.OrderStatusConfirmed))

		out, err = h.orch.Pay(ctx, testCard(goodCard))
		require.NoError(t, err)
		assert.Equal(t, StateDone, out.State)
		assert.True(t, h.cart.IsEmpty())
	})
}

func TestCheckout_UnknownOrderStatusIsProtocolError(t *testing.T) {
	h := newHarness(t)
	h.proxy.inject("GET /orders/o-1", func(w http.ResponseWriter, _ *http.Request, _ http.Handler) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"orderId": "o-1", "status": "Shipped"})
	})

	_, err := h.orch.Resume(context.Background(), "o-1")
	assert.True(t, errors.IsInvalidStateTransition(err))
	assert.Equal(t, StateIdle, h.orch.State())
}

func TestCheckout_HeldOrderIsSurfacedAsPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(mug, 1)
	_, err := h.orch.Enter(ctx)
	require.NoError(t, err)

	h.proxy.inject("POST /orders", func(w http.ResponseWriter, _ *http.Request, _ http.Handler) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"orderId": "held-1", "orderNumber": "000123", "status": "Pending"})
	})

	out, err := h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.True(t, out.Pending)
	assert.Contains(t, out.Message, "000123")
	assert.True(t, h.cart.IsEmpty())
}

func TestCheckout_ActionsOutOfOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orch.Pay(ctx, testCard(goodCard))
	assert.True(t, errors.IsInvalidStateTransition(err))

	_, err = h.orch.Submit(ctx, testForm(domain.PaymentMethodTest))
	assert.True(t, errors.IsInvalidStateTransition(err))

	_, err = h.orch.CancelPayment()
	assert.True(t, errors.IsInvalidStateTransition(err))

	_, err = h.orch.Pay(ctx, testCard("1234"))
	assert.True(t, errors.IsValidation(err))
}

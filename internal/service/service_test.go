package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/config"
	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/repository"
	"github.com/corekit/storefront/internal/repository/memory"
	"github.com/corekit/storefront/pkg/errors"
)

type fixture struct {
	repos    *repository.Repositories
	pricing  *PricingService
	orders   *OrderService
	payments *PaymentService
}

func newFixture(t *testing.T, holdOrders bool) *fixture {
	t.Helper()
	ctx := context.Background()
	repos := memory.NewRepositories()
	require.NoError(t, repos.Product.Upsert(ctx, &domain.StockedProduct{
		Product: domain.Product{ID: "mug", Name: "Mug", Price: decimal.RequireFromString("12.50")}, Stock: 3,
	}))
	require.NoError(t, repos.Product.Upsert(ctx, &domain.StockedProduct{
		Product: domain.Product{ID: "lamp", Name: "Lamp", Price: decimal.RequireFromString("80.00")}, Stock: 1,
	}))

	cfg := &config.SandboxConfig{
		Pricing: config.PricingConfig{
			Currency:              "USD",
			ShippingFlatFee:       decimal.NewFromInt(5),
			FreeShippingThreshold: decimal.NewFromInt(100),
			TaxRate:               decimal.RequireFromString("0.21"),
		},
		DeclineCards: []string{"4000000000000002"},
	}
	logger := zap.NewNop()
	pricing := NewPricingService(repos, cfg.Pricing, logger)
	return &fixture{
		repos:    repos,
		pricing:  pricing,
		orders:   NewOrderService(repos, pricing, holdOrders, logger),
		payments: NewPaymentService(repos, cfg, logger),
	}
}

func orderRequest(method domain.PaymentMethodType, items ...domain.CartItemRequest) domain.CreateOrderRequest {
	return domain.CreateOrderRequest{
		Customer:        domain.CustomerInfo{FullName: "Ada Lovelace", Email: "ada@example.com"},
		ShippingAddress: domain.ShippingAddress{Street: "Main", Number: "1", City: "Springfield", Province: "IL", PostalCode: "62701"},
		Items:           items,
		PaymentMethod:   method,
	}
}

func TestQuote(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	t.Run("flat shipping below threshold", func(t *testing.T) {
		result, err := f.pricing.Quote(ctx, []domain.CartItemRequest{{ProductID: "mug", Quantity: 2}})
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("25").Equal(result.Totals.ItemsTotal))
		assert.True(t, decimal.RequireFromString("5").Equal(result.Totals.Shipping))
		assert.True(t, decimal.RequireFromString("5.25").Equal(result.Totals.Taxes))
		assert.True(t, decimal.RequireFromString("35.25").Equal(result.Totals.GrandTotal))
		assert.False(t, result.HasWarnings())
	})

	t.Run("free shipping and merged lines", func(t *testing.T) {
		result, err := f.pricing.Quote(ctx, []domain.CartItemRequest{
			{ProductID: "lamp", Quantity: 1},
			{ProductID: "mug", Quantity: 1},
			{ProductID: "mug", Quantity: 1},
		})
		require.NoError(t, err)
		require.Len(t, result.Items, 2)
		assert.Equal(t, "lamp", result.Items[0].ProductID)
		assert.Equal(t, 2, result.Items[1].Quantity)
		assert.True(t, result.Totals.Shipping.IsZero())
		assert.True(t, decimal.RequireFromString("127.05").Equal(result.Totals.GrandTotal))
	})

	t.Run("shortfall is a warning", func(t *testing.T) {
		result, err := f.pricing.Quote(ctx, []domain.CartItemRequest{{ProductID: "mug", Quantity: 5}})
		require.NoError(t, err)
		assert.Equal(t, []string{"Only 3 of Mug available"}, result.Warnings)
		assert.Len(t, result.Shortages(), 1)
	})

	t.Run("unknown product is rejected", func(t *testing.T) {
		_, err := f.pricing.Quote(ctx, []domain.CartItemRequest{{ProductID: "ghost", Quantity: 1}})
		assert.True(t, errors.IsValidation(err))
	})
}

func TestCreateOrder_Idempotency(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	req := orderRequest(domain.PaymentMethodTest, domain.CartItemRequest{ProductID: "mug", Quantity: 2})

	first, replayed, err := f.orders.CreateOrder(ctx, "key-1", req)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, domain.OrderStatusConfirmed, first.Status)

	second, replayed, err := f.orders.CreateOrder(ctx, "key-1", req)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.OrderID, second.OrderID)

	mug, _ := f.repos.Product.GetByID(ctx, "mug")
	assert.Equal(t, 1, mug.Stock, "stock is reserved once")

	drifted := req
	stale := decimal.RequireFromString("1.00")
	drifted.ExpectedTotal = &stale
	third, replayed, err := f.orders.CreateOrder(ctx, "key-1", drifted)
	require.NoError(t, err, "the expected total does not make a retry a different order")
	assert.True(t, replayed)
	assert.Equal(t, first.OrderID, third.OrderID)

	changed := orderRequest(domain.PaymentMethodTest, domain.CartItemRequest{ProductID: "mug", Quantity: 1})
	_, _, err = f.orders.CreateOrder(ctx, "key-1", changed)
	assert.True(t, errors.IsValidation(err))

	_, _, err = f.orders.CreateOrder(ctx, " ", req)
	assert.True(t, errors.IsValidation(err))
}

func TestCreateOrder_Conflicts(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, _, err := f.orders.CreateOrder(ctx, "k-short", orderRequest(domain.PaymentMethodCard, domain.CartItemRequest{ProductID: "mug", Quantity: 4}))
	assert.True(t, errors.IsConflict(err))

	req := orderRequest(domain.PaymentMethodCard, domain.CartItemRequest{ProductID: "mug", Quantity: 1})
	stale := decimal.RequireFromString("10")
	req.ExpectedTotal = &stale
	_, _, err = f.orders.CreateOrder(ctx, "k-drift", req)
	assert.True(t, errors.IsConflict(err))

	// A rejected attempt binds nothing to the key.
	fresh := decimal.RequireFromString("20.13")
	req.ExpectedTotal = &fresh
	order, replayed, err := f.orders.CreateOrder(ctx, "k-drift", req)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, domain.OrderStatusPendingPayment, order.Status)
}

func TestCreateOrder_HeldOrders(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	order, _, err := f.orders.CreateOrder(ctx, "k", orderRequest(domain.PaymentMethodTest, domain.CartItemRequest{ProductID: "mug", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)

	confirmed, err := f.orders.ConfirmOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, confirmed.Status)

	_, err = f.orders.CancelOrder(ctx, order.OrderID, "too late")
	assert.True(t, errors.IsInvalidStateTransition(err))
}

func TestCancelOrder_ReleasesStock(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	order, _, err := f.orders.CreateOrder(ctx, "k", orderRequest(domain.PaymentMethodCard, domain.CartItemRequest{ProductID: "mug", Quantity: 3}))
	require.NoError(t, err)
	intent, err := f.payments.CreateIntent(ctx, order.OrderID)
	require.NoError(t, err)

	cancelled, err := f.orders.CancelOrder(ctx, order.OrderID, "customer request")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)

	mug, _ := f.repos.Product.GetByID(ctx, "mug")
	assert.Equal(t, 3, mug.Stock)

	stored, _ := f.repos.PaymentIntent.GetByID(ctx, intent.ID)
	assert.Equal(t, domain.PaymentIntentCanceled, stored.Status)
}

func TestPayments(t *testing.T) {
	ctx := context.Background()
	card := func(number string) domain.CardDetails {
		return domain.CardDetails{Type: "card", CardNumber: number, ExpMonth: "12", ExpYear: "2030", CVC: "123", HolderName: "Ada Lovelace"}
	}

	t.Run("decline fails the intent and a new one succeeds", func(t *testing.T) {
		f := newFixture(t, false)
		order, _, err := f.orders.CreateOrder(ctx, "k", orderRequest(domain.PaymentMethodCard, domain.CartItemRequest{ProductID: "mug", Quantity: 1}))
		require.NoError(t, err)

		intent, err := f.payments.CreateIntent(ctx, order.OrderID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentIntentRequiresConfirmation, intent.Status)
		assert.True(t, order.Totals.GrandTotal.Equal(intent.Amount))

		_, err = f.payments.Confirm(ctx, domain.ConfirmPaymentRequest{PaymentIntentID: intent.ID, PaymentMethod: card("4000 0000 0000 0002")})
		declined, ok := errors.AsPaymentDeclined(err)
		require.True(t, ok)
		assert.Equal(t, DeclineReason, declined.UserMessage())

		_, err = f.payments.Confirm(ctx, domain.ConfirmPaymentRequest{PaymentIntentID: intent.ID, PaymentMethod: card("4242424242424242")})
		assert.True(t, errors.IsPaymentSetup(err), "a failed intent is never reused")

		retry, err := f.payments.CreateIntent(ctx, order.OrderID)
		require.NoError(t, err)
		assert.NotEqual(t, intent.ID, retry.ID)

		result, err := f.payments.Confirm(ctx, domain.ConfirmPaymentRequest{PaymentIntentID: retry.ID, PaymentMethod: card("4242424242424242")})
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentIntentSucceeded, result.Intent.Status)
		assert.Equal(t, domain.OrderStatusConfirmed, result.Order.Status)
	})

	t.Run("intent requires a pending payment order", func(t *testing.T) {
		f := newFixture(t, false)
		order, _, err := f.orders.CreateOrder(ctx, "k", orderRequest(domain.PaymentMethodTest, domain.CartItemRequest{ProductID: "mug", Quantity: 1}))
		require.NoError(t, err)

		_, err = f.payments.CreateIntent(ctx, order.OrderID)
		assert.True(t, errors.IsPaymentSetup(err))

		_, err = f.payments.CreateIntent(ctx, "missing")
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("new intent supersedes an open one", func(t *testing.T) {
		f := newFixture(t, false)
		order, _, err := f.orders.CreateOrder(ctx, "k", orderRequest(domain.PaymentMethodCard, domain.CartItemRequest{ProductID: "mug", Quantity: 1}))
		require.NoError(t, err)

		first, err := f.payments.CreateIntent(ctx, order.OrderID)
		require.NoError(t, err)
		_, err = f.payments.CreateIntent(ctx, order.OrderID)
		require.NoError(t, err)

		_, err = f.payments.Confirm(ctx, domain.ConfirmPaymentRequest{PaymentIntentID: first.ID, PaymentMethod: card("4242424242424242")})
		assert.True(t, errors.IsPaymentSetup(err))
	})

	t.Run("malformed card number", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.payments.Confirm(ctx, domain.ConfirmPaymentRequest{PaymentIntentID: "pi_x", PaymentMethod: card("42")})
		assert.True(t, errors.IsValidation(err))
	})
}

func TestLoadCatalog(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/catalog.json", []byte(`[{"id":"p1","name":"Pen","price":"1.20","stock":9}]`), 0o644))

	products, err := LoadCatalog(fs, "/catalog.json")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 9, products[0].Stock)
	assert.True(t, decimal.RequireFromString("1.2").Equal(products[0].Price))

	repos := memory.NewRepositories()
	require.NoError(t, SeedCatalog(context.Background(), repos, products))
	stored, err := repos.Product.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Pen", stored.Name)

	_, err = LoadCatalog(fs, "/missing.json")
	assert.Error(t, err)
}

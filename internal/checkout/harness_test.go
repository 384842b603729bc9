package checkout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/corekit/storefront/internal/api"
	"github.com/corekit/storefront/internal/cart"
	"github.com/corekit/storefront/internal/commerce"
	"github.com/corekit/storefront/internal/config"
	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/idempotency"
	"github.com/corekit/storefront/internal/metrics"
	"github.com/corekit/storefront/internal/repository"
	"github.com/corekit/storefront/internal/repository/memory"
	"github.com/corekit/storefront/internal/storage"
)

const (
	apiToken     = "checkout-test-token"
	declinedCard = "4000 0000 0000 0002"
	goodCard     = "4242 4242 4242 4242"
)

var testNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

var (
	mug  = domain.Product{ID: "mug", Name: "Mug", Price: decimal.RequireFromString("12.50")}
	lamp = domain.Product{ID: "lamp", Name: "Lamp", Price: decimal.RequireFromString("80.00")}
)

// fault intercepts one request. next serves it against the sandbox.
type fault func(w http.ResponseWriter, r *http.Request, next http.Handler)

// faultProxy sits in front of the sandbox router, records idempotency keys
// and applies queued faults per route.
type faultProxy struct {
	next http.Handler

	mu     sync.Mutex
	faults map[string][]fault
	keys   []string
	calls  map[string]int
}

func (p *faultProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path

	p.mu.Lock()
	p.calls[route]++
	if key := r.Header.Get(idempotency.Header); key != "" {
		p.keys = append(p.keys, key)
	}
	var f fault
	if queue := p.faults[route]; len(queue) > 0 {
		f = queue[0]
		p.faults[route] = queue[1:]
	}
	p.mu.Unlock()

	if f != nil {
		f(w, r, p.next)
		return
	}
	p.next.ServeHTTP(w, r)
}

func (p *faultProxy) inject(route string, f fault) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults[route] = append(p.faults[route], f)
}

func (p *faultProxy) sentKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

func (p *faultProxy) callCount(route string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[route]
}

// lostResponse lets the server process the request, then reports a gateway failure
func lostResponse(w http.ResponseWriter, r *http.Request, next http.Handler) {
	next.ServeHTTP(httptest.NewRecorder(), r)
	w.WriteHeader(http.StatusBadGateway)
}

func failWith(status int) fault {
	return func(w http.ResponseWriter, _ *http.Request, _ http.Handler) {
		w.WriteHeader(status)
	}
}

// blockUntil holds the request until release is closed, then serves it
func blockUntil(entered chan<- struct{}, release <-chan struct{}) fault {
	return func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		close(entered)
		<-release
		next.ServeHTTP(w, r)
	}
}

type harness struct {
	t       *testing.T
	repos   *repository.Repositories
	proxy   *faultProxy
	server  *httptest.Server
	client  *commerce.Client
	session storage.Store
	durable storage.Store
	cart    *cart.Store
	keys    *idempotency.KeyManager
	orch    *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte(apiToken), bcrypt.MinCost)
	require.NoError(t, err)

	repos := memory.NewRepositories()
	require.NoError(t, repos.Product.Upsert(ctx, &domain.StockedProduct{Product: mug, Stock: 3}))
	require.NoError(t, repos.Product.Upsert(ctx, &domain.StockedProduct{Product: lamp, Stock: 10}))

	cfg := &config.SandboxConfig{
		Environment: "test",
		TokenHash:   string(hash),
		Pricing: config.PricingConfig{
			Currency:              "USD",
			ShippingFlatFee:       decimal.NewFromInt(5),
			FreeShippingThreshold: decimal.NewFromInt(100),
			TaxRate:               decimal.RequireFromString("0.21"),
		},
		DeclineCards: []string{"4000000000000002"},
	}
	reg := prometheus.NewRegistry()
	router := api.NewRouter(cfg, repos, reg, metrics.NewServerMetrics(reg, "sandbox"), zap.NewNop())

	proxy := &faultProxy{next: router, faults: make(map[string][]fault), calls: make(map[string]int)}
	server := httptest.NewServer(proxy)
	t.Cleanup(server.Close)

	h := &harness{
		t:       t,
		repos:   repos,
		proxy:   proxy,
		server:  server,
		session: storage.NewMemoryStore(),
		durable: storage.NewMemoryStore(),
	}
	h.client = h.newClient(apiToken)
	h.reload()
	return h
}

func (h *harness) newClient(token string) *commerce.Client {
	return commerce.NewClient(
		config.CommerceConfig{BaseURL: h.server.URL, Timeout: 5 * time.Second},
		commerce.StaticToken(token),
		zap.NewNop(),
		nil,
	)
}

// reload rebuilds the client-side components over the same storage, as a page reload would
func (h *harness) reload() {
	ctx := context.Background()
	logger := zap.NewNop()
	h.cart = cart.NewStore(ctx, h.durable, "cart", cart.NopNotifier{}, logger)
	h.keys = idempotency.NewKeyManager(h.session, "checkout_key", logger)
	h.orch = h.orchestrator(h.client)
}

func (h *harness) orchestrator(client *commerce.Client) *Orchestrator {
	logger := zap.NewNop()
	return NewOrchestrator(
		h.cart,
		h.keys,
		NewValidator(client, logger),
		NewSubmitter(client, logger),
		NewPaymentCoordinator(client, logger),
		logger,
		WithClock(func() time.Time { return testNow }),
		WithMetrics(metrics.NewCheckoutMetrics(prometheus.NewRegistry())),
	)
}

func (h *harness) add(p domain.Product, qty int) {
	require.NoError(h.t, h.cart.Add(context.Background(), p, qty))
}

func (h *harness) orderCount() int {
	orders, err := h.repos.Order.List(context.Background(), nil)
	require.NoError(h.t, err)
	return len(orders)
}

func (h *harness) stock(id string) int {
	p, err := h.repos.Product.GetByID(context.Background(), id)
	require.NoError(h.t, err)
	return p.Stock
}

func testForm(method domain.PaymentMethodType) OrderForm {
	return OrderForm{
		Customer:        domain.CustomerInfo{FullName: "Ada Lovelace", Email: "ada@example.com"},
		ShippingAddress: domain.ShippingAddress{Street: "Main St", Number: "12", City: "Springfield", Province: "IL", PostalCode: "62701"},
		PaymentMethod:   method,
	}
}

func testCard(number string) domain.CardDetails {
	return NewCardDetails(number, "12", "2030", "123", "Ada Lovelace")
}

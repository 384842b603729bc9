// Package commerce is the HTTPS/JSON client for the remote commerce API.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/config"
	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/idempotency"
	"github.com/corekit/storefront/internal/metrics"
	"github.com/corekit/storefront/pkg/errors"
)

// TokenSource is the authentication collaborator supplying bearer credentials
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a pre-acquired credential
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", &errors.ErrUnauthorized{Message: "no credential available"}
	}
	return string(t), nil
}

type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.CheckoutMetrics
}

// NewClient creates a new commerce API client. m may be nil.
func NewClient(cfg config.CommerceConfig, tokens TokenSource, logger *zap.Logger, m *metrics.CheckoutMetrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: m,
	}
}

// errorMapper turns a non-2xx response into a taxonomy error
type errorMapper func(op string, status int, body ErrorResponse) error

// ListProducts returns the catalog
func (c *Client) ListProducts(ctx context.Context) ([]domain.StockedProduct, error) {
	var list ProductList
	if _, err := c.do(ctx, OpListProducts, http.MethodGet, ProductsPath, nil, nil, &list, mapDefault); err != nil {
		return nil, err
	}
	return list.Products, nil
}

// GetProduct fetches one catalog product
func (c *Client) GetProduct(ctx context.Context, productID string) (*domain.StockedProduct, error) {
	var product domain.StockedProduct
	mapper := func(op string, status int, body ErrorResponse) error {
		if status == http.StatusNotFound {
			return &errors.ErrNotFound{Resource: "product", ID: productID}
		}
		return mapDefault(op, status, body)
	}
	path := ProductsPath + "/" + url.PathEscape(productID)
	if _, err := c.do(ctx, OpGetProduct, http.MethodGet, path, nil, nil, &product, mapper); err != nil {
		return nil, err
	}
	return &product, nil
}

// ValidateCart asks the pricing/stock authority to reconcile the requested lines
func (c *Client) ValidateCart(ctx context.Context, items []domain.CartItemRequest) (*domain.CartValidationResult, error) {
	req := ValidateCartRequest{Items: make([]CartItem, 0, len(items))}
	for _, item := range items {
		req.Items = append(req.Items, CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	var result domain.CartValidationResult
	if _, err := c.do(ctx, OpValidateCart, http.MethodPost, ValidateCartPath, nil, req, &result, mapDefault); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateOrder submits an order. The key is sent as the Idempotency-Key header
// so a retried submission returns the original order instead of a duplicate.
func (c *Client) CreateOrder(ctx context.Context, payload domain.CreateOrderRequest, key string) (*domain.Order, error) {
	if key == "" {
		return nil, &errors.ValidationError{Message: "idempotency key is required"}
	}
	headers := map[string]string{idempotency.Header: key}

	var order domain.Order
	status, err := c.do(ctx, OpCreateOrder, http.MethodPost, OrdersPath, headers, payload, &order, mapDefault)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		c.logger.Info("Order creation replayed by server",
			zap.String("order_id", order.OrderID),
			zap.String("idempotency_key", key),
		)
	}
	return &order, nil
}

// GetOrder refetches an order
func (c *Client) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	path := OrdersPath + "/" + url.PathEscape(orderID)
	mapper := func(op string, status int, body ErrorResponse) error {
		if status == http.StatusNotFound {
			return &errors.ErrNotFound{Resource: "order", ID: orderID}
		}
		return mapDefault(op, status, body)
	}
	if _, err := c.do(ctx, OpGetOrder, http.MethodGet, path, nil, nil, &order, mapper); err != nil {
		return nil, err
	}
	return &order, nil
}

// CreatePaymentIntent opens a payment intent for an order in PendingPayment
func (c *Client) CreatePaymentIntent(ctx context.Context, orderID string) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	req := domain.CreatePaymentIntentRequest{OrderID: orderID}
	mapper := func(op string, status int, body ErrorResponse) error {
		if status == http.StatusConflict || status == http.StatusUnprocessableEntity {
			return &errors.PaymentSetupError{OrderID: orderID, Message: body.text()}
		}
		return mapDefault(op, status, body)
	}
	if _, err := c.do(ctx, OpCreateIntent, http.MethodPost, PaymentIntentsPath, nil, req, &intent, mapper); err != nil {
		return nil, err
	}
	return &intent, nil
}

// ConfirmPayment submits payment details for an intent
func (c *Client) ConfirmPayment(ctx context.Context, req domain.ConfirmPaymentRequest) (*domain.PaymentResult, error) {
	var result domain.PaymentResult
	mapper := func(op string, status int, body ErrorResponse) error {
		switch status {
		case http.StatusPaymentRequired:
			return &errors.PaymentDeclinedError{IntentID: req.PaymentIntentID, Reason: body.text()}
		case http.StatusConflict:
			return &errors.PaymentSetupError{Message: body.text()}
		}
		return mapDefault(op, status, body)
	}
	if _, err := c.do(ctx, OpConfirmIntent, http.MethodPost, ConfirmPaymentPath, nil, req, &result, mapper); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(
	ctx context.Context,
	op, method, path string,
	headers map[string]string,
	body, out interface{},
	mapErr errorMapper,
) (int, error) {
	start := time.Now()
	status, err := c.execute(ctx, op, method, path, headers, body, out, mapErr)

	outcome := "ok"
	if err != nil {
		outcome = outcomeLabel(err)
		c.logger.Error("Commerce API call failed",
			zap.String("operation", op),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.metrics.ObserveRequest(op, outcome, float64(time.Since(start).Milliseconds()))
	return status, err
}

func (c *Client) execute(
	ctx context.Context,
	op, method, path string,
	headers map[string]string,
	body, out interface{},
	mapErr errorMapper,
) (int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, err
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return 0, &errors.TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &errors.TransientError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		// Non-JSON error bodies still map by status code
		_ = json.Unmarshal(respBody, &apiErr)
		return resp.StatusCode, mapErr(op, resp.StatusCode, apiErr)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%s: failed to unmarshal response: %w", op, err)
		}
	}
	return resp.StatusCode, nil
}

func mapDefault(op string, status int, body ErrorResponse) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &errors.ErrUnauthorized{Message: body.text()}
	case status == http.StatusNotFound:
		return &errors.ErrNotFound{Resource: op}
	case status == http.StatusConflict:
		return &errors.ConflictError{Message: body.text()}
	case status == http.StatusPaymentRequired:
		return &errors.PaymentDeclinedError{Reason: body.text()}
	case status == http.StatusTooManyRequests || status >= 500:
		return &errors.TransientError{Op: op, StatusCode: status}
	case status >= 400:
		msg := body.text()
		if msg == "" {
			msg = fmt.Sprintf("%s rejected with status %d", op, status)
		}
		return &errors.ValidationError{Message: msg, Details: body.Details}
	default:
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.IsConflict(err):
		return "conflict"
	case errors.IsTransient(err):
		return "transient"
	case errors.IsValidation(err):
		return "validation"
	case errors.IsPaymentDeclined(err):
		return "declined"
	case errors.IsPaymentSetup(err):
		return "setup"
	case errors.IsUnauthorized(err):
		return "unauthorized"
	case errors.IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog view handed to the cart on add-to-cart
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"imageUrl,omitempty"`
}

// CartLine represents one product entry in the client-held cart
type CartLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	ImageRef  string          `json:"imageUrl"`
	Quantity  int             `json:"quantity"`
}

// Subtotal returns UnitPrice * Quantity
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartItemRequest is the wire form of a requested line
type CartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// ItemRequests projects cart lines onto the request shape used by validation and order creation
func ItemRequests(lines []CartLine) []CartItemRequest {
	items := make([]CartItemRequest, 0, len(lines))
	for _, line := range lines {
		items = append(items, CartItemRequest{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return items
}

// CartValidationItem is the authoritative view of one requested line
type CartValidationItem struct {
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	ImageURL       string          `json:"imageUrl"`
	Price          decimal.Decimal `json:"price"`
	AvailableStock int             `json:"availableStock"`
	Quantity       int             `json:"quantity"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

// Totals are the aggregate amounts shared by validations and orders
type Totals struct {
	ItemsTotal decimal.Decimal `json:"itemsTotal"`
	Shipping   decimal.Decimal `json:"shipping"`
	Taxes      decimal.Decimal `json:"taxes"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
}

// CartValidationResult is a read-only server snapshot. Never mutated by the client.
type CartValidationResult struct {
	Items    []CartValidationItem `json:"items"`
	Totals   Totals               `json:"totals"`
	Warnings []string             `json:"warnings,omitempty"`
}

// HasWarnings reports whether the server flagged drift
func (r *CartValidationResult) HasWarnings() bool {
	return r != nil && len(r.Warnings) > 0
}

// Item looks up the validated line for a product
func (r *CartValidationResult) Item(productID string) (CartValidationItem, bool) {
	if r == nil {
		return CartValidationItem{}, false
	}
	for _, item := range r.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartValidationItem{}, false
}

// Shortages returns the lines whose requested quantity exceeds available stock
func (r *CartValidationResult) Shortages() []CartValidationItem {
	if r == nil {
		return nil
	}
	var short []CartValidationItem
	for _, item := range r.Items {
		if item.AvailableStock < item.Quantity {
			short = append(short, item)
		}
	}
	return short
}

// CustomerInfo identifies the buyer
type CustomerInfo struct {
	FullName string `json:"fullName" binding:"required,min=3"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone,omitempty"`
}

// ShippingAddress is where the order ships
type ShippingAddress struct {
	Street     string `json:"street" binding:"required"`
	Number     string `json:"number" binding:"required"`
	City       string `json:"city" binding:"required"`
	Province   string `json:"province" binding:"required"`
	PostalCode string `json:"postalCode" binding:"required"`
}

// CreateOrderRequest is the order creation payload
type CreateOrderRequest struct {
	Customer        CustomerInfo      `json:"customer" binding:"required"`
	ShippingAddress ShippingAddress   `json:"shippingAddress" binding:"required"`
	Items           []CartItemRequest `json:"items" binding:"required,min=1,dive"`
	Notes           string            `json:"notes,omitempty"`
	PaymentMethod   PaymentMethodType `json:"paymentMethod" binding:"required"`
	// ExpectedTotal is the grand total of the validation the client submitted against.
	ExpectedTotal *decimal.Decimal `json:"expectedTotal,omitempty"`
}

// ContentHash fingerprints what the shopper chose: items, customer, address,
// notes and payment method. ExpectedTotal is left out since it follows server
// prices, and a retry of the same order must hash the same after a price change.
func (r CreateOrderRequest) ContentHash() (string, error) {
	r.ExpectedTotal = nil
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode order request: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// OrderItem represents an item in an order
type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Order is the server-owned order entity. The client only creates and refetches it.
type Order struct {
	OrderID         string            `json:"orderId"`
	OrderNumber     string            `json:"orderNumber"`
	Status          OrderStatus       `json:"status"`
	Items           []OrderItem       `json:"items"`
	Totals          Totals            `json:"totals"`
	Customer        CustomerInfo      `json:"customer"`
	ShippingAddress ShippingAddress   `json:"shippingAddress"`
	Notes           string            `json:"notes,omitempty"`
	PaymentMethod   PaymentMethodType `json:"paymentMethod"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// PaymentIntent is one server-tracked attempt to collect payment for an order
type PaymentIntent struct {
	ID          string              `json:"id"`
	OrderID     string              `json:"orderId"`
	Amount      decimal.Decimal     `json:"amount"`
	Currency    string              `json:"currency"`
	Provider    string              `json:"provider"`
	ClientToken string              `json:"clientToken"`
	Status      PaymentIntentStatus `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// CreatePaymentIntentRequest asks the server for a new intent
type CreatePaymentIntentRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

// CardDetails carries the payment method submitted with a confirmation
type CardDetails struct {
	Type       string `json:"type"`
	CardNumber string `json:"cardNumber"`
	ExpMonth   string `json:"expMonth"`
	ExpYear    string `json:"expYear"`
	CVC        string `json:"cvc"`
	HolderName string `json:"holderName"`
}

// ConfirmPaymentRequest confirms an intent with payment details
type ConfirmPaymentRequest struct {
	PaymentIntentID string      `json:"paymentIntentId" binding:"required"`
	PaymentMethod   CardDetails `json:"paymentMethod" binding:"required"`
}

// PaymentResult is returned by a successful confirmation
type PaymentResult struct {
	Intent PaymentIntent `json:"paymentIntent"`
	Order  Order         `json:"order"`
}

package domain

import "time"

// StockedProduct is a catalog product with its available stock
type StockedProduct struct {
	Product
	Stock int `json:"stock"`
}

// IdempotencyRecord binds an Idempotency-Key to the order it created
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	OrderID     string
	CreatedAt   time.Time
}

// Package postgres holds the lib/pq backed repositories for the commerce sandbox.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/config"
	"github.com/corekit/storefront/internal/repository"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Open connects to Postgres and verifies the connection
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the sandbox tables when missing
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// NewRepositories creates the Postgres repositories
func NewRepositories(db *sql.DB, logger *zap.Logger) *repository.Repositories {
	return &repository.Repositories{
		Product:       NewProductRepository(db, logger),
		Order:         NewOrderRepository(db, logger),
		Idempotency:   NewIdempotencyRepository(db, logger),
		PaymentIntent: NewPaymentIntentRepository(db, logger),
	}
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

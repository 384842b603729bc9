package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

type productRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *sql.DB, logger *zap.Logger) *productRepository {
	return &productRepository{
		db:     db,
		logger: logger,
	}
}

func (r *productRepository) GetByID(ctx context.Context, id string) (*domain.StockedProduct, error) {
	query := `
		SELECT id, name, price, image_url, stock
		FROM products
		WHERE id = $1
	`

	var p domain.StockedProduct
	var imageURL sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Price, &imageURL, &p.Stock)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "product", ID: id}
	}
	if err != nil {
		r.logger.Error("Failed to get product", zap.String("product_id", id), zap.Error(err))
		return nil, err
	}

	p.ImageURL = imageURL.String
	return &p, nil
}

func (r *productRepository) List(ctx context.Context) ([]*domain.StockedProduct, error) {
	query := `
		SELECT id, name, price, image_url, stock
		FROM products
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list products", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []*domain.StockedProduct
	for rows.Next() {
		var p domain.StockedProduct
		var imageURL sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &imageURL, &p.Stock); err != nil {
			return nil, err
		}
		p.ImageURL = imageURL.String
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *productRepository) Upsert(ctx context.Context, product *domain.StockedProduct) error {
	query := `
		INSERT INTO products (id, name, price, image_url, stock, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, image_url = EXCLUDED.image_url,
			stock = EXCLUDED.stock, updated_at = now()
	`

	var imageURL sql.NullString
	if product.ImageURL != "" {
		imageURL = sql.NullString{String: product.ImageURL, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, product.ID, product.Name, product.Price, imageURL, product.Stock)
	if err != nil {
		r.logger.Error("Failed to upsert product", zap.String("product_id", product.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *productRepository) AdjustStock(ctx context.Context, deltas map[string]int) error {
	query := `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
	`

	// Fixed order keeps concurrent reservations from deadlocking.
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		res, err := tx.ExecContext(ctx, query, id, deltas[id])
		if err != nil {
			r.logger.Error("Failed to adjust stock", zap.String("product_id", id), zap.Error(err))
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return &errors.ConflictError{Message: fmt.Sprintf("insufficient stock for %s", id)}
		}
	}

	return tx.Commit()
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/model"
)

// ProductRepo is the read-only catalog lookup used to price order items
type ProductRepo interface {
	GetByID(ctx context.Context, id int64) (model.Product, error)
}

type productRepo struct {
	db *sql.DB
}

// NewProductRepo creates a new ProductRepo instance
func NewProductRepo(db *sql.DB) ProductRepo {
	return &productRepo{db: db}
}

func (r *productRepo) GetByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock_quantity, active
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Product{}, apperr.New(apperr.KindNotFound, fmt.Sprintf("product %d not found", id))
		}
		return model.Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/model"
)

// OrderRepo stores orders keyed by id. Orders are never deleted.
type OrderRepo interface {
	Create(ctx context.Context, order model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (model.Order, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]model.Order, error)
	// Update runs fn on the current order inside a per-order critical section and persists
	// Status, Notes and UpdatedAt if fn returns nil. Concurrent updates of one order serialize.
	Update(ctx context.Context, id uuid.UUID, fn func(o *model.Order) error) (model.Order, error)
}

type orderRepo struct {
	db *sql.DB
}

// NewOrderRepo creates a PostgreSQL-backed OrderRepo
func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Create inserts the order and its items in one transaction
func (r *orderRepo) Create(ctx context.Context, order model.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, owner_id, status, total_amount, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, order.ID, order.OwnerID, string(order.Status), order.TotalAmount, order.Notes, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, order.ID, i, item.ProductID, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Order, error) {
	return loadOrder(ctx, r.db, id, false)
}

// ListByOwner returns the owner's orders, newest first
func (r *orderRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, status, total_amount, notes, created_at, updated_at
		FROM orders
		WHERE owner_id = $1
		ORDER BY created_at DESC, id
		OFFSET $2 LIMIT $3
	`, ownerID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	for i := range orders {
		items, err := loadItems(ctx, r.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// Update locks the order row with SELECT ... FOR UPDATE for the duration of fn
func (r *orderRepo) Update(ctx context.Context, id uuid.UUID, fn func(o *model.Order) error) (model.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	order, err := loadOrder(ctx, tx, id, true)
	if err != nil {
		return model.Order{}, err
	}
	if err := fn(&order); err != nil {
		return model.Order{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, notes = $3, updated_at = $4 WHERE id = $1
	`, id, string(order.Status), order.Notes, order.UpdatedAt)
	if err != nil {
		return model.Order{}, fmt.Errorf("update order: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Order{}, fmt.Errorf("commit: %w", err)
	}
	return order, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (model.Order, error) {
	var o model.Order
	var idStr, ownerStr, status string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&idStr, &ownerStr, &status, &o.TotalAmount, &o.Notes, &createdAt, &updatedAt); err != nil {
		return model.Order{}, err
	}
	var err error
	if o.ID, err = uuid.Parse(idStr); err != nil {
		return model.Order{}, fmt.Errorf("parse order ID: %w", err)
	}
	if o.OwnerID, err = uuid.Parse(ownerStr); err != nil {
		return model.Order{}, fmt.Errorf("parse owner ID: %w", err)
	}
	o.Status = model.OrderStatus(status)
	o.CreatedAt = createdAt.UTC()
	o.UpdatedAt = updatedAt.UTC()
	return o, nil
}

func loadOrder(ctx context.Context, q queryer, id uuid.UUID, forUpdate bool) (model.Order, error) {
	query := `
		SELECT id, owner_id, status, total_amount, notes, created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	o, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Order{}, apperr.New(apperr.KindNotFound, "order not found")
		}
		return model.Order{}, fmt.Errorf("query order: %w", err)
	}
	o.Items, err = loadItems(ctx, q, id)
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func loadItems(ctx context.Context, q queryer, orderID uuid.UUID) ([]model.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	return items, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateAddress stores a shipping address snapshot
func (t *Tx) CreateAddress(ctx context.Context, addr *models.Address) error {
	query := `
		INSERT INTO addresses (user_id, line1, line2, city, state, postal_code, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return t.tx.GetContext(ctx, &addr.ID, query,
		addr.UserID, addr.Line1, addr.Line2, addr.City, addr.State, addr.PostalCode, addr.Country)
}

// CreateOrder creates a new order
func (t *Tx) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, total_amount, discount_amount, shipping_address_id, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, order_date, created_at, updated_at`

	return t.tx.QueryRowxContext(ctx, query,
		order.UserID, order.TotalAmount, order.DiscountAmount,
		order.ShippingAddressID, order.PaymentMethod, order.Status,
	).Scan(&order.ID, &order.OrderDate, &order.CreatedAt, &order.UpdatedAt)
}

// BulkInsertLineItems inserts all line items in one statement and fills their IDs
func (t *Tx) BulkInsertLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}

	rows, err := sqlx.NamedQueryContext(ctx, t.tx, `
		INSERT INTO order_line_items (order_id, product_id, quantity, price)
		VALUES (:order_id, :product_id, :quantity, :price)
		RETURNING id`, items)
	if err != nil {
		return fmt.Errorf("failed to insert line items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for i := 0; rows.Next(); i++ {
		if i >= len(items) {
			break
		}
		if err := rows.Scan(&items[i].ID); err != nil {
			return err
		}
	}
	return rows.Err()
}

// TransitionOrderStatus moves an order along the status state machine. The
// update only applies if the order is still in the expected status.
func (t *Tx) TransitionOrderStatus(ctx context.Context, orderID int64, from, to string) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}

	result, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("order %d not in status %s: %w", orderID, from, ErrInvalidTransition)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderLineItems retrieves all line items for an order
func (s *Store) GetOrderLineItems(ctx context.Context, orderID int64) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_line_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetAddress retrieves a stored address
func (s *Store) GetAddress(ctx context.Context, id int64) (*models.Address, error) {
	var addr models.Address
	err := s.db.GetContext(ctx, &addr, `
		SELECT id, user_id, line1, line2, city, state, postal_code, country
		FROM addresses WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("address %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

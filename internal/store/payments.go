package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"
)

// GetPaymentCard retrieves a saved card by ID
func (s *Store) GetPaymentCard(ctx context.Context, id int64) (*models.PaymentCard, error) {
	var card models.PaymentCard
	err := s.db.GetContext(ctx, &card, "SELECT * FROM payment_cards WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment card %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// GetPaymentByOrderID retrieves the payment of an order
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment for order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// SavePaymentCard stores a card supplied at checkout
func (t *Tx) SavePaymentCard(ctx context.Context, card *models.PaymentCard) error {
	query := `
		INSERT INTO payment_cards (user_id, card_number, card_holder, expiry_month, expiry_year, cvv)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return t.tx.QueryRowxContext(ctx, query,
		card.UserID, card.CardNumber, card.CardHolder, card.ExpiryMonth, card.ExpiryYear, card.CVV,
	).Scan(&card.ID, &card.CreatedAt)
}

// CreatePayment creates the payment record of an order
func (t *Tx) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, dummy_card_id, amount_cents, currency, transaction_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return t.tx.QueryRowxContext(ctx, query,
		payment.OrderID, payment.DummyCardID, payment.AmountCents,
		payment.Currency, payment.TransactionID, payment.Status,
	).Scan(&payment.ID, &payment.CreatedAt)
}

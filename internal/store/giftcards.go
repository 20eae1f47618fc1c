package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

// GetActiveGiftCardByCode retrieves an active gift card by its code
func (s *Store) GetActiveGiftCardByCode(ctx context.Context, code string) (*models.GiftCard, error) {
	var card models.GiftCard
	err := s.db.GetContext(ctx, &card,
		"SELECT * FROM gift_cards WHERE code = $1 AND is_active", code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("gift card: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// GetGiftCardTransactions returns the audit ledger of a gift card, oldest first
func (s *Store) GetGiftCardTransactions(ctx context.Context, giftCardID int64) ([]models.GiftCardTransaction, error) {
	var txs []models.GiftCardTransaction
	err := s.db.SelectContext(ctx, &txs,
		"SELECT * FROM gift_card_transactions WHERE gift_card_id = $1 ORDER BY id", giftCardID)
	return txs, err
}

// IssueGiftCard creates a card with its purchase transaction
func (s *Store) IssueGiftCard(ctx context.Context, code string, amount decimal.Decimal) (*models.GiftCard, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("gift card amount must be positive")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	card := &models.GiftCard{Code: code, Amount: amount, Balance: amount, IsActive: true}
	err = tx.GetContext(ctx, card, `
		INSERT INTO gift_cards (code, amount, balance, is_active)
		VALUES ($1, $2, $2, TRUE)
		RETURNING *`, code, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to create gift card: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gift_card_transactions (gift_card_id, type, amount)
		VALUES ($1, $2, $3)`, card.ID, models.GiftCardTxPurchase, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to record gift card purchase: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return card, nil
}

// DebitGiftCard debits an active card only if the balance covers amount and
// records the paired redemption row.
func (t *Tx) DebitGiftCard(ctx context.Context, giftCardID, orderID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("invalid gift card debit %s", amount)
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE gift_cards
		SET balance = balance - $2
		WHERE id = $1 AND is_active AND balance >= $2`,
		giftCardID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit gift card: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("gift card %d: %w", giftCardID, ErrInsufficientBalance)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO gift_card_transactions (gift_card_id, order_id, type, amount)
		VALUES ($1, $2, $3, $4)`,
		giftCardID, orderID, models.GiftCardTxRedemption, amount)
	if err != nil {
		return fmt.Errorf("failed to record redemption: %w", err)
	}
	return nil
}

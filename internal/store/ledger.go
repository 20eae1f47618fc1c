package store

import (
	"context"
	"errors"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientBalance = errors.New("insufficient gift card balance")
	ErrInvalidTransition   = errors.New("invalid order status transition")
)

// Ledger is the read side of the checkout ledger plus a transaction entry point.
// *Store implements it against Postgres.
type Ledger interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetActiveGiftCardByCode(ctx context.Context, code string) (*models.GiftCard, error)
	GetPaymentCard(ctx context.Context, id int64) (*models.PaymentCard, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	WithTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx holds the writes of a checkout. DecrementStock and DebitGiftCard
// are single conditional updates and return ErrInsufficientStock or
// ErrInsufficientBalance instead of going negative.
type LedgerTx interface {
	CreateAddress(ctx context.Context, addr *models.Address) error
	CreateOrder(ctx context.Context, order *models.Order) error
	BulkInsertLineItems(ctx context.Context, items []models.OrderLineItem) error
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	DebitGiftCard(ctx context.Context, giftCardID, orderID int64, amount decimal.Decimal) error
	SavePaymentCard(ctx context.Context, card *models.PaymentCard) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	TransitionOrderStatus(ctx context.Context, orderID int64, from, to string) error
}

var (
	_ Ledger   = (*Store)(nil)
	_ LedgerTx = (*Tx)(nil)
)

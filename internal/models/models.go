package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product. InStock is computed by the database
// from StockQuantity and is never written directly.
type Product struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Description   string          `db:"description" json:"description"`
	ImageURL      string          `db:"image_url" json:"image_url"`
	Price         decimal.Decimal `db:"price" json:"price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	InStock       bool            `db:"in_stock" json:"in_stock"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// User is the subset of the account needed for order confirmations
type User struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}

// Address is a per-order shipping address snapshot
type Address struct {
	ID         int64  `db:"id" json:"id"`
	UserID     int64  `db:"user_id" json:"user_id"`
	Line1      string `db:"line1" json:"line1" binding:"required"`
	Line2      string `db:"line2" json:"line2,omitempty"`
	City       string `db:"city" json:"city" binding:"required"`
	State      string `db:"state" json:"state"`
	PostalCode string `db:"postal_code" json:"postal_code" binding:"required"`
	Country    string `db:"country" json:"country" binding:"required"`
}

// GiftCard represents a redeemable gift card
type GiftCard struct {
	ID        int64           `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// GiftCardTransaction is an append-only ledger row paired with every balance change
type GiftCardTransaction struct {
	ID         int64           `db:"id" json:"id"`
	GiftCardID int64           `db:"gift_card_id" json:"gift_card_id"`
	OrderID    *int64          `db:"order_id" json:"order_id,omitempty"`
	Type       string          `db:"type" json:"type"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Order represents a customer order. TotalAmount is the goods value before
// any gift-card discount; DiscountAmount holds the redeemed portion.
type Order struct {
	ID                int64           `db:"id" json:"id"`
	UserID            int64           `db:"user_id" json:"user_id"`
	OrderDate         time.Time       `db:"order_date" json:"order_date"`
	TotalAmount       decimal.Decimal `db:"total_amount" json:"total_amount"`
	DiscountAmount    decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	ShippingAddressID int64           `db:"shipping_address_id" json:"shipping_address_id"`
	PaymentMethod     string          `db:"payment_method" json:"payment_method"`
	Status            string          `db:"status" json:"status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderLineItem stores the unit price at purchase time
type OrderLineItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
}

// PaymentCard is a simulated card kept for the dummy payment flow
type PaymentCard struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	CardNumber  string    `db:"card_number" json:"-"`
	CardHolder  string    `db:"card_holder" json:"card_holder"`
	ExpiryMonth int       `db:"expiry_month" json:"expiry_month"`
	ExpiryYear  int       `db:"expiry_year" json:"expiry_year"`
	CVV         string    `db:"cvv" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Payment represents a simulated payment record, one per order
type Payment struct {
	ID            int64     `db:"id" json:"id"`
	OrderID       int64     `db:"order_id" json:"order_id"`
	DummyCardID   int64     `db:"dummy_card_id" json:"dummy_card_id"`
	AmountCents   int64     `db:"amount_cents" json:"amount_cents"`
	Currency      string    `db:"currency" json:"currency"`
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DeliveryStatus tracks one notification job across all of its attempts
type DeliveryStatus struct {
	ID           int64      `db:"id" json:"id"`
	OrderID      int64      `db:"order_id" json:"order_id"`
	JobID        string     `db:"job_id" json:"job_id"`
	Status       string     `db:"status" json:"status"`
	Provider     string     `db:"provider" json:"provider,omitempty"`
	MessageID    string     `db:"message_id" json:"message_id,omitempty"`
	Error        string     `db:"error" json:"error,omitempty"`
	Attempts     int        `db:"attempts" json:"attempts"`
	LastAttempt  *time.Time `db:"last_attempt" json:"last_attempt,omitempty"`
	DeadLettered bool       `db:"dead_lettered" json:"dead_lettered"`
	Payload      []byte     `db:"payload" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

var orderTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// CanTransition reports whether an order may move from one status to another
func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Payment methods
const (
	PaymentMethodCreditCard     = "credit_card"
	PaymentMethodDebitCard      = "debit_card"
	PaymentMethodCashOnDelivery = "cash_on_delivery"
)

// IsCardPayment reports whether the method requires card details
func IsCardPayment(method string) bool {
	return method == PaymentMethodCreditCard || method == PaymentMethodDebitCard
}

// IsKnownPaymentMethod reports whether the method is accepted at checkout
func IsKnownPaymentMethod(method string) bool {
	return IsCardPayment(method) || method == PaymentMethodCashOnDelivery
}

// Payment statuses
const (
	PaymentStatusCompleted = "completed"
)

// Gift card transaction types
const (
	GiftCardTxPurchase   = "purchase"
	GiftCardTxRedemption = "redemption"
)

// Delivery statuses
const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusSent      = "sent"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
	DeliveryStatusBounced   = "bounced"
)

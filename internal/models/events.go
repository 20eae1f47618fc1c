package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event and job types
const (
	JobTypeOrderConfirmation  = "order_confirmation"
	EventTypeNotificationDead = "NOTIFICATION_DEAD_LETTERED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderSnapshot is the denormalized view of an order captured when the
// notification job is created, so later mutations do not change what is sent.
type OrderSnapshot struct {
	Order           Order           `json:"order"`
	Lines           []SnapshotLine  `json:"lines"`
	User            User            `json:"user"`
	ShippingAddress Address         `json:"shipping_address"`
	Discount        decimal.Decimal `json:"discount"`
	ChargeTotal     decimal.Decimal `json:"charge_total"`
	BankName        string          `json:"bank_name,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"`
}

// SnapshotLine is a line item joined with its product display data
type SnapshotLine struct {
	ProductID   int64           `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// LineTotal returns price × quantity
func (l SnapshotLine) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// NotificationJob is the unit of work handed to the notification queue
type NotificationJob struct {
	ID            string        `json:"id"`
	Type          string        `json:"type"`
	OrderID       int64         `json:"order_id"`
	CustomerEmail string        `json:"customer_email"`
	Snapshot      OrderSnapshot `json:"snapshot"`
	EnqueuedAt    time.Time     `json:"enqueued_at"`
}

// DeadLetterEvent is published when a job exhausts its delivery attempts
type DeadLetterEvent struct {
	BaseEvent
	OriginalJobID string          `json:"original_job_id"`
	OrderID       int64           `json:"order_id"`
	FinalError    string          `json:"final_error"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failed_at"`
	Job           NotificationJob `json:"job"`
}

package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type trackedDelivery struct {
	status       string
	attempts     int
	provider     string
	messageID    string
	errMsg       string
	deadLettered bool
}

type fakeTracker struct {
	mu      sync.Mutex
	records map[string]*trackedDelivery
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{records: map[string]*trackedDelivery{}}
}

func (f *fakeTracker) RecordAttempt(_ context.Context, job models.NotificationJob, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[job.ID]
	if !ok {
		rec = &trackedDelivery{}
		f.records[job.ID] = rec
	}
	rec.status = models.DeliveryStatusPending
	if attempt > rec.attempts {
		rec.attempts = attempt
	}
	return nil
}

func (f *fakeTracker) MarkSent(_ context.Context, jobID, provider, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[jobID]
	rec.status = models.DeliveryStatusSent
	rec.provider = provider
	rec.messageID = messageID
	return nil
}

func (f *fakeTracker) MarkFailed(_ context.Context, jobID, errMsg string, deadLettered bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[jobID]
	rec.status = models.DeliveryStatusFailed
	rec.errMsg = errMsg
	rec.deadLettered = rec.deadLettered || deadLettered
	return nil
}

func (f *fakeTracker) get(jobID string) trackedDelivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[jobID]; ok {
		return *rec
	}
	return trackedDelivery{}
}

type fakeTransport struct {
	name string

	mu    sync.Mutex
	fail  bool
	calls int
	sent  []Message
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Send(_ context.Context, msg Message) (SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return SendResult{}, errors.New(f.name + " unavailable")
	}
	f.sent = append(f.sent, msg)
	return SendResult{Provider: f.name, MessageID: "msg-" + f.name}, nil
}

func (f *fakeTransport) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransport) lastMessage() Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeSink struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
}

func (f *fakeSink) Add(_ context.Context, entry DeadLetterEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type staticInvoices struct {
	pdf   []byte
	err   error
	block bool
}

func (s staticInvoices) Invoice(ctx context.Context, _ models.OrderSnapshot) ([]byte, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.pdf, s.err
}

func testJob(id string) models.NotificationJob {
	return models.NotificationJob{
		ID:            id,
		Type:          models.JobTypeOrderConfirmation,
		OrderID:       42,
		CustomerEmail: "ada@example.com",
		Snapshot: models.OrderSnapshot{
			Order: models.Order{
				ID:            42,
				OrderDate:     time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC),
				TotalAmount:   decimal.RequireFromString("100"),
				PaymentMethod: models.PaymentMethodCreditCard,
			},
			Lines: []models.SnapshotLine{
				{ProductID: 1, Name: "Ceramic Mug", Quantity: 2, Price: decimal.RequireFromString("50")},
			},
			User:          models.User{ID: 7, Name: "Ada", Email: "ada@example.com"},
			Discount:      decimal.Zero,
			ChargeTotal:   decimal.RequireFromString("100"),
			BankName:      "Citibank",
			TransactionID: "TXN-1",
		},
	}
}

type harness struct {
	primary    *fakeTransport
	backup     *fakeTransport
	breaker    *CircuitBreaker
	tracker    *fakeTracker
	sink       *fakeSink
	dispatcher *Dispatcher
}

func newHarness(t *testing.T, withBackup bool, invoices InvoiceRenderer) *harness {
	templates, err := NewTemplates("Storefront", "USD")
	require.NoError(t, err)

	h := &harness{
		primary: &fakeTransport{name: "smtp"},
		breaker: NewCircuitBreaker(10, 5*time.Minute),
		tracker: newFakeTracker(),
		sink:    &fakeSink{},
	}
	var backup Transport
	if withBackup {
		h.backup = &fakeTransport{name: "http_api"}
		backup = h.backup
	}

	h.dispatcher = NewDispatcher(
		DispatcherConfig{MaxAttempts: 5, SendTimeout: time.Second, PDFTimeout: 50 * time.Millisecond},
		h.primary, backup, h.breaker, templates, invoices, h.tracker, h.sink,
	)
	return h
}

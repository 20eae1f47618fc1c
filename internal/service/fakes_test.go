package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"

	"github.com/shopspring/decimal"
)

// memoryLedger is an in-memory store.Ledger. A transaction holds the lock
// for its whole duration and restores a snapshot when fn fails.
type memoryLedger struct {
	mu sync.Mutex

	products   map[int64]models.Product
	giftCards  map[int64]models.GiftCard
	cards      map[int64]models.PaymentCard
	users      map[int64]models.User
	addresses  map[int64]models.Address
	orders     map[int64]models.Order
	lines      []models.OrderLineItem
	giftTxs    []models.GiftCardTransaction
	payments   []models.Payment
	deliveries map[string]models.DeliveryStatus
	nextID     int64

	paymentErr error
	decrements []stockDecrement
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		products:   map[int64]models.Product{},
		giftCards:  map[int64]models.GiftCard{},
		cards:      map[int64]models.PaymentCard{},
		users:      map[int64]models.User{7: {ID: 7, Name: "Ada", Email: "ada@example.com"}},
		addresses:  map[int64]models.Address{},
		orders:     map[int64]models.Order{},
		deliveries: map[string]models.DeliveryStatus{},
		nextID:     100,
	}
}

func (l *memoryLedger) addProduct(id int64, price string, stock int) {
	l.products[id] = models.Product{
		ID:            id,
		Name:          fmt.Sprintf("Product %d", id),
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		InStock:       stock > 0,
	}
}

func (l *memoryLedger) addGiftCard(id int64, code, balance string) {
	l.giftCards[id] = models.GiftCard{
		ID:       id,
		Code:     code,
		Amount:   decimal.RequireFromString(balance),
		Balance:  decimal.RequireFromString(balance),
		IsActive: true,
	}
}

func (l *memoryLedger) id() int64 {
	l.nextID++
	return l.nextID
}

func (l *memoryLedger) stock(id int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.products[id].StockQuantity
}

func (l *memoryLedger) orderCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.orders)
}

func (l *memoryLedger) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (l *memoryLedger) GetActiveGiftCardByCode(_ context.Context, code string) (*models.GiftCard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, g := range l.giftCards {
		if g.Code == code && g.IsActive {
			return &g, nil
		}
	}
	return nil, fmt.Errorf("gift card: %w", store.ErrNotFound)
}

func (l *memoryLedger) GetPaymentCard(_ context.Context, id int64) (*models.PaymentCard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.cards[id]
	if !ok {
		return nil, fmt.Errorf("payment card %d: %w", id, store.ErrNotFound)
	}
	return &c, nil
}

func (l *memoryLedger) GetUser(_ context.Context, id int64) (*models.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return &u, nil
}

func (l *memoryLedger) WithTx(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	saved := l.snapshot()
	if err := fn(&memoryTx{l: l}); err != nil {
		l.restore(saved)
		return err
	}
	return nil
}

func (l *memoryLedger) snapshot() *memoryLedger {
	s := &memoryLedger{
		products:  make(map[int64]models.Product, len(l.products)),
		giftCards: make(map[int64]models.GiftCard, len(l.giftCards)),
		cards:     make(map[int64]models.PaymentCard, len(l.cards)),
		addresses: make(map[int64]models.Address, len(l.addresses)),
		orders:    make(map[int64]models.Order, len(l.orders)),
		lines:     append([]models.OrderLineItem(nil), l.lines...),
		giftTxs:   append([]models.GiftCardTransaction(nil), l.giftTxs...),
		payments:  append([]models.Payment(nil), l.payments...),
		nextID:    l.nextID,
	}
	for k, v := range l.products {
		s.products[k] = v
	}
	for k, v := range l.giftCards {
		s.giftCards[k] = v
	}
	for k, v := range l.cards {
		s.cards[k] = v
	}
	for k, v := range l.addresses {
		s.addresses[k] = v
	}
	for k, v := range l.orders {
		s.orders[k] = v
	}
	return s
}

func (l *memoryLedger) restore(s *memoryLedger) {
	l.products = s.products
	l.giftCards = s.giftCards
	l.cards = s.cards
	l.addresses = s.addresses
	l.orders = s.orders
	l.lines = s.lines
	l.giftTxs = s.giftTxs
	l.payments = s.payments
	l.nextID = s.nextID
}

// OrderReader methods

func (l *memoryLedger) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	return &o, nil
}

func (l *memoryLedger) GetOrderLineItems(_ context.Context, orderID int64) ([]models.OrderLineItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var items []models.OrderLineItem
	for _, li := range l.lines {
		if li.OrderID == orderID {
			items = append(items, li)
		}
	}
	return items, nil
}

func (l *memoryLedger) GetPaymentByOrderID(_ context.Context, orderID int64) (*models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("payment for order %d: %w", orderID, store.ErrNotFound)
}

func (l *memoryLedger) GetDeliveryStatusesByOrder(_ context.Context, orderID int64) ([]models.DeliveryStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.DeliveryStatus
	for _, d := range l.deliveries {
		if d.OrderID == orderID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (l *memoryLedger) ApplyProviderEvent(_ context.Context, jobID, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.deliveries[jobID]
	if !ok || (d.Status != models.DeliveryStatusSent && d.Status != models.DeliveryStatusDelivered) {
		return fmt.Errorf("delivery %s: %w", jobID, store.ErrNotFound)
	}
	d.Status = status
	l.deliveries[jobID] = d
	return nil
}

type memoryTx struct {
	l *memoryLedger
}

func (t *memoryTx) CreateAddress(_ context.Context, addr *models.Address) error {
	addr.ID = t.l.id()
	t.l.addresses[addr.ID] = *addr
	return nil
}

func (t *memoryTx) CreateOrder(_ context.Context, order *models.Order) error {
	order.ID = t.l.id()
	order.OrderDate = time.Now()
	order.CreatedAt = order.OrderDate
	order.UpdatedAt = order.OrderDate
	t.l.orders[order.ID] = *order
	return nil
}

func (t *memoryTx) BulkInsertLineItems(_ context.Context, items []models.OrderLineItem) error {
	for i := range items {
		items[i].ID = t.l.id()
		t.l.lines = append(t.l.lines, items[i])
	}
	return nil
}

func (t *memoryTx) DecrementStock(_ context.Context, productID int64, quantity int) error {
	t.l.decrements = append(t.l.decrements, stockDecrement{productID: productID, quantity: quantity})
	p, ok := t.l.products[productID]
	if !ok || p.StockQuantity < quantity {
		return store.ErrInsufficientStock
	}
	p.StockQuantity -= quantity
	p.InStock = p.StockQuantity > 0
	t.l.products[productID] = p
	return nil
}

func (t *memoryTx) DebitGiftCard(_ context.Context, giftCardID, orderID int64, amount decimal.Decimal) error {
	g, ok := t.l.giftCards[giftCardID]
	if !ok || !g.IsActive || g.Balance.LessThan(amount) {
		return store.ErrInsufficientBalance
	}
	g.Balance = g.Balance.Sub(amount)
	t.l.giftCards[giftCardID] = g
	t.l.giftTxs = append(t.l.giftTxs, models.GiftCardTransaction{
		ID:         t.l.id(),
		GiftCardID: giftCardID,
		OrderID:    &orderID,
		Type:       models.GiftCardTxRedemption,
		Amount:     amount,
	})
	return nil
}

func (t *memoryTx) SavePaymentCard(_ context.Context, card *models.PaymentCard) error {
	card.ID = t.l.id()
	t.l.cards[card.ID] = *card
	return nil
}

func (t *memoryTx) CreatePayment(_ context.Context, payment *models.Payment) error {
	if t.l.paymentErr != nil {
		return t.l.paymentErr
	}
	payment.ID = t.l.id()
	t.l.payments = append(t.l.payments, *payment)
	return nil
}

func (t *memoryTx) TransitionOrderStatus(_ context.Context, orderID int64, from, to string) error {
	o := t.l.orders[orderID]
	if o.Status != from || !models.CanTransition(from, to) {
		return store.ErrInvalidTransition
	}
	o.Status = to
	t.l.orders[orderID] = o
	return nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []models.NotificationJob
	err  error
}

func (q *recordingQueue) Enqueue(job models.NotificationJob) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	job.ID = fmt.Sprintf("job-%d", len(q.jobs)+1)
	q.jobs = append(q.jobs, job)
	return job.ID, nil
}

type memoryIdempotency struct {
	mu    sync.Mutex
	keys  map[string]string
	locks map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]string{}, locks: map[string]string{}}
}

func (m *memoryIdempotency) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[key]; held {
		return "", false, nil
	}
	token := "token-" + strings.ToLower(key)
	m.locks[key] = token
	return token, true, nil
}

func (m *memoryIdempotency) ReleaseLock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] == token {
		delete(m.locks, key)
	}
	return nil
}

func (m *memoryIdempotency) GetIdempotencyKey(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	return v, ok, nil
}

func (m *memoryIdempotency) SetIdempotencyKey(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = value
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	idempotencyLockTTL = 30 * time.Second
	idempotencyKeyTTL  = 24 * time.Hour
)

// NotificationQueue accepts confirmation jobs without blocking
type NotificationQueue interface {
	Enqueue(job models.NotificationJob) (string, error)
}

// IdempotencyStore remembers which order an Idempotency-Key produced.
// redisclient.Client implements it.
type IdempotencyStore interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
	GetIdempotencyKey(ctx context.Context, key string) (string, bool, error)
	SetIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) error
}

// OrderReader serves order lookups after checkout. store.Store implements it.
type OrderReader interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderLineItems(ctx context.Context, orderID int64) ([]models.OrderLineItem, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	GetDeliveryStatusesByOrder(ctx context.Context, orderID int64) ([]models.DeliveryStatus, error)
	ApplyProviderEvent(ctx context.Context, jobID, status string) error
}

// OrderService turns carts into orders
type OrderService struct {
	ledger      store.Ledger
	orders      OrderReader
	payments    *PaymentService
	queue       NotificationQueue
	idempotency IdempotencyStore
	logger      *zap.Logger
}

// NewOrderService creates a new order service. idempotency may be nil.
func NewOrderService(
	ledger store.Ledger,
	orders OrderReader,
	payments *PaymentService,
	queue NotificationQueue,
	idempotency IdempotencyStore,
) *OrderService {
	return &OrderService{
		ledger:      ledger,
		orders:      orders,
		payments:    payments,
		queue:       queue,
		idempotency: idempotency,
		logger:      util.GetLogger(),
	}
}

// CartItem is one product and quantity of a checkout
type CartItem struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// PlaceOrderRequest represents a checkout. The gift card applies only when
// both code and a positive amount are given.
type PlaceOrderRequest struct {
	UserID          int64           `json:"user_id" binding:"required"`
	Items           []CartItem      `json:"items" binding:"required,min=1,dive"`
	ShippingAddress models.Address  `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method" binding:"required"`
	Card            *CardDetails    `json:"card,omitempty"`
	GiftCardCode    string          `json:"gift_card_code,omitempty"`
	GiftCardAmount  decimal.Decimal `json:"gift_card_amount"`
	IdempotencyKey  string          `json:"-"`
}

// PlaceOrderResponse represents a completed checkout
type PlaceOrderResponse struct {
	Order             *models.Order          `json:"order"`
	Items             []models.OrderLineItem `json:"items"`
	Discount          decimal.Decimal        `json:"discount"`
	ChargeTotal       decimal.Decimal        `json:"charge_total"`
	BankName          string                 `json:"bank_name,omitempty"`
	TransactionID     string                 `json:"transaction_id,omitempty"`
	NotificationJobID string                 `json:"notification_job_id,omitempty"`
}

// OrderDetails is an order with its lines and payment, if any
type OrderDetails struct {
	Order   *models.Order          `json:"order"`
	Items   []models.OrderLineItem `json:"items"`
	Payment *models.Payment        `json:"payment,omitempty"`
}

type pricedCart struct {
	lines    []models.OrderLineItem
	products map[int64]*models.Product
	subtotal decimal.Decimal
}

// PlaceOrder validates the cart, gift card and card, then writes the order,
// line items, stock and gift card debits and payment in one transaction
// before handing a confirmation job to the queue.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	var (
		resp *PlaceOrderResponse
		err  error
	)
	if req.IdempotencyKey != "" && s.idempotency != nil {
		resp, err = s.placeOrderOnce(ctx, req)
	} else {
		resp, err = s.placeOrder(ctx, req)
	}

	if err != nil {
		reason := string(CodeOf(err))
		if reason == "" {
			reason = "internal"
		}
		util.CheckoutFailedTotal.WithLabelValues(reason).Inc()
		span.RecordError(err)
		return nil, err
	}
	return resp, nil
}

// placeOrderOnce guards a checkout with its idempotency key. Redis failures
// are logged and the checkout proceeds unguarded.
func (s *OrderService) placeOrderOnce(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	key := req.IdempotencyKey
	logger := s.logger.With(zap.String("idempotency_key", key))

	if resp, ok := s.replayFromKey(ctx, key, logger); ok {
		return resp, nil
	}

	token, acquired, err := s.idempotency.AcquireLock(ctx, key, idempotencyLockTTL)
	if err != nil {
		logger.Warn("Idempotency lock unavailable, proceeding without it", zap.Error(err))
		return s.placeOrder(ctx, req)
	}
	if !acquired {
		return nil, newCheckoutError(CodeRequestInProgress, nil, "a checkout with this idempotency key is in progress")
	}
	defer func() {
		if err := s.idempotency.ReleaseLock(context.Background(), key, token); err != nil {
			logger.Warn("Failed to release idempotency lock", zap.Error(err))
		}
	}()

	if resp, ok := s.replayFromKey(ctx, key, logger); ok {
		return resp, nil
	}

	resp, err := s.placeOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.idempotency.SetIdempotencyKey(ctx, key, strconv.FormatInt(resp.Order.ID, 10), idempotencyKeyTTL); err != nil {
		logger.Warn("Failed to store idempotency key", zap.Int64("order_id", resp.Order.ID), zap.Error(err))
	}
	return resp, nil
}

func (s *OrderService) replayFromKey(ctx context.Context, key string, logger *zap.Logger) (*PlaceOrderResponse, bool) {
	value, found, err := s.idempotency.GetIdempotencyKey(ctx, key)
	if err != nil {
		logger.Warn("Idempotency lookup failed", zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	orderID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		logger.Warn("Ignoring malformed idempotency record", zap.String("value", value))
		return nil, false
	}

	resp, err := s.existingOrderResponse(ctx, orderID)
	if err != nil {
		logger.Warn("Failed to load order for idempotency key", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, false
	}

	logger.Info("Duplicate checkout request detected", zap.Int64("order_id", orderID))
	return resp, true
}

func (s *OrderService) existingOrderResponse(ctx context.Context, orderID int64) (*PlaceOrderResponse, error) {
	details, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	resp := &PlaceOrderResponse{
		Order:       details.Order,
		Items:       details.Items,
		Discount:    details.Order.DiscountAmount,
		ChargeTotal: details.Order.TotalAmount.Sub(details.Order.DiscountAmount),
	}
	if details.Payment != nil {
		resp.TransactionID = details.Payment.TransactionID
		if card, err := s.ledger.GetPaymentCard(ctx, details.Payment.DummyCardID); err == nil {
			resp.BankName = s.payments.ValidateCard(card.CardNumber).BankName
		}
	}
	return resp, nil
}

func (s *OrderService) placeOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	cart, err := s.priceCart(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	giftCard, discount, err := s.resolveGiftCard(ctx, req, cart.subtotal)
	if err != nil {
		return nil, err
	}
	chargeTotal := cart.subtotal.Sub(discount)

	var card *ResolvedCard
	if models.IsCardPayment(req.PaymentMethod) {
		if card, err = s.payments.ResolveCard(ctx, req.UserID, req.Card); err != nil {
			return nil, err
		}
	}

	user, err := s.ledger.GetUser(ctx, req.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newCheckoutError(CodeInvalidRequest, err, "unknown user %d", req.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	address := req.ShippingAddress
	address.UserID = req.UserID
	order := &models.Order{
		UserID:         req.UserID,
		TotalAmount:    cart.subtotal,
		DiscountAmount: discount,
		PaymentMethod:  req.PaymentMethod,
		Status:         models.OrderStatusPending,
	}
	var payment *models.Payment

	err = s.ledger.WithTx(ctx, func(tx store.LedgerTx) error {
		if err := tx.CreateAddress(ctx, &address); err != nil {
			return fmt.Errorf("failed to create address: %w", err)
		}
		order.ShippingAddressID = address.ID

		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range cart.lines {
			cart.lines[i].OrderID = order.ID
		}
		if err := tx.BulkInsertLineItems(ctx, cart.lines); err != nil {
			return fmt.Errorf("failed to create line items: %w", err)
		}

		for _, d := range stockDecrements(cart.lines) {
			err := tx.DecrementStock(ctx, d.productID, d.quantity)
			if errors.Is(err, store.ErrInsufficientStock) {
				return newCheckoutError(CodeInsufficientStock, err, "product %d does not have %d units in stock", d.productID, d.quantity)
			}
			if err != nil {
				return fmt.Errorf("failed to decrement stock: %w", err)
			}
		}

		if giftCard != nil {
			err := tx.DebitGiftCard(ctx, giftCard.ID, order.ID, discount)
			if errors.Is(err, store.ErrInsufficientBalance) {
				return newCheckoutError(CodeInsufficientGiftCardBalance, err, "gift card balance is below %s", discount.StringFixed(2))
			}
			if err != nil {
				return fmt.Errorf("failed to debit gift card: %w", err)
			}
		}

		if card != nil {
			p, err := s.payments.Charge(ctx, tx, order.ID, card, chargeTotal)
			if err != nil {
				return newCheckoutError(CodePaymentProcessingFailed, err, "payment could not be recorded")
			}
			if err := tx.TransitionOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusProcessing); err != nil {
				return newCheckoutError(CodePaymentProcessingFailed, err, "order could not be moved to processing")
			}
			payment = p
		}
		return nil
	})
	if err != nil {
		if CodeOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("checkout failed: %w", err)
	}

	if payment != nil {
		order.Status = models.OrderStatusProcessing
	}

	util.OrdersCreatedTotal.Inc()
	if giftCard != nil {
		util.GiftCardRedemptionsTotal.Inc()
	}

	resp := &PlaceOrderResponse{
		Order:       order,
		Items:       cart.lines,
		Discount:    discount,
		ChargeTotal: chargeTotal,
	}
	if payment != nil {
		resp.BankName = card.BankName
		resp.TransactionID = payment.TransactionID
	}

	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("subtotal", cart.subtotal.StringFixed(2)),
		zap.String("discount", discount.StringFixed(2)),
		zap.String("charge_total", chargeTotal.StringFixed(2)))

	resp.NotificationJobID = s.enqueueConfirmation(resp, cart, user, address)
	return resp, nil
}

func validateRequest(req *PlaceOrderRequest) error {
	if req.UserID <= 0 {
		return newCheckoutError(CodeInvalidRequest, nil, "user_id is required")
	}
	if len(req.Items) == 0 {
		return newCheckoutError(CodeInvalidRequest, nil, "cart is empty")
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return newCheckoutError(CodeInvalidRequest, nil, "quantity for product %d must be at least 1", item.ProductID)
		}
	}
	if !models.IsKnownPaymentMethod(req.PaymentMethod) {
		return newCheckoutError(CodeInvalidRequest, nil, "unsupported payment method %q", req.PaymentMethod)
	}
	if req.GiftCardAmount.IsNegative() {
		return newCheckoutError(CodeInvalidRequest, nil, "gift card amount cannot be negative")
	}
	return nil
}

// priceCart loads every product in cart order and snapshots its price
func (s *OrderService) priceCart(ctx context.Context, items []CartItem) (*pricedCart, error) {
	cart := &pricedCart{
		lines:    make([]models.OrderLineItem, 0, len(items)),
		products: make(map[int64]*models.Product, len(items)),
		subtotal: decimal.Zero,
	}

	for _, item := range items {
		product, err := s.ledger.GetProduct(ctx, item.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, newCheckoutError(CodeProductNotFound, err, "product %d not found", item.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load product %d: %w", item.ProductID, err)
		}
		if !product.InStock || product.StockQuantity < item.Quantity {
			return nil, newCheckoutError(CodeInsufficientStock, nil, "product %d has %d units in stock", item.ProductID, product.StockQuantity)
		}

		cart.products[product.ID] = product
		cart.lines = append(cart.lines, models.OrderLineItem{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			Price:     product.Price,
		})
		cart.subtotal = cart.subtotal.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return cart, nil
}

type stockDecrement struct {
	productID int64
	quantity  int
}

// stockDecrements merges lines per product and orders them by product id.
// Concurrent checkouts then take product row locks in the same order.
func stockDecrements(lines []models.OrderLineItem) []stockDecrement {
	totals := make(map[int64]int, len(lines))
	for _, line := range lines {
		totals[line.ProductID] += line.Quantity
	}

	out := make([]stockDecrement, 0, len(totals))
	for productID, quantity := range totals {
		out = append(out, stockDecrement{productID: productID, quantity: quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].productID < out[j].productID })
	return out
}

// resolveGiftCard returns the card to debit and the discount it covers
func (s *OrderService) resolveGiftCard(ctx context.Context, req *PlaceOrderRequest, subtotal decimal.Decimal) (*models.GiftCard, decimal.Decimal, error) {
	if req.GiftCardCode == "" || !req.GiftCardAmount.IsPositive() {
		return nil, decimal.Zero, nil
	}

	card, err := s.ledger.GetActiveGiftCardByCode(ctx, req.GiftCardCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, decimal.Zero, newCheckoutError(CodeGiftCardNotFound, err, "gift card not found or inactive")
	}
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to load gift card: %w", err)
	}
	if card.Balance.LessThan(req.GiftCardAmount) {
		return nil, decimal.Zero, newCheckoutError(CodeInsufficientGiftCardBalance, nil,
			"gift card balance %s is below %s", card.Balance.StringFixed(2), req.GiftCardAmount.StringFixed(2))
	}

	discount := decimal.Min(req.GiftCardAmount, subtotal)
	if !discount.IsPositive() {
		return nil, decimal.Zero, nil
	}
	return card, discount, nil
}

// enqueueConfirmation hands the confirmation to the queue. Failures are
// logged only; the order already exists.
func (s *OrderService) enqueueConfirmation(resp *PlaceOrderResponse, cart *pricedCart, user *models.User, address models.Address) string {
	if s.queue == nil {
		return ""
	}

	snapshot := models.OrderSnapshot{
		Order:           *resp.Order,
		Lines:           make([]models.SnapshotLine, 0, len(cart.lines)),
		User:            *user,
		ShippingAddress: address,
		Discount:        resp.Discount,
		ChargeTotal:     resp.ChargeTotal,
		BankName:        resp.BankName,
		TransactionID:   resp.TransactionID,
	}
	for _, line := range cart.lines {
		product := cart.products[line.ProductID]
		snapshot.Lines = append(snapshot.Lines, models.SnapshotLine{
			ProductID:   line.ProductID,
			Name:        product.Name,
			Description: product.Description,
			ImageURL:    product.ImageURL,
			Quantity:    line.Quantity,
			Price:       line.Price,
		})
	}

	jobID, err := s.queue.Enqueue(models.NotificationJob{
		Type:          models.JobTypeOrderConfirmation,
		OrderID:       resp.Order.ID,
		CustomerEmail: user.Email,
		Snapshot:      snapshot,
		EnqueuedAt:    time.Now(),
	})
	if err != nil {
		s.logger.Error("Failed to enqueue order confirmation",
			zap.Int64("order_id", resp.Order.ID), zap.Error(err))
		return ""
	}
	return jobID
}

// GetOrder retrieves an order with its line items and payment
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newCheckoutError(CodeOrderNotFound, err, "order %d not found", orderID)
	}
	if err != nil {
		return nil, err
	}

	items, err := s.orders.GetOrderLineItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	details := &OrderDetails{Order: order, Items: items}
	payment, err := s.orders.GetPaymentByOrderID(ctx, orderID)
	switch {
	case err == nil:
		details.Payment = payment
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return details, nil
}

// GetOrderNotifications lists the delivery records of an order's confirmations
func (s *OrderService) GetOrderNotifications(ctx context.Context, orderID int64) ([]models.DeliveryStatus, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrderNotifications")
	defer span.End()

	if _, err := s.orders.GetOrderByID(ctx, orderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newCheckoutError(CodeOrderNotFound, err, "order %d not found", orderID)
		}
		return nil, err
	}
	return s.orders.GetDeliveryStatusesByOrder(ctx, orderID)
}

// RecordDeliveryEvent applies a provider callback to a sent confirmation
func (s *OrderService) RecordDeliveryEvent(ctx context.Context, jobID, status string) error {
	if status != models.DeliveryStatusDelivered && status != models.DeliveryStatusBounced {
		return newCheckoutError(CodeInvalidRequest, nil, "unsupported delivery status %q", status)
	}
	err := s.orders.ApplyProviderEvent(ctx, jobID, status)
	if errors.Is(err, store.ErrNotFound) {
		return newCheckoutError(CodeNotificationNotFound, err, "no sent notification %s", jobID)
	}
	return err
}

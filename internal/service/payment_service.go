package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CardDetails identifies the card for a card payment: either a saved card
// of the user (SavedCardID plus CVV) or a new card.
type CardDetails struct {
	SavedCardID int64  `json:"saved_card_id,omitempty"`
	Number      string `json:"number,omitempty"`
	Holder      string `json:"holder,omitempty"`
	ExpiryMonth int    `json:"expiry_month,omitempty"`
	ExpiryYear  int    `json:"expiry_year,omitempty"`
	CVV         string `json:"cvv"`
}

// ResolvedCard is a card that passed simulation, not yet persisted when IsNew
type ResolvedCard struct {
	Card     models.PaymentCard
	BankName string
	IsNew    bool
}

// CardReader loads saved cards
type CardReader interface {
	GetPaymentCard(ctx context.Context, id int64) (*models.PaymentCard, error)
}

// PaymentService simulates card payments. A card is accepted when its
// two-digit prefix maps to a known bank.
type PaymentService struct {
	cards    CardReader
	currency string
	logger   *zap.Logger
	now      func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(cards CardReader, currency string) *PaymentService {
	return &PaymentService{
		cards:    cards,
		currency: currency,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// ValidateCard runs the prefix simulation on a card number
func (ps *PaymentService) ValidateCard(cardNumber string) payment.Result {
	return payment.ValidateCard(cardNumber)
}

// ResolveCard checks the card a checkout will be charged to. It performs no
// writes; every rejection is InvalidCardDetails.
func (ps *PaymentService) ResolveCard(ctx context.Context, userID int64, details *CardDetails) (*ResolvedCard, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ResolveCard")
	defer span.End()

	if details == nil {
		return nil, ps.reject("missing", nil, "card details are required for card payments")
	}

	var card models.PaymentCard
	isNew := details.SavedCardID == 0

	if isNew {
		if err := payment.ValidateCardFields(details.Number, details.CVV, details.ExpiryMonth, details.ExpiryYear, ps.now()); err != nil {
			return nil, ps.reject("invalid_fields", err, "invalid card details")
		}
		card = models.PaymentCard{
			UserID:      userID,
			CardNumber:  payment.NormalizeCardNumber(details.Number),
			CardHolder:  details.Holder,
			ExpiryMonth: details.ExpiryMonth,
			ExpiryYear:  details.ExpiryYear,
			CVV:         details.CVV,
		}
	} else {
		saved, err := ps.cards.GetPaymentCard(ctx, details.SavedCardID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && saved.UserID != userID) {
			return nil, ps.reject("unknown_card", nil, "card %d not found", details.SavedCardID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load payment card: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(saved.CVV), []byte(details.CVV)) != 1 {
			return nil, ps.reject("cvv_mismatch", nil, "card verification failed")
		}
		card = *saved
	}

	result := payment.ValidateCard(card.CardNumber)
	if !result.IsValid {
		return nil, ps.reject("unknown_bank", nil, "card issuer not recognised")
	}

	return &ResolvedCard{Card: card, BankName: result.BankName, IsNew: isNew}, nil
}

// Charge records the simulated payment of amount inside the checkout
// transaction, saving the card first when it is new.
func (ps *PaymentService) Charge(ctx context.Context, tx store.LedgerTx, orderID int64, card *ResolvedCard, amount decimal.Decimal) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Charge")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()

	if card.IsNew {
		if err := tx.SavePaymentCard(ctx, &card.Card); err != nil {
			return nil, fmt.Errorf("failed to save payment card: %w", err)
		}
	}

	p := &models.Payment{
		OrderID:       orderID,
		DummyCardID:   card.Card.ID,
		AmountCents:   amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Currency:      ps.currency,
		TransactionID: "TXN-" + uuid.New().String(),
		Status:        models.PaymentStatusCompleted,
	}
	if err := tx.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	ps.logger.Info("Payment recorded",
		zap.Int64("order_id", orderID),
		zap.Int64("amount_cents", p.AmountCents),
		zap.String("transaction_id", p.TransactionID),
		zap.String("bank", card.BankName))
	return p, nil
}

func (ps *PaymentService) reject(reason string, err error, format string, args ...interface{}) error {
	util.PaymentRejectedTotal.WithLabelValues(reason).Inc()
	return newCheckoutError(CodeInvalidCardDetails, err, format, args...)
}

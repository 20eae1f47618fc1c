package service

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCard(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.cards[1] = models.PaymentCard{ID: 1, UserID: 7, CardNumber: "3411111111111111", CVV: "321", ExpiryMonth: 1, ExpiryYear: 2099}
	ps := NewPaymentService(ledger, "USD")
	ps.now = func() time.Time { return time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC) }

	t.Run("saved card", func(t *testing.T) {
		card, err := ps.ResolveCard(context.Background(), 7, &CardDetails{SavedCardID: 1, CVV: "321"})
		require.NoError(t, err)
		assert.False(t, card.IsNew)
		assert.Equal(t, "Wells Fargo", card.BankName)
	})

	t.Run("new card", func(t *testing.T) {
		card, err := ps.ResolveCard(context.Background(), 7, &CardDetails{
			Number: "6011-1111-1111-1117", CVV: "4567", ExpiryMonth: 6, ExpiryYear: 2026,
		})
		require.NoError(t, err)
		assert.True(t, card.IsNew)
		assert.Equal(t, "Discover Bank", card.BankName)
		assert.Equal(t, "6011111111111117", card.Card.CardNumber)
	})

	rejected := []struct {
		name    string
		userID  int64
		details *CardDetails
	}{
		{"cvv mismatch", 7, &CardDetails{SavedCardID: 1, CVV: "000"}},
		{"card of another user", 8, &CardDetails{SavedCardID: 1, CVV: "321"}},
		{"unknown saved card", 7, &CardDetails{SavedCardID: 99, CVV: "321"}},
		{"expired", 7, &CardDetails{Number: "2311111111111111", CVV: "123", ExpiryMonth: 5, ExpiryYear: 2026}},
		{"unknown prefix", 7, &CardDetails{Number: "9911111111111111", CVV: "123", ExpiryMonth: 5, ExpiryYear: 2030}},
		{"missing", 7, nil},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ps.ResolveCard(context.Background(), tt.userID, tt.details)
			assert.Equal(t, CodeInvalidCardDetails, CodeOf(err))
		})
	}
}

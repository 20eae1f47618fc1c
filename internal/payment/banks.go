// Package payment simulates card authorization. There is no network call:
// a card is accepted when its two-digit prefix belongs to a known bank.
package payment

import (
	"fmt"
	"strings"
	"time"
)

var bankPrefixes = map[string]string{
	"11": "Bank of America",
	"12": "JPMorgan Chase",
	"23": "Citibank",
	"34": "Wells Fargo",
	"37": "American Express",
	"41": "Capital One",
	"45": "U.S. Bank",
	"51": "PNC Bank",
	"53": "Truist",
	"55": "Goldman Sachs",
	"60": "Discover Bank",
	"62": "HSBC",
	"65": "Barclays",
}

// Result is the outcome of a card validation
type Result struct {
	IsValid  bool   `json:"is_valid"`
	BankName string `json:"bank_name,omitempty"`
}

// ValidateCard looks up the issuing bank from the first two characters of
// the card number once spaces and dashes are removed. The rest of the number
// is not inspected; ValidateCardFields checks the full shape.
func ValidateCard(cardNumber string) Result {
	stripped := stripSeparators(cardNumber)
	if len(stripped) < 2 {
		return Result{}
	}

	bank, ok := bankPrefixes[stripped[:2]]
	if !ok {
		return Result{}
	}
	return Result{IsValid: true, BankName: bank}
}

// Banks returns a copy of the prefix table
func Banks() map[string]string {
	out := make(map[string]string, len(bankPrefixes))
	for prefix, bank := range bankPrefixes {
		out[prefix] = bank
	}
	return out
}

// NormalizeCardNumber strips separators. Anything other than an ASCII digit
// makes the whole number invalid and yields "".
func NormalizeCardNumber(cardNumber string) string {
	stripped := stripSeparators(cardNumber)
	for i := 0; i < len(stripped); i++ {
		if stripped[i] < '0' || stripped[i] > '9' {
			return ""
		}
	}
	return stripped
}

func stripSeparators(cardNumber string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(cardNumber)
}

// ValidateCardFields checks the shape of a card entered at checkout
func ValidateCardFields(cardNumber, cvv string, expiryMonth, expiryYear int, now time.Time) error {
	digits := NormalizeCardNumber(cardNumber)
	if len(digits) < 13 || len(digits) > 19 {
		return fmt.Errorf("card number must have 13 to 19 digits")
	}
	if len(cvv) < 3 || len(cvv) > 4 || NormalizeCardNumber(cvv) != cvv {
		return fmt.Errorf("cvv must be 3 or 4 digits")
	}
	if expiryMonth < 1 || expiryMonth > 12 {
		return fmt.Errorf("invalid expiry month %d", expiryMonth)
	}
	if expiryYear < now.Year() || (expiryYear == now.Year() && expiryMonth < int(now.Month())) {
		return fmt.Errorf("card expired")
	}
	return nil
}

package service

import (
	"errors"
	"fmt"
)

// ErrorCode is the client-facing reason a checkout was rejected
type ErrorCode string

const (
	CodeInvalidRequest              ErrorCode = "InvalidRequest"
	CodeProductNotFound             ErrorCode = "ProductNotFound"
	CodeInsufficientStock           ErrorCode = "InsufficientStock"
	CodeGiftCardNotFound            ErrorCode = "GiftCardNotFound"
	CodeInsufficientGiftCardBalance ErrorCode = "InsufficientGiftCardBalance"
	CodeInvalidCardDetails          ErrorCode = "InvalidCardDetails"
	CodePaymentProcessingFailed     ErrorCode = "PaymentProcessingFailed"
	CodeRequestInProgress           ErrorCode = "RequestInProgress"
	CodeOrderNotFound               ErrorCode = "OrderNotFound"
	CodeNotificationNotFound        ErrorCode = "NotificationNotFound"
)

// CheckoutError is a rejection the caller can act on. Anything else
// returned by the service is an internal failure.
type CheckoutError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *CheckoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

func newCheckoutError(code ErrorCode, err error, format string, args ...interface{}) *CheckoutError {
	return &CheckoutError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of a CheckoutError in err's chain, or "" for
// internal failures.
func CodeOf(err error) ErrorCode {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

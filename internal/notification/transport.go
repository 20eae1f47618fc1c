// Package notification delivers order confirmations through a primary and a
// backup transport, with a shared circuit breaker, bounded retries and a
// dead-letter sink for jobs that exhaust their budget.
package notification

import (
	"context"
	"errors"
)

var (
	// ErrCircuitOpen is returned while the primary transport is short-circuited
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrNoBackup is reported when the primary path failed and no backup is configured
	ErrNoBackup = errors.New("no backup transport configured")
)

// Attachment is a file carried by a message
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"content"`
}

// Message is a provider-agnostic email
type Message struct {
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SendResult identifies an accepted message at its provider
type SendResult struct {
	Provider  string
	MessageID string
}

// Transport sends a message or returns an error
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) (SendResult, error)
}

package notification

import (
	"context"
	"errors"
	"time"

	"checkout-service/internal/models"
)

// ErrDeadLettered marks a job that exhausted its attempts. It is never retried.
var ErrDeadLettered = errors.New("notification dead-lettered")

// DeadLetterEntry is a failed job plus the metadata needed for manual replay
type DeadLetterEntry struct {
	Job           models.NotificationJob
	OriginalJobID string
	FinalError    string
	Attempts      int
	FailedAt      time.Time
}

// DeadLetterSink durably stores jobs that will not be retried
type DeadLetterSink interface {
	Add(ctx context.Context, entry DeadLetterEntry) error
}

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"checkout-service/internal/models"
)

// RecordAttempt upserts the delivery record of a job as pending for the
// given attempt. Attempts never move backwards.
func (s *Store) RecordAttempt(ctx context.Context, job models.NotificationJob, attempt int) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO delivery_statuses (order_id, job_id, status, attempts, last_attempt, payload)
		VALUES ($1, $2, $3, $4, NOW(), $5)
		ON CONFLICT (job_id) DO UPDATE
		SET status = EXCLUDED.status,
		    attempts = GREATEST(delivery_statuses.attempts, EXCLUDED.attempts),
		    last_attempt = NOW(),
		    updated_at = NOW()`,
		job.OrderID, job.ID, models.DeliveryStatusPending, attempt, string(payload))
	return err
}

// MarkSent records a successful hand-off to a provider
func (s *Store) MarkSent(ctx context.Context, jobID, provider, messageID string) error {
	return s.updateDelivery(ctx, `
		UPDATE delivery_statuses
		SET status = $2, provider = $3, message_id = $4, error = '', updated_at = NOW()
		WHERE job_id = $1`,
		jobID, models.DeliveryStatusSent, provider, messageID)
}

// MarkFailed records a failed attempt; deadLettered marks it terminal
func (s *Store) MarkFailed(ctx context.Context, jobID, errMsg string, deadLettered bool) error {
	return s.updateDelivery(ctx, `
		UPDATE delivery_statuses
		SET status = $2, error = $3, dead_lettered = dead_lettered OR $4, updated_at = NOW()
		WHERE job_id = $1`,
		jobID, models.DeliveryStatusFailed, errMsg, deadLettered)
}

// ApplyProviderEvent records a provider callback (delivered or bounced) for a
// job that has already been handed off.
func (s *Store) ApplyProviderEvent(ctx context.Context, jobID, status string) error {
	if status != models.DeliveryStatusDelivered && status != models.DeliveryStatusBounced {
		return fmt.Errorf("unsupported provider event %q", status)
	}
	return s.updateDelivery(ctx, `
		UPDATE delivery_statuses
		SET status = $2, updated_at = NOW()
		WHERE job_id = $1 AND status IN ('sent', 'delivered')`,
		jobID, status)
}

// GetDeliveryStatusesByOrder lists the delivery records of an order
func (s *Store) GetDeliveryStatusesByOrder(ctx context.Context, orderID int64) ([]models.DeliveryStatus, error) {
	var records []models.DeliveryStatus
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM delivery_statuses WHERE order_id = $1 ORDER BY id", orderID)
	return records, err
}

// ListResumableDeliveries returns jobs that were interrupted or failed and
// still have attempts left.
func (s *Store) ListResumableDeliveries(ctx context.Context, maxAttempts int) ([]models.DeliveryStatus, error) {
	var records []models.DeliveryStatus
	err := s.db.SelectContext(ctx, &records, `
		SELECT * FROM delivery_statuses
		WHERE status IN ('pending', 'failed') AND NOT dead_lettered AND attempts < $1
		ORDER BY id`, maxAttempts)
	return records, err
}

func (s *Store) updateDelivery(ctx context.Context, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("delivery %v: %w", args[0], ErrNotFound)
	}
	return nil
}

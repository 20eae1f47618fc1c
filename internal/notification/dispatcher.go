package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// StatusTracker persists one delivery record per job. Implemented by store.Store.
type StatusTracker interface {
	RecordAttempt(ctx context.Context, job models.NotificationJob, attempt int) error
	MarkSent(ctx context.Context, jobID, provider, messageID string) error
	MarkFailed(ctx context.Context, jobID, errMsg string, deadLettered bool) error
}

// InvoiceRenderer produces the PDF attached to confirmations
type InvoiceRenderer interface {
	Invoice(ctx context.Context, snap models.OrderSnapshot) ([]byte, error)
}

// DispatcherConfig bounds a single delivery attempt
type DispatcherConfig struct {
	MaxAttempts int
	SendTimeout time.Duration
	PDFTimeout  time.Duration
}

// Dispatcher runs one delivery attempt of a notification job
type Dispatcher struct {
	cfg         DispatcherConfig
	primary     Transport
	backup      Transport
	breaker     *CircuitBreaker
	templates   *Templates
	invoices    InvoiceRenderer
	tracker     StatusTracker
	deadLetters DeadLetterSink
	logger      *zap.Logger
	now         func() time.Time
}

// NewDispatcher creates a dispatcher. backup and invoices may be nil.
func NewDispatcher(
	cfg DispatcherConfig,
	primary Transport,
	backup Transport,
	breaker *CircuitBreaker,
	templates *Templates,
	invoices InvoiceRenderer,
	tracker StatusTracker,
	deadLetters DeadLetterSink,
) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.PDFTimeout <= 0 {
		cfg.PDFTimeout = 10 * time.Second
	}
	return &Dispatcher{
		cfg:         cfg,
		primary:     primary,
		backup:      backup,
		breaker:     breaker,
		templates:   templates,
		invoices:    invoices,
		tracker:     tracker,
		deadLetters: deadLetters,
		logger:      util.Named("notification"),
		now:         time.Now,
	}
}

// MaxAttempts is the total attempt budget of a job
func (d *Dispatcher) MaxAttempts() int {
	return d.cfg.MaxAttempts
}

// Process makes attempt attemptsMade+1 at delivering job. A nil return means
// a transport accepted the message. An error wrapping ErrDeadLettered means
// the budget is spent and the job was handed to the dead-letter sink; any
// other error is retryable.
func (d *Dispatcher) Process(ctx context.Context, job models.NotificationJob, attemptsMade int) error {
	ctx, span := util.StartSpan(ctx, "Dispatcher.Process")
	defer span.End()

	attempt := attemptsMade + 1
	logger := d.logger.With(
		zap.Int64("order_id", job.OrderID),
		zap.String("job_id", job.ID),
		zap.Int("attempt", attempt),
	)

	if err := d.tracker.RecordAttempt(ctx, job, attempt); err != nil {
		logger.Error("Failed to record delivery attempt", zap.Error(err))
	}

	pdf := d.renderInvoice(ctx, job.Snapshot, logger)

	result, sendErr := d.deliver(ctx, job, pdf, logger)
	if sendErr == nil {
		util.NotificationsSentTotal.WithLabelValues(result.Provider).Inc()
		if err := d.tracker.MarkSent(ctx, job.ID, result.Provider, result.MessageID); err != nil {
			logger.Error("Failed to mark delivery sent", zap.Error(err))
		}
		logger.Info("Order confirmation sent",
			zap.String("provider", result.Provider),
			zap.String("message_id", result.MessageID))
		return nil
	}

	util.NotificationAttemptsFailedTotal.Inc()

	if attemptsMade >= d.cfg.MaxAttempts-1 {
		return d.deadLetter(ctx, job, attempt, sendErr, logger)
	}

	if err := d.tracker.MarkFailed(ctx, job.ID, sendErr.Error(), false); err != nil {
		logger.Error("Failed to mark delivery failed", zap.Error(err))
	}
	logger.Warn("Order confirmation attempt failed", zap.Error(sendErr))
	return fmt.Errorf("delivery attempt %d failed: %w", attempt, sendErr)
}

func (d *Dispatcher) deadLetter(ctx context.Context, job models.NotificationJob, attempt int, cause error, logger *zap.Logger) error {
	entry := DeadLetterEntry{
		Job:           job,
		OriginalJobID: job.ID,
		FinalError:    cause.Error(),
		Attempts:      attempt,
		FailedAt:      d.now(),
	}
	if err := d.deadLetters.Add(ctx, entry); err != nil {
		logger.Error("Failed to push job to dead-letter sink", zap.Error(err))
	}
	if err := d.tracker.MarkFailed(ctx, job.ID, cause.Error(), true); err != nil {
		logger.Error("Failed to mark delivery dead-lettered", zap.Error(err))
	}

	util.NotificationsDeadLetteredTotal.Inc()
	logger.Error("Order confirmation dead-lettered", zap.Error(cause))
	return fmt.Errorf("%w after %d attempts: %v", ErrDeadLettered, attempt, cause)
}

// deliver tries the primary behind the breaker, then the backup with the
// fallback body. Both errors are returned together when nothing succeeds.
func (d *Dispatcher) deliver(ctx context.Context, job models.NotificationJob, pdf []byte, logger *zap.Logger) (SendResult, error) {
	subject := fmt.Sprintf("Order Confirmation #%d", job.OrderID)
	var attachments []Attachment
	if pdf != nil {
		attachments = []Attachment{{
			Filename:    fmt.Sprintf("invoice-%d.pdf", job.OrderID),
			ContentType: "application/pdf",
			Data:        pdf,
		}}
	}

	var errs error

	if err := d.breaker.Allow(); err != nil {
		logger.Warn("Primary transport skipped", zap.Error(err))
		errs = multierr.Append(errs, err)
	} else {
		html, err := d.templates.Confirmation(job.Snapshot)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("render confirmation: %w", err))
		} else {
			msg := Message{To: job.CustomerEmail, Subject: subject, HTML: html, Attachments: attachments}
			result, err := d.send(ctx, d.primary, msg)
			if err == nil {
				d.breaker.RecordSuccess()
				return result, nil
			}
			d.breaker.RecordFailure()
			logger.Warn("Primary transport failed", zap.String("provider", d.primary.Name()), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", d.primary.Name(), err))
		}
	}

	if d.backup == nil {
		return SendResult{}, multierr.Append(errs, ErrNoBackup)
	}

	html, err := d.templates.Fallback(job.Snapshot)
	if err != nil {
		return SendResult{}, multierr.Append(errs, fmt.Errorf("render fallback: %w", err))
	}
	msg := Message{To: job.CustomerEmail, Subject: subject, HTML: html, Attachments: attachments}
	result, err := d.send(ctx, d.backup, msg)
	if err != nil {
		return SendResult{}, multierr.Append(errs, fmt.Errorf("%s: %w", d.backup.Name(), err))
	}

	d.breaker.RecordSuccess()
	return result, nil
}

func (d *Dispatcher) send(ctx context.Context, t Transport, msg Message) (SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	ctx, span := util.StartSpan(ctx, "Transport.Send."+t.Name())
	defer span.End()

	result, err := t.Send(ctx, msg)
	if err != nil {
		span.RecordError(err)
		return SendResult{}, err
	}
	if result.Provider == "" {
		result.Provider = t.Name()
	}
	return result, nil
}

type renderResult struct {
	pdf []byte
	err error
}

// renderInvoice returns nil when the PDF is unavailable; the message goes
// out without an attachment.
func (d *Dispatcher) renderInvoice(ctx context.Context, snap models.OrderSnapshot, logger *zap.Logger) []byte {
	if d.invoices == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.PDFTimeout)
	defer cancel()

	done := make(chan renderResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- renderResult{err: fmt.Errorf("invoice renderer panicked: %v", r)}
			}
		}()
		pdf, err := d.invoices.Invoice(ctx, snap)
		done <- renderResult{pdf: pdf, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			logger.Warn("Invoice generation failed, sending without attachment", zap.Error(r.err))
			return nil
		}
		return r.pdf
	case <-ctx.Done():
		logger.Warn("Invoice generation timed out, sending without attachment", zap.Error(ctx.Err()))
		return nil
	}
}

// IsRetryable reports whether the queue should schedule another attempt
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrDeadLettered)
}

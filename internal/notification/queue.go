package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

// Processor runs one attempt of a job. Dispatcher implements it.
type Processor interface {
	Process(ctx context.Context, job models.NotificationJob, attemptsMade int) error
}

// ResumeSource lists persisted jobs that still have attempts left
type ResumeSource interface {
	ListResumableDeliveries(ctx context.Context, maxAttempts int) ([]models.DeliveryStatus, error)
}

// QueueConfig sizes the worker pool and the retry schedule
type QueueConfig struct {
	Workers      int
	Size         int
	MaxAttempts  int
	RetryInitial time.Duration
	RetryMax     time.Duration
}

type task struct {
	job          models.NotificationJob
	attemptsMade int
}

// QueueOption customises a Queue
type QueueOption func(*Queue)

// WithBackOff replaces the exponential retry schedule
func WithBackOff(newBackOff func() backoff.BackOff) QueueOption {
	return func(q *Queue) {
		q.newBackOff = newBackOff
	}
}

// Queue is an in-process job queue: a bounded channel drained by a fixed
// set of workers. Failed attempts are re-submitted after a backoff delay
// until the processor dead-letters them.
type Queue struct {
	cfg        QueueConfig
	processor  Processor
	tasks      chan task
	newBackOff func() backoff.BackOff
	logger     *zap.Logger

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}

	group  *errgroup.Group
	cancel context.CancelFunc
}

func NewQueue(cfg QueueConfig, processor Processor, opts ...QueueOption) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}

	q := &Queue{
		cfg:       cfg,
		processor: processor,
		tasks:     make(chan task, cfg.Size),
		logger:    util.Named("notification-queue"),
		timers:    make(map[*time.Timer]struct{}),
	}
	q.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		if cfg.RetryInitial > 0 {
			b.InitialInterval = cfg.RetryInitial
		}
		if cfg.RetryMax > 0 {
			b.MaxInterval = cfg.RetryMax
		}
		b.MaxElapsedTime = 0
		return b
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the workers. Jobs run with ctx until Stop.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		g.Go(func() error {
			q.work(gctx)
			return nil
		})
	}
	q.group = g
	q.logger.Info("Notification queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop refuses new jobs, cancels pending retries and waits for the buffered
// jobs to drain. When ctx expires first, in-flight jobs are cancelled.
// Jobs dropped this way stay persisted and are picked up by Resume.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = nil
	close(q.tasks)
	q.mu.Unlock()

	if q.group == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = q.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// Enqueue accepts a job without blocking and returns its id
func (q *Queue) Enqueue(job models.NotificationJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Type == "" {
		job.Type = models.JobTypeOrderConfirmation
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	if err := q.submit(task{job: job}); err != nil {
		return "", err
	}
	util.NotificationsEnqueuedTotal.Inc()
	return job.ID, nil
}

// Resubmit queues a job that has already used attemptsMade attempts
func (q *Queue) Resubmit(job models.NotificationJob, attemptsMade int) error {
	return q.submit(task{job: job, attemptsMade: attemptsMade})
}

// Resume re-submits persisted jobs that were interrupted or are awaiting a
// retry. It returns how many were queued.
func (q *Queue) Resume(ctx context.Context, source ResumeSource) (int, error) {
	records, err := source.ListResumableDeliveries(ctx, q.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to list resumable deliveries: %w", err)
	}

	resumed := 0
	for _, rec := range records {
		var job models.NotificationJob
		if err := json.Unmarshal(rec.Payload, &job); err != nil {
			q.logger.Error("Skipping delivery with unreadable payload",
				zap.String("job_id", rec.JobID), zap.Error(err))
			continue
		}
		if err := q.Resubmit(job, rec.Attempts); err != nil {
			return resumed, fmt.Errorf("failed to resume job %s: %w", rec.JobID, err)
		}
		resumed++
	}

	if resumed > 0 {
		q.logger.Info("Resumed notification jobs", zap.Int("count", resumed))
	}
	return resumed, nil
}

func (q *Queue) submit(t task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) work(ctx context.Context) {
	for t := range q.tasks {
		q.handle(ctx, t)
	}
}

func (q *Queue) handle(ctx context.Context, t task) {
	logger := q.logger.With(
		zap.Int64("order_id", t.job.OrderID),
		zap.String("job_id", t.job.ID),
		zap.Int("attempt", t.attemptsMade+1),
	)

	err := q.process(ctx, t)
	if !IsRetryable(err) {
		return
	}
	if ctx.Err() != nil {
		logger.Warn("Queue stopping, job left for resume", zap.Error(err))
		return
	}
	if t.attemptsMade+1 >= q.cfg.MaxAttempts {
		logger.Error("Job exhausted its attempts without being dead-lettered", zap.Error(err))
		return
	}

	q.scheduleRetry(task{job: t.job, attemptsMade: t.attemptsMade + 1}, logger)
}

func (q *Queue) process(ctx context.Context, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notification job panicked: %v", r)
		}
	}()
	return q.processor.Process(ctx, t.job, t.attemptsMade)
}

func (q *Queue) scheduleRetry(t task, logger *zap.Logger) {
	delay := q.retryDelay(t.attemptsMade)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()

		switch err := q.submit(t); {
		case errors.Is(err, ErrQueueFull):
			logger.Warn("Queue full, postponing retry")
			q.scheduleRetry(t, logger)
		case err != nil:
			logger.Warn("Retry dropped", zap.Error(err))
		}
	})
	q.timers[timer] = struct{}{}

	logger.Info("Retry scheduled", zap.Duration("delay", delay))
}

// retryDelay is the backoff interval preceding attempt attemptsMade+1
func (q *Queue) retryDelay(attemptsMade int) time.Duration {
	b := q.newBackOff()
	b.Reset()

	delay := time.Duration(0)
	for i := 0; i < attemptsMade; i++ {
		delay = b.NextBackOff()
	}
	if delay == backoff.Stop || delay <= 0 {
		delay = q.cfg.RetryMax
	}
	return delay
}

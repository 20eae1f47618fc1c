package worker

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// JobQueue accepts notification jobs
type JobQueue interface {
	Enqueue(job models.NotificationJob) (string, error)
}

// DeadLetterWorker consumes the dead-letter topic. Every entry is logged
// for manual follow-up; with replay enabled the job is queued again under a
// new id and a fresh attempt budget.
type DeadLetterWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	queue        JobQueue
	replay       bool
	logger       *zap.Logger
}

// NewDeadLetterWorker creates a new dead-letter worker
func NewDeadLetterWorker(consumer *broker.Consumer, queue JobQueue, replay bool) *DeadLetterWorker {
	w := &DeadLetterWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		queue:        queue,
		replay:       replay,
		logger:       util.Named("dead-letter-worker"),
	}
	w.eventHandler.OnDeadLetter(w.HandleDeadLetter)
	return w
}

// Start starts the worker
func (w *DeadLetterWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting dead-letter worker", zap.Bool("replay", w.replay))
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *DeadLetterWorker) Stop() error {
	w.logger.Info("Stopping dead-letter worker")
	return w.consumer.Close()
}

// HandleDeadLetter processes one dead-lettered confirmation
func (w *DeadLetterWorker) HandleDeadLetter(ctx context.Context, event *models.DeadLetterEvent) error {
	_, span := util.StartSpan(ctx, "DeadLetterWorker.HandleDeadLetter")
	defer span.End()

	logger := w.logger.With(
		zap.Int64("order_id", event.OrderID),
		zap.String("job_id", event.OriginalJobID),
		zap.Int("attempts", event.Attempts),
		zap.Time("failed_at", event.FailedAt),
	)
	logger.Error("Order confirmation needs manual attention", zap.String("final_error", event.FinalError))

	if !w.replay {
		return nil
	}

	job := event.Job
	job.ID = ""
	job.EnqueuedAt = time.Time{}
	newID, err := w.queue.Enqueue(job)
	if err != nil {
		return fmt.Errorf("failed to replay job %s: %w", event.OriginalJobID, err)
	}

	logger.Info("Dead-lettered confirmation replayed", zap.String("replay_job_id", newID))
	return nil
}

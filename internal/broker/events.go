package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/notification"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DeadLetterPublisher is the Kafka-backed notification.DeadLetterSink
type DeadLetterPublisher struct {
	producer *Producer
}

// NewDeadLetterPublisher creates a new dead-letter publisher
func NewDeadLetterPublisher(producer *Producer) *DeadLetterPublisher {
	return &DeadLetterPublisher{producer: producer}
}

var _ notification.DeadLetterSink = (*DeadLetterPublisher)(nil)

// Add publishes a dead-lettered job keyed by its order
func (dp *DeadLetterPublisher) Add(ctx context.Context, entry notification.DeadLetterEntry) error {
	event := &models.DeadLetterEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeNotificationDead,
			Timestamp: entry.FailedAt,
		},
		OriginalJobID: entry.OriginalJobID,
		OrderID:       entry.Job.OrderID,
		FinalError:    entry.FinalError,
		Attempts:      entry.Attempts,
		FailedAt:      entry.FailedAt,
		Job:           entry.Job,
	}

	key := fmt.Sprintf("order-%d", entry.Job.OrderID)
	return dp.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes consumed events to registered handlers
type EventHandler struct {
	onDeadLetter func(context.Context, *models.DeadLetterEvent) error
	logger       *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Named("event-handler")}
}

// OnDeadLetter registers a handler for dead-lettered notification events
func (eh *EventHandler) OnDeadLetter(handler func(context.Context, *models.DeadLetterEvent) error) {
	eh.onDeadLetter = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeNotificationDead:
		if eh.onDeadLetter != nil {
			var event models.DeadLetterEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal dead-letter event: %w", err)
			}
			return eh.onDeadLetter(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}

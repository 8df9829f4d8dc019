package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"review-cache/internal/models"
	"review-cache/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing review domain events
type EventPublisher struct {
	producer *Producer
	origin   string
}

// NewEventPublisher creates a new event publisher. origin identifies this
// instance on every event it emits.
func NewEventPublisher(producer *Producer, origin string) *EventPublisher {
	return &EventPublisher{producer: producer, origin: origin}
}

func (ep *EventPublisher) base(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Origin:    ep.origin,
	}
}

func productKey(productID string) string {
	return "product-" + productID
}

// PublishReviewCreated publishes ReviewCreated event
func (ep *EventPublisher) PublishReviewCreated(ctx context.Context, productID string, review models.Review) error {
	event := &models.ReviewCreatedEvent{
		BaseEvent: ep.base(models.EventTypeReviewCreated),
		ProductID: productID,
		Review:    review,
	}
	return ep.producer.PublishEvent(ctx, productKey(productID), event)
}

// PublishReviewUpdated publishes ReviewUpdated event
func (ep *EventPublisher) PublishReviewUpdated(ctx context.Context, productID string, patch models.ReviewPatch) error {
	event := &models.ReviewUpdatedEvent{
		BaseEvent: ep.base(models.EventTypeReviewUpdated),
		ProductID: productID,
		Patch:     patch,
	}
	return ep.producer.PublishEvent(ctx, productKey(productID), event)
}

// PublishReviewDeleted publishes ReviewDeleted event
func (ep *EventPublisher) PublishReviewDeleted(ctx context.Context, productID, reviewID string) error {
	event := &models.ReviewDeletedEvent{
		BaseEvent: ep.base(models.EventTypeReviewDeleted),
		ProductID: productID,
		ReviewID:  reviewID,
	}
	return ep.producer.PublishEvent(ctx, productKey(productID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onReviewCreated func(context.Context, *models.ReviewCreatedEvent) error
	onReviewUpdated func(context.Context, *models.ReviewUpdatedEvent) error
	onReviewDeleted func(context.Context, *models.ReviewDeletedEvent) error
	logger          *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnReviewCreated registers a handler for ReviewCreated events
func (eh *EventHandler) OnReviewCreated(handler func(context.Context, *models.ReviewCreatedEvent) error) {
	eh.onReviewCreated = handler
}

// OnReviewUpdated registers a handler for ReviewUpdated events
func (eh *EventHandler) OnReviewUpdated(handler func(context.Context, *models.ReviewUpdatedEvent) error) {
	eh.onReviewUpdated = handler
}

// OnReviewDeleted registers a handler for ReviewDeleted events
func (eh *EventHandler) OnReviewDeleted(handler func(context.Context, *models.ReviewDeletedEvent) error) {
	eh.onReviewDeleted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeReviewCreated:
		if eh.onReviewCreated != nil {
			var event models.ReviewCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReviewCreated event: %w", err)
			}
			return eh.onReviewCreated(ctx, &event)
		}

	case models.EventTypeReviewUpdated:
		if eh.onReviewUpdated != nil {
			var event models.ReviewUpdatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReviewUpdated event: %w", err)
			}
			return eh.onReviewUpdated(ctx, &event)
		}

	case models.EventTypeReviewDeleted:
		if eh.onReviewDeleted != nil {
			var event models.ReviewDeletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReviewDeleted event: %w", err)
			}
			return eh.onReviewDeleted(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}

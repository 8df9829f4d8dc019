package worker

import (
	"context"
	"fmt"

	"review-cache/internal/broker"
	"review-cache/internal/cache"
	"review-cache/internal/models"
	"review-cache/internal/util"

	"go.uber.org/zap"
)

// EventLedger remembers which events a consumer group already applied
type EventLedger interface {
	IsEventProcessed(ctx context.Context, consumerGroup, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, consumerGroup, eventID, eventType string) error
}

// ReviewEventWorker applies review events from other writers to cached
// product slices
type ReviewEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *cache.Store
	ledger       EventLedger
	group        string
	origin       string
	logger       *zap.Logger
}

// NewReviewEventWorker creates a new review event worker. Ledger entries are
// scoped to group, the consumer group the worker reads with. Events carrying
// origin were emitted by this instance and are skipped.
func NewReviewEventWorker(
	consumer *broker.Consumer,
	store *cache.Store,
	ledger EventLedger,
	group string,
	origin string,
) *ReviewEventWorker {
	w := &ReviewEventWorker{
		consumer: consumer,
		store:    store,
		ledger:   ledger,
		group:    group,
		origin:   origin,
		logger:   util.GetLogger(),
	}

	w.eventHandler = broker.NewEventHandler()
	w.eventHandler.OnReviewCreated(w.HandleReviewCreated)
	w.eventHandler.OnReviewUpdated(w.HandleReviewUpdated)
	w.eventHandler.OnReviewDeleted(w.HandleReviewDeleted)

	return w
}

// Start starts the worker
func (w *ReviewEventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting review event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReviewEventWorker) Stop() error {
	w.logger.Info("Stopping review event worker")
	return w.consumer.Close()
}

// HandleReviewCreated adds the review to a cached slice
func (w *ReviewEventWorker) HandleReviewCreated(ctx context.Context, event *models.ReviewCreatedEvent) error {
	review := event.Review
	if review.ProductID == "" {
		review.ProductID = event.ProductID
	}
	return w.apply(ctx, event.BaseEvent, event.ProductID, cache.AddReview{ProductID: event.ProductID, Review: review})
}

// HandleReviewUpdated patches a review in a cached slice
func (w *ReviewEventWorker) HandleReviewUpdated(ctx context.Context, event *models.ReviewUpdatedEvent) error {
	return w.apply(ctx, event.BaseEvent, event.ProductID, cache.UpdateReview{ProductID: event.ProductID, Review: event.Patch})
}

// HandleReviewDeleted removes a review from a cached slice
func (w *ReviewEventWorker) HandleReviewDeleted(ctx context.Context, event *models.ReviewDeletedEvent) error {
	return w.apply(ctx, event.BaseEvent, event.ProductID, cache.DeleteReview{ProductID: event.ProductID, ReviewID: event.ReviewID})
}

func (w *ReviewEventWorker) apply(ctx context.Context, base models.BaseEvent, productID string, action cache.Action) error {
	ctx, span := util.StartSpan(ctx, "ReviewEventWorker.apply")
	defer span.End()

	if base.Origin != "" && base.Origin == w.origin {
		util.ReviewEventsTotal.WithLabelValues(base.EventType, "own").Inc()
		return nil
	}

	if base.EventID != "" && w.ledger != nil {
		processed, err := w.ledger.IsEventProcessed(ctx, w.group, base.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event ledger: %w", err)
		}
		if processed {
			w.logger.Debug("Event already processed, skipping", zap.String("event_id", base.EventID))
			util.ReviewEventsTotal.WithLabelValues(base.EventType, "duplicate").Inc()
			return nil
		}
	}

	if w.store.IsCached(productID) {
		w.store.Dispatch(action)
		util.ReviewEventsTotal.WithLabelValues(base.EventType, "applied").Inc()
		w.logger.Debug("Applied review event",
			zap.String("event_id", base.EventID),
			zap.String("event_type", base.EventType),
			zap.String("product_id", productID))
	} else {
		util.ReviewEventsTotal.WithLabelValues(base.EventType, "uncached").Inc()
	}

	if base.EventID != "" && w.ledger != nil {
		if err := w.ledger.MarkEventProcessed(ctx, w.group, base.EventID, base.EventType); err != nil {
			return fmt.Errorf("failed to mark event processed: %w", err)
		}
	}
	return nil
}

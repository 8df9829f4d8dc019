package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"review-cache/internal/cache"
	"review-cache/internal/models"
	"review-cache/internal/reviewclient"
	"review-cache/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrClientNotReady is returned before the review client has been bootstrapped
	ErrClientNotReady = errors.New("review client not ready")
	// ErrOffline is returned when the review service is unreachable and offline mode is off
	ErrOffline = errors.New("review service offline")
	// ErrInvalidInput is returned for requests that fail validation
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateSubmission is returned when an idempotency key was already used
	ErrDuplicateSubmission = errors.New("duplicate submission")
)

// EventPublisher publishes review domain events
type EventPublisher interface {
	PublishReviewCreated(ctx context.Context, productID string, review models.Review) error
	PublishReviewUpdated(ctx context.Context, productID string, patch models.ReviewPatch) error
	PublishReviewDeleted(ctx context.Context, productID, reviewID string) error
}

// CacheInvalidator tells other instances to drop a product slice
type CacheInvalidator interface {
	PublishInvalidation(ctx context.Context, productID, origin string) error
}

// IdempotencyStore guards review submissions against double posts
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// ReviewServiceConfig holds review orchestration settings
type ReviewServiceConfig struct {
	PageSize       int
	Origin         string
	IdempotencyTTL time.Duration
}

// ReviewService loads and mutates product reviews through the cache store
type ReviewService struct {
	store       *cache.Store
	publisher   EventPublisher
	invalidator CacheInvalidator
	idempotency IdempotencyStore
	cfg         ReviewServiceConfig
	group       singleflight.Group
	logger      *zap.Logger
}

// NewReviewService creates a new review service. Publisher, invalidator and
// idempotency store are optional.
func NewReviewService(
	store *cache.Store,
	publisher EventPublisher,
	invalidator CacheInvalidator,
	idempotency IdempotencyStore,
	cfg ReviewServiceConfig,
) *ReviewService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &ReviewService{
		store:       store,
		publisher:   publisher,
		invalidator: invalidator,
		idempotency: idempotency,
		cfg:         cfg,
		logger:      util.GetLogger(),
	}
}

// GetProductReviews returns the reviews of a product, fetching them when the
// cached slice is missing, stale or force is set
func (s *ReviewService) GetProductReviews(ctx context.Context, productID string, force bool) (models.ProductReviewData, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.GetProductReviews")
	defer span.End()

	if productID == "" {
		return models.ProductReviewData{Reviews: []models.Review{}}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}

	cfg := s.store.Config()
	if !force {
		if age, ok := s.store.CacheAge(productID); ok && age <= cfg.CacheTimeout {
			util.CacheHitsTotal.WithLabelValues("hit").Inc()
			return s.store.GetEntityData(productID), nil
		}
	}

	if !s.store.State().IsOnline {
		if cfg.EnableOfflineMode {
			util.CacheHitsTotal.WithLabelValues("offline").Inc()
			return s.store.GetEntityData(productID), nil
		}
		return models.ProductReviewData{Reviews: []models.Review{}}, ErrOffline
	}

	util.CacheHitsTotal.WithLabelValues("miss").Inc()
	// The shared fetch outlives any single caller; the client timeout bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(productID, func() (interface{}, error) {
		return nil, s.fetch(fetchCtx, productID)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("Coalesced review fetch", zap.String("product_id", productID))
		}
		return s.store.GetEntityData(productID), res.Err
	case <-ctx.Done():
		return s.store.GetEntityData(productID), ctx.Err()
	}
}

// fetch loads the first page of reviews and merges it into the cached slice
func (s *ReviewService) fetch(ctx context.Context, productID string) error {
	ctx, span := util.StartSpan(ctx, "ReviewService.fetch")
	defer span.End()

	client := s.store.State().Client
	if client == nil {
		return ErrClientNotReady
	}

	s.store.Dispatch(cache.FetchStart{ProductID: productID})

	start := time.Now()
	page, err := client.GetReviews(ctx, models.GetReviewsParams{
		ProductIDs: []string{productID},
		Page:       1,
		PageSize:   s.cfg.PageSize,
	})
	util.ReviewFetchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.ReviewFetchTotal.WithLabelValues("error").Inc()
		s.store.Dispatch(cache.FetchError{ProductID: productID, Error: err.Error()})
		s.logger.Error("Failed to fetch reviews",
			zap.String("product_id", productID),
			zap.Error(err))
		return fmt.Errorf("failed to fetch reviews: %w", err)
	}

	var incoming []models.Review
	if page != nil {
		incoming = page.List
	}

	var existing []models.Review
	if d := s.store.State().Products[productID]; d != nil {
		existing = d.Reviews
	}

	merged := models.MergeReviews(existing, incoming)
	stats := models.ComputeStats(merged)
	s.store.Dispatch(cache.FetchSuccess{ProductID: productID, Reviews: merged, Stats: &stats})

	util.ReviewFetchTotal.WithLabelValues("success").Inc()
	s.logger.Debug("Fetched reviews",
		zap.String("product_id", productID),
		zap.Int("incoming", len(incoming)),
		zap.Int("cached", len(merged)))
	return nil
}

// CreateReview submits a review. When the product is cached the review is
// shown immediately under a temporary id and replaced by the confirmed copy,
// or rolled back on failure. Uncached products are left alone so the next
// read fetches the full list.
func (s *ReviewService) CreateReview(ctx context.Context, productID string, input models.CreateReviewRequest, idempotencyKey string) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.CreateReview")
	defer span.End()

	if input.ProductID == "" {
		input.ProductID = productID
	}
	if err := validateCreate(productID, input); err != nil {
		util.ReviewMutationsTotal.WithLabelValues("create", "invalid").Inc()
		return nil, err
	}

	client := s.store.State().Client
	if client == nil {
		return nil, ErrClientNotReady
	}
	if !s.store.State().IsOnline {
		return nil, ErrOffline
	}

	if idempotencyKey != "" && s.idempotency != nil {
		claimed, err := s.idempotency.ClaimIdempotencyKey(ctx, idempotencyKey, s.cfg.IdempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if !claimed {
			s.logger.Info("Duplicate review submission detected",
				zap.String("product_id", productID),
				zap.String("idempotency_key", idempotencyKey))
			util.ReviewMutationsTotal.WithLabelValues("create", "duplicate").Inc()
			return nil, ErrDuplicateSubmission
		}
	}

	now := s.store.Clock().Now()
	optimistic := models.Review{
		ID:            "temp-" + uuid.New().String(),
		ProductID:     productID,
		Rating:        input.Rating,
		Author:        input.Author,
		AuthorEmail:   input.AuthorEmail,
		AuthorCountry: input.AuthorCountry,
		Title:         input.Title,
		Content:       input.Content,
		Verified:      models.NotVerified,
		Media:         input.Media,
		CommentedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	cached := s.store.IsCached(productID)
	if cached {
		s.store.Dispatch(cache.AddReview{ProductID: productID, Review: optimistic})
	}

	result, err := client.CreateReview(ctx, input)
	if err == nil {
		err = resultError("create_review", result)
	}
	if err != nil {
		if cached {
			s.store.Dispatch(cache.DeleteReview{ProductID: productID, ReviewID: optimistic.ID})
			s.store.Dispatch(cache.SetError{ProductID: productID, Error: err.Error()})
		}
		if idempotencyKey != "" && s.idempotency != nil {
			if relErr := s.idempotency.ReleaseIdempotencyKey(ctx, idempotencyKey); relErr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.Error(relErr))
			}
		}
		util.ReviewMutationsTotal.WithLabelValues("create", "error").Inc()
		s.logger.Error("Failed to create review",
			zap.String("product_id", productID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	confirmed := optimistic
	if result.Data != nil && result.Data.ID != "" {
		confirmed = *result.Data
		if confirmed.ProductID == "" {
			confirmed.ProductID = productID
		}
		if cached {
			s.store.Dispatch(cache.DeleteReview{ProductID: productID, ReviewID: optimistic.ID})
			s.store.Dispatch(cache.AddReview{ProductID: productID, Review: confirmed})
		}
	}

	util.ReviewMutationsTotal.WithLabelValues("create", "success").Inc()
	s.logger.Info("Review created",
		zap.String("product_id", productID),
		zap.String("review_id", confirmed.ID))

	if s.publisher != nil {
		if err := s.publisher.PublishReviewCreated(ctx, productID, confirmed); err != nil {
			s.logger.Error("Failed to publish review created event", zap.Error(err))
		}
	}
	s.invalidate(ctx, productID)

	return &confirmed, nil
}

// UpdateReview applies a local edit to a cached review
func (s *ReviewService) UpdateReview(ctx context.Context, productID string, patch models.ReviewPatch) error {
	ctx, span := util.StartSpan(ctx, "ReviewService.UpdateReview")
	defer span.End()

	if productID == "" || patch.ID == "" {
		return fmt.Errorf("%w: product id and review id are required", ErrInvalidInput)
	}
	if patch.Rating != nil && (*patch.Rating < models.MinRating || *patch.Rating > models.MaxRating) {
		return fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidInput, models.MinRating, models.MaxRating)
	}

	if patch.UpdatedAt == nil {
		now := s.store.Clock().Now()
		patch.UpdatedAt = &now
	}
	s.store.Dispatch(cache.UpdateReview{ProductID: productID, Review: patch})
	util.ReviewMutationsTotal.WithLabelValues("update", "success").Inc()

	if s.publisher != nil {
		if err := s.publisher.PublishReviewUpdated(ctx, productID, patch); err != nil {
			s.logger.Error("Failed to publish review updated event", zap.Error(err))
		}
	}
	s.invalidate(ctx, productID)
	return nil
}

// DeleteReview removes a review remotely and then from the cache
func (s *ReviewService) DeleteReview(ctx context.Context, productID, reviewID string) error {
	ctx, span := util.StartSpan(ctx, "ReviewService.DeleteReview")
	defer span.End()

	if productID == "" || reviewID == "" {
		return fmt.Errorf("%w: product id and review id are required", ErrInvalidInput)
	}

	client := s.store.State().Client
	if client == nil {
		return ErrClientNotReady
	}
	if !s.store.State().IsOnline {
		return ErrOffline
	}

	result, err := client.DeleteReview(ctx, reviewID)
	if err == nil {
		err = resultError("delete_review", result)
	}
	if err != nil {
		s.store.Dispatch(cache.SetError{ProductID: productID, Error: err.Error()})
		util.ReviewMutationsTotal.WithLabelValues("delete", "error").Inc()
		s.logger.Error("Failed to delete review",
			zap.String("product_id", productID),
			zap.String("review_id", reviewID),
			zap.Error(err))
		return fmt.Errorf("failed to delete review: %w", err)
	}

	s.store.Dispatch(cache.DeleteReview{ProductID: productID, ReviewID: reviewID})
	util.ReviewMutationsTotal.WithLabelValues("delete", "success").Inc()
	s.logger.Info("Review deleted",
		zap.String("product_id", productID),
		zap.String("review_id", reviewID))

	if s.publisher != nil {
		if err := s.publisher.PublishReviewDeleted(ctx, productID, reviewID); err != nil {
			s.logger.Error("Failed to publish review deleted event", zap.Error(err))
		}
	}
	s.invalidate(ctx, productID)
	return nil
}

// BulkAddReviews merges a batch of reviews into the cached slice
func (s *ReviewService) BulkAddReviews(productID string, reviews []models.Review) error {
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	for _, r := range reviews {
		if r.ID == "" {
			return fmt.Errorf("%w: every review needs an id", ErrInvalidInput)
		}
	}
	s.store.Dispatch(cache.BulkAddReviews{ProductID: productID, Reviews: reviews})
	util.ReviewMutationsTotal.WithLabelValues("bulk_add", "success").Inc()
	return nil
}

func (s *ReviewService) invalidate(ctx context.Context, productID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.PublishInvalidation(ctx, productID, s.cfg.Origin); err != nil {
		s.logger.Warn("Failed to publish cache invalidation",
			zap.String("product_id", productID),
			zap.Error(err))
		return
	}
	util.InvalidationsTotal.WithLabelValues("published").Inc()
}

func validateCreate(productID string, input models.CreateReviewRequest) error {
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if input.ProductID != productID {
		return fmt.Errorf("%w: product id mismatch", ErrInvalidInput)
	}
	if input.Rating < models.MinRating || input.Rating > models.MaxRating {
		return fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidInput, models.MinRating, models.MaxRating)
	}
	if strings.TrimSpace(input.Author) == "" {
		return fmt.Errorf("%w: author is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	return nil
}

// resultError converts a rejected mutation envelope into an error
func resultError(operation string, result *models.MutationResult) error {
	if result == nil {
		return fmt.Errorf("review service %s returned no result", operation)
	}
	if !result.OK() {
		return &reviewclient.ApplicationError{Operation: operation, Code: result.Code, Message: result.Message}
	}
	return nil
}

package worker

import (
	"context"

	"review-cache/internal/cache"
	"review-cache/internal/redisclient"
	"review-cache/internal/util"

	"go.uber.org/zap"
)

// NewInvalidationHandler returns a handler that clears the local cache for
// invalidations sent by other instances
func NewInvalidationHandler(store *cache.Store, origin string) redisclient.InvalidationHandler {
	logger := util.GetLogger()
	return func(_ context.Context, inv redisclient.Invalidation) {
		if inv.Origin == origin {
			return
		}
		util.InvalidationsTotal.WithLabelValues("received").Inc()
		logger.Debug("Applying remote invalidation",
			zap.String("product_id", inv.ProductID),
			zap.String("origin", inv.Origin))
		store.Dispatch(cache.ClearCache{ProductID: inv.ProductID})
	}
}

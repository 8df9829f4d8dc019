package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"review-cache/internal/cache"
	"review-cache/internal/models"
	"review-cache/internal/reviewclient"
	"review-cache/internal/service"
	"review-cache/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	cache   cache.Facade
	reviews *service.ReviewService
}

// NewHandler creates a new HTTP handler
func NewHandler(facade cache.Facade, reviews *service.ReviewService) *Handler {
	return &Handler{
		cache:   facade,
		reviews: reviews,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/cache/status", h.cacheStatus)
		v1.DELETE("/cache", h.clearAllCache)
		v1.DELETE("/cache/products/:id", h.clearProductCache)
		v1.POST("/cache/reset", h.resetAll)

		products := v1.Group("/products/:id")
		products.GET("/reviews", h.getReviews)
		products.GET("/reviews/cache", h.getCachedReviews)
		products.POST("/reviews", h.createReview)
		products.POST("/reviews/bulk", h.bulkAddReviews)
		products.PATCH("/reviews/:reviewId", h.updateReview)
		products.DELETE("/reviews/:reviewId", h.deleteReview)
		products.POST("/refresh", h.refreshProduct)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the review client is bootstrapped
func (h *Handler) readinessCheck(c *gin.Context) {
	status := h.cache.Status()
	if !status.ClientReady {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "not ready",
			"client_error": status.ClientError,
			"time":         time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"online": status.IsOnline,
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) cacheStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Status())
}

// getReviews returns a product's reviews, fetching them when needed
func (h *Handler) getReviews(c *gin.Context) {
	productID := c.Param("id")
	force, _ := strconv.ParseBool(c.DefaultQuery("refresh", "false"))

	data, err := h.reviews.GetProductReviews(c.Request.Context(), productID, force)
	if err != nil {
		writeError(c, "Failed to load reviews", err)
		return
	}

	c.JSON(http.StatusOK, data)
}

// getCachedReviews reads the cached slice without touching the review service
func (h *Handler) getCachedReviews(c *gin.Context) {
	productID := c.Param("id")

	resp := gin.H{
		"data":       h.cache.GetEntityData(productID),
		"is_loading": h.cache.IsLoading(productID),
		"has_error":  h.cache.HasError(productID),
		"is_cached":  h.cache.IsCached(productID),
	}
	if age, ok := h.cache.CacheAge(productID); ok {
		resp["cache_age_ms"] = age.Milliseconds()
	}

	c.JSON(http.StatusOK, resp)
}

// createReview handles review submission
func (h *Handler) createReview(c *gin.Context) {
	var req models.CreateReviewRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	review, err := h.reviews.CreateReview(c.Request.Context(), c.Param("id"), req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		writeError(c, "Failed to create review", err)
		return
	}

	c.JSON(http.StatusCreated, review)
}

type bulkAddRequest struct {
	Reviews []models.Review `json:"reviews" binding:"required"`
}

func (h *Handler) bulkAddReviews(c *gin.Context) {
	var req bulkAddRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	productID := c.Param("id")
	if err := h.reviews.BulkAddReviews(productID, req.Reviews); err != nil {
		writeError(c, "Failed to add reviews", err)
		return
	}

	c.JSON(http.StatusOK, h.cache.GetEntityData(productID))
}

func (h *Handler) updateReview(c *gin.Context) {
	var patch models.ReviewPatch

	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	patch.ID = c.Param("reviewId")

	productID := c.Param("id")
	if err := h.reviews.UpdateReview(c.Request.Context(), productID, patch); err != nil {
		writeError(c, "Failed to update review", err)
		return
	}

	c.JSON(http.StatusOK, h.cache.GetEntityData(productID))
}

func (h *Handler) deleteReview(c *gin.Context) {
	productID := c.Param("id")

	if err := h.reviews.DeleteReview(c.Request.Context(), productID, c.Param("reviewId")); err != nil {
		writeError(c, "Failed to delete review", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) refreshProduct(c *gin.Context) {
	h.cache.RefreshEntity(c.Param("id"))
	c.Status(http.StatusAccepted)
}

func (h *Handler) clearProductCache(c *gin.Context) {
	h.cache.ClearEntityCache(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) clearAllCache(c *gin.Context) {
	h.cache.ClearAllCache()
	c.Status(http.StatusNoContent)
}

func (h *Handler) resetAll(c *gin.Context) {
	h.cache.ResetAllData()
	c.Status(http.StatusNoContent)
}

// writeError maps service errors to HTTP statuses
func writeError(c *gin.Context, message string, err error) {
	c.JSON(statusFor(err), gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDuplicateSubmission):
		return http.StatusConflict
	case errors.Is(err, service.ErrOffline),
		errors.Is(err, service.ErrClientNotReady),
		errors.Is(err, reviewclient.ErrCircuitOpen),
		errors.Is(err, reviewclient.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

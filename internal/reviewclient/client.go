package reviewclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"review-cache/internal/models"
	"review-cache/internal/util"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ReviewClient is the contract of the remote review service as seen through
// the same-origin proxy
type ReviewClient interface {
	GetReviews(ctx context.Context, params models.GetReviewsParams) (*models.ReviewPage, error)
	CreateReview(ctx context.Context, req models.CreateReviewRequest) (*models.MutationResult, error)
	DeleteReview(ctx context.Context, id string) (*models.MutationResult, error)
}

// ErrCircuitOpen is returned when the breaker rejects a call
var ErrCircuitOpen = gobreaker.ErrOpenState

// ErrTooManyRequests is returned when the half-open breaker is saturated
var ErrTooManyRequests = gobreaker.ErrTooManyRequests

// StatusError reports a non-2xx response from the review proxy
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("review service %s returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// ApplicationError reports a response envelope with a non-zero code
type ApplicationError struct {
	Operation string
	Code      int
	Message   string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("review service %s failed with code %d: %s", e.Operation, e.Code, e.Message)
}

// Config holds the review proxy client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration

	BreakerName         string
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerFailureRatio float64
	BreakerMinRequests  uint32
}

// DefaultConfig returns defaults for everything but the base URL
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:             baseURL,
		Timeout:             10 * time.Second,
		BreakerName:         "review-api",
		BreakerMaxRequests:  1,
		BreakerInterval:     60 * time.Second,
		BreakerTimeout:      30 * time.Second,
		BreakerFailureRatio: 0.5,
		BreakerMinRequests:  5,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HTTPClient talks to the review proxy over HTTP
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *zap.Logger
}

// New creates a new review proxy client
func New(cfg Config) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("review service base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid review service base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid review service base URL scheme: %q", base.Scheme)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "review-api"
	}

	logger := util.GetLogger()
	settings := gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			util.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
		IsSuccessful: isBreakerSuccess,
	}
	util.CircuitBreakerState.WithLabelValues(cfg.BreakerName).Set(0)

	return &HTTPClient{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:     logger,
	}, nil
}

// GetReviews lists reviews matching params
func (c *HTTPClient) GetReviews(ctx context.Context, params models.GetReviewsParams) (*models.ReviewPage, error) {
	ctx, span := util.StartSpan(ctx, "ReviewClient.GetReviews")
	defer span.End()

	body, err := c.do(ctx, "get_reviews", http.MethodGet, "/reviews", encodeParams(params), nil)
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope("get_reviews", body)
	if err != nil {
		return nil, err
	}

	var page models.ReviewPage
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &page); err != nil {
			return nil, fmt.Errorf("failed to decode review page: %w", err)
		}
	}
	if page.List == nil {
		page.List = []models.Review{}
	}
	return &page, nil
}

// CreateReview submits a review
func (c *HTTPClient) CreateReview(ctx context.Context, req models.CreateReviewRequest) (*models.MutationResult, error) {
	ctx, span := util.StartSpan(ctx, "ReviewClient.CreateReview")
	defer span.End()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal review: %w", err)
	}

	body, err := c.do(ctx, "create_review", http.MethodPost, "/reviews", nil, payload)
	if err != nil {
		return nil, err
	}
	return decodeResult("create_review", body)
}

// DeleteReview removes a review by id
func (c *HTTPClient) DeleteReview(ctx context.Context, id string) (*models.MutationResult, error) {
	ctx, span := util.StartSpan(ctx, "ReviewClient.DeleteReview")
	defer span.End()

	if id == "" {
		return nil, errors.New("review id is required")
	}

	body, err := c.do(ctx, "delete_review", http.MethodDelete, "/reviews/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeResult("delete_review", body)
}

// Ping checks that the review proxy is reachable. It bypasses the breaker so
// connectivity probes keep working while the breaker is open.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health", nil), http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("review service unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return &StatusError{Operation: "ping", StatusCode: resp.StatusCode}
	}
	return nil
}

// State returns the current breaker state
func (c *HTTPClient) State() gobreaker.State {
	return c.breaker.State()
}

func (c *HTTPClient) do(ctx context.Context, operation, method, path string, query url.Values, payload []byte) ([]byte, error) {
	start := time.Now()
	defer func() {
		util.ReviewAPILatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader = http.NoBody
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
		if err != nil {
			return nil, fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("review service %s request failed: %w", operation, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s response: %w", operation, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Operation: operation, StatusCode: resp.StatusCode, Body: string(data)}
		}
		return data, nil
	})

	util.ReviewAPIRequestsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
	if err != nil {
		c.logger.Debug("Review service call failed",
			zap.String("operation", operation),
			zap.Error(err))
		return nil, err
	}
	return body, nil
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func encodeParams(p models.GetReviewsParams) url.Values {
	q := url.Values{}
	if len(p.ProductIDs) > 0 {
		q.Set("product_ids", strings.Join(p.ProductIDs, ","))
	}
	if p.Keyword != "" {
		q.Set("keyword", p.Keyword)
	}
	if len(p.Ratings) > 0 {
		ratings := make([]string, len(p.Ratings))
		for i, r := range p.Ratings {
			ratings[i] = strconv.Itoa(r)
		}
		q.Set("ratings", strings.Join(ratings, ","))
	}
	if len(p.Sources) > 0 {
		q.Set("sources", strings.Join(p.Sources, ","))
	}
	if p.SortBy != "" {
		q.Set("sort_by", p.SortBy)
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(p.PageSize))
	}
	return q
}

func decodeEnvelope(operation string, body []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	if env.Code != 0 {
		return nil, &ApplicationError{Operation: operation, Code: env.Code, Message: env.Message}
	}
	return &env, nil
}

func decodeResult(operation string, body []byte) (*models.MutationResult, error) {
	var result models.MutationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return &result, nil
}

// isBreakerSuccess keeps client errors from tripping the breaker
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < 500
	}
	return errors.Is(err, context.Canceled)
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return strconv.Itoa(statusErr.StatusCode)
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
		return "circuit_open"
	}
	return "error"
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

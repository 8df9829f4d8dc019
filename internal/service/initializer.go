package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"review-cache/internal/cache"
	"review-cache/internal/models"
	"review-cache/internal/reviewclient"
	"review-cache/internal/util"

	"go.uber.org/zap"
)

// ErrAlreadyStarted is returned when bootstrap is requested a second time
var ErrAlreadyStarted = errors.New("client bootstrap already started")

// InitState is the bootstrap state machine position
type InitState int

const (
	InitIdle InitState = iota
	InitInitializing
	InitReady
	InitFailed
)

func (s InitState) String() string {
	switch s {
	case InitIdle:
		return "idle"
	case InitInitializing:
		return "initializing"
	case InitReady:
		return "ready"
	case InitFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ClientFactory builds a review client
type ClientFactory func(ctx context.Context) (reviewclient.ReviewClient, error)

// Initializer bootstraps the review client with retry and backoff, exactly
// once per store
type Initializer struct {
	store   *cache.Store
	factory ClientFactory
	clock   util.Clock
	logger  *zap.Logger

	mu       sync.Mutex
	state    InitState
	attempts int
	lastErr  error
	done     chan struct{}
}

// InitializerOption configures an Initializer
type InitializerOption func(*Initializer)

// WithClock replaces the clock used for retry delays
func WithClock(c util.Clock) InitializerOption {
	return func(i *Initializer) {
		i.clock = c
	}
}

// NewInitializer creates a new client initializer
func NewInitializer(store *cache.Store, factory ClientFactory, opts ...InitializerOption) *Initializer {
	i := &Initializer{
		store:   store,
		factory: factory,
		clock:   store.Clock(),
		logger:  util.GetLogger(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// State returns the current bootstrap state
func (i *Initializer) State() InitState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Attempts returns how many bootstrap attempts were made
func (i *Initializer) Attempts() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.attempts
}

// Done is closed once bootstrap reaches Ready or Failed
func (i *Initializer) Done() <-chan struct{} {
	return i.done
}

// Start runs the bootstrap in the background
func (i *Initializer) Start(ctx context.Context) {
	go func() {
		if err := i.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyStarted) {
			i.logger.Error("Review client bootstrap failed", zap.Error(err))
		}
	}()
}

// Run bootstraps the client and blocks until it is ready or has failed. The
// context cancels pending retries.
func (i *Initializer) Run(ctx context.Context) error {
	i.mu.Lock()
	if i.state != InitIdle {
		i.mu.Unlock()
		return ErrAlreadyStarted
	}
	i.state = InitInitializing
	i.mu.Unlock()

	defer close(i.done)

	cfg := i.store.Config()
	maxAttempts := cfg.RetryAttempts
	if !cfg.AutoRetry {
		maxAttempts = 1
	}

	i.store.Dispatch(cache.SetGlobalLoading{Loading: true})
	defer i.store.Dispatch(cache.SetGlobalLoading{Loading: false})

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return i.fail(fmt.Errorf("bootstrap cancelled: %w", err))
		}

		i.mu.Lock()
		i.attempts = attempt
		i.mu.Unlock()

		client, err := i.attempt(ctx)
		if err == nil {
			util.ClientBootstrapAttemptsTotal.WithLabelValues("success").Inc()
			i.mu.Lock()
			i.state = InitReady
			i.lastErr = nil
			i.mu.Unlock()

			i.store.Dispatch(cache.SetClient{Client: client})
			i.logger.Info("Review client ready", zap.Int("attempt", attempt))
			return nil
		}

		util.ClientBootstrapAttemptsTotal.WithLabelValues("failure").Inc()
		lastErr = err
		i.logger.Warn("Review client bootstrap attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))

		if attempt >= maxAttempts {
			return i.fail(lastErr)
		}

		delay := cfg.RetryDelay * time.Duration(attempt)
		if err := i.wait(ctx, delay); err != nil {
			return i.fail(fmt.Errorf("bootstrap cancelled: %w", err))
		}
	}
}

// attempt builds a client and verifies it with a single-review fetch
func (i *Initializer) attempt(ctx context.Context) (reviewclient.ReviewClient, error) {
	ctx, span := util.StartSpan(ctx, "Initializer.attempt")
	defer span.End()

	client, err := i.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create review client: %w", err)
	}
	if client == nil {
		return nil, errors.New("review client factory returned nil")
	}
	if _, err := client.GetReviews(ctx, models.GetReviewsParams{PageSize: 1}); err != nil {
		return nil, fmt.Errorf("failed to verify review client: %w", err)
	}
	return client, nil
}

// wait sleeps for the backoff delay, then holds while the store is offline
// if offline mode is enabled
func (i *Initializer) wait(ctx context.Context, delay time.Duration) error {
	select {
	case <-i.clock.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if !i.store.Config().EnableOfflineMode || i.store.State().IsOnline {
		return nil
	}

	online := make(chan struct{}, 1)
	unsubscribe := i.store.Subscribe(func(s *cache.State) {
		if s.IsOnline {
			select {
			case online <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if i.store.State().IsOnline {
		return nil
	}

	i.logger.Info("Review service offline, holding bootstrap retry")
	select {
	case <-online:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Initializer) fail(err error) error {
	i.mu.Lock()
	i.state = InitFailed
	i.lastErr = err
	i.mu.Unlock()

	i.store.Dispatch(cache.SetClientError{Error: err.Error()})
	return err
}

// Err returns the terminal bootstrap error, if any
func (i *Initializer) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}

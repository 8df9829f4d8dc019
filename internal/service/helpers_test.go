package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"review-cache/internal/cache"
	"review-cache/internal/models"
	"review-cache/internal/util"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type mockReviewClient struct {
	mock.Mock
}

func (m *mockReviewClient) GetReviews(ctx context.Context, params models.GetReviewsParams) (*models.ReviewPage, error) {
	args := m.Called(ctx, params)
	page, _ := args.Get(0).(*models.ReviewPage)
	return page, args.Error(1)
}

func (m *mockReviewClient) CreateReview(ctx context.Context, req models.CreateReviewRequest) (*models.MutationResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*models.MutationResult)
	return result, args.Error(1)
}

func (m *mockReviewClient) DeleteReview(ctx context.Context, id string) (*models.MutationResult, error) {
	args := m.Called(ctx, id)
	result, _ := args.Get(0).(*models.MutationResult)
	return result, args.Error(1)
}

// fakeClock records requested delays. After fires immediately unless blocked.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	delays  []time.Duration
	blocked bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testNow}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	ch := make(chan time.Time, 1)
	if !c.blocked {
		ch <- c.now.Add(d)
	}
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

func newTestStore(cfg cache.Config, clock util.Clock) *cache.Store {
	return cache.NewStore(cfg, cache.WithClock(clock), cache.WithLogger(zap.NewNop()))
}

type publishedEvent struct {
	Type      string
	ProductID string
	ReviewID  string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishReviewCreated(_ context.Context, productID string, review models.Review) error {
	p.record(models.EventTypeReviewCreated, productID, review.ID)
	return nil
}

func (p *recordingPublisher) PublishReviewUpdated(_ context.Context, productID string, patch models.ReviewPatch) error {
	p.record(models.EventTypeReviewUpdated, productID, patch.ID)
	return nil
}

func (p *recordingPublisher) PublishReviewDeleted(_ context.Context, productID, reviewID string) error {
	p.record(models.EventTypeReviewDeleted, productID, reviewID)
	return nil
}

func (p *recordingPublisher) record(eventType, productID, reviewID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, ProductID: productID, ReviewID: reviewID})
}

func (p *recordingPublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type recordingInvalidator struct {
	mu      sync.Mutex
	calls   []string
	origins []string
}

func (i *recordingInvalidator) PublishInvalidation(_ context.Context, productID, origin string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, productID)
	i.origins = append(i.origins, origin)
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]bool)}
}

func (m *memoryIdempotency) ClaimIdempotencyKey(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryIdempotency) ReleaseIdempotencyKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *memoryIdempotency) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key]
}

func silenceLogs(t *testing.T) {
	t.Helper()
	prev := util.GetLogger()
	util.SetLogger(zap.NewNop())
	t.Cleanup(func() { util.SetLogger(prev) })
}

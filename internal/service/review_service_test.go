package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"review-cache/internal/cache"
	"review-cache/internal/models"
	"review-cache/internal/reviewclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	store       *cache.Store
	clock       *fakeClock
	client      *mockReviewClient
	publisher   *recordingPublisher
	invalidator *recordingInvalidator
	idempotency *memoryIdempotency
	svc         *ReviewService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	silenceLogs(t)

	f := &serviceFixture{
		clock:       newFakeClock(),
		client:      &mockReviewClient{},
		publisher:   &recordingPublisher{},
		invalidator: &recordingInvalidator{},
		idempotency: newMemoryIdempotency(),
	}
	f.store = newTestStore(initConfig(), f.clock)
	f.store.Dispatch(cache.SetClient{Client: f.client})
	f.svc = NewReviewService(f.store, f.publisher, f.invalidator, f.idempotency, ReviewServiceConfig{
		PageSize: 10,
		Origin:   "instance-a",
	})
	return f
}

func fetchParams(productID string) models.GetReviewsParams {
	return models.GetReviewsParams{ProductIDs: []string{productID}, Page: 1, PageSize: 10}
}

func at(minutes int) time.Time {
	return testNow.Add(time.Duration(minutes) * time.Minute)
}

func reviewIDs(reviews []models.Review) []string {
	ids := make([]string, 0, len(reviews))
	for _, r := range reviews {
		ids = append(ids, r.ID)
	}
	return ids
}

func validInput() models.CreateReviewRequest {
	return models.CreateReviewRequest{
		Rating:  5,
		Author:  "Ann",
		Title:   "Great",
		Content: "Works as described",
	}
}

func TestGetProductReviews_FetchesAndMerges(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.AddReview{ProductID: "p1", Review: models.Review{ID: "r1", Rating: 2, CreatedAt: at(1)}})
	f.clock.Advance(2 * time.Minute)

	f.client.On("GetReviews", mock.Anything, fetchParams("p1")).Return(&models.ReviewPage{
		List: []models.Review{
			{ID: "r1", Rating: 3, CreatedAt: at(1)},
			{ID: "r2", Rating: 5, CreatedAt: at(2), Verified: models.IsVerified},
		},
	}, nil).Once()

	data, err := f.svc.GetProductReviews(context.Background(), "p1", true)

	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r1"}, reviewIDs(data.Reviews))
	assert.Equal(t, 3, data.Reviews[1].Rating)
	require.NotNil(t, data.Stats)
	assert.Equal(t, 2, data.Stats.TotalReviews)
	assert.Equal(t, 4.0, data.Stats.AverageRating)
	assert.Equal(t, 1, data.Stats.VerifiedReviews)
	assert.False(t, data.Loading)
	assert.Empty(t, data.Error)
	require.NotNil(t, data.LastFetched)
	assert.Equal(t, f.clock.Now(), *data.LastFetched)
	f.client.AssertExpectations(t)
}

func TestGetProductReviews_FreshCacheSkipsRemote(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.FetchSuccess{ProductID: "p1", Reviews: []models.Review{{ID: "r1", Rating: 4}}})
	f.clock.Advance(30 * time.Second)

	data, err := f.svc.GetProductReviews(context.Background(), "p1", false)

	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, reviewIDs(data.Reviews))
	f.client.AssertNotCalled(t, "GetReviews", mock.Anything, mock.Anything)
}

func TestGetProductReviews_StaleCacheRefetches(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.FetchSuccess{ProductID: "p1", Reviews: []models.Review{{ID: "r1", Rating: 4}}})
	f.clock.Advance(2 * time.Minute)

	f.client.On("GetReviews", mock.Anything, fetchParams("p1")).Return(&models.ReviewPage{}, nil).Once()

	data, err := f.svc.GetProductReviews(context.Background(), "p1", false)

	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, reviewIDs(data.Reviews))
	f.client.AssertExpectations(t)
}

func TestGetProductReviews_FetchErrorKeepsReviews(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.FetchSuccess{ProductID: "p1", Reviews: []models.Review{{ID: "r1", Rating: 4}}})

	f.client.On("GetReviews", mock.Anything, fetchParams("p1")).Return(nil, errors.New("gateway timeout")).Once()

	data, err := f.svc.GetProductReviews(context.Background(), "p1", true)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway timeout")
	assert.Equal(t, []string{"r1"}, reviewIDs(data.Reviews))
	assert.False(t, data.Loading)
	assert.Equal(t, "gateway timeout", data.Error)
}

func TestGetProductReviews_CoalescesConcurrentFetches(t *testing.T) {
	f := newServiceFixture(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.client.On("GetReviews", mock.Anything, fetchParams("p1")).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&models.ReviewPage{List: []models.Review{{ID: "r1", Rating: 5}}}, nil).
		Once()

	var wg sync.WaitGroup
	results := make([]models.ProductReviewData, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = f.svc.GetProductReviews(context.Background(), "p1", true)
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = f.svc.GetProductReviews(context.Background(), "p1", true)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"r1"}, reviewIDs(results[i].Reviews))
	}
	f.client.AssertNumberOfCalls(t, "GetReviews", 1)
}

func TestGetProductReviews_CancelledCallerDoesNotFailFollowers(t *testing.T) {
	f := newServiceFixture(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var fetchCtx context.Context
	f.client.On("GetReviews", mock.Anything, fetchParams("p1")).
		Run(func(args mock.Arguments) {
			fetchCtx = args.Get(0).(context.Context)
			close(entered)
			<-release
		}).
		Return(&models.ReviewPage{List: []models.Review{{ID: "r1", Rating: 5}}}, nil).
		Once()

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := f.svc.GetProductReviews(leaderCtx, "p1", true)
		leaderErr <- err
	}()
	<-entered

	followerDone := make(chan struct{})
	var followerData models.ProductReviewData
	var followerErr error
	go func() {
		defer close(followerDone)
		followerData, followerErr = f.svc.GetProductReviews(context.Background(), "p1", true)
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	assert.NoError(t, fetchCtx.Err())

	close(release)
	<-followerDone

	require.NoError(t, followerErr)
	assert.Equal(t, []string{"r1"}, reviewIDs(followerData.Reviews))
	assert.Empty(t, f.store.GetEntityData("p1").Error)
	f.client.AssertNumberOfCalls(t, "GetReviews", 1)
}

func TestGetProductReviews_Offline(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.FetchSuccess{ProductID: "p1", Reviews: []models.Review{{ID: "r1", Rating: 4}}})
	f.store.Dispatch(cache.SetOnlineStatus{Online: false})

	data, err := f.svc.GetProductReviews(context.Background(), "p1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, reviewIDs(data.Reviews))

	data, err = f.svc.GetProductReviews(context.Background(), "p2", false)
	require.NoError(t, err)
	assert.Empty(t, data.Reviews)
	f.client.AssertNotCalled(t, "GetReviews", mock.Anything, mock.Anything)
}

func TestGetProductReviews_OfflineWithoutOfflineMode(t *testing.T) {
	silenceLogs(t)
	cfg := initConfig()
	cfg.EnableOfflineMode = false
	store := newTestStore(cfg, newFakeClock())
	store.Dispatch(cache.SetClient{Client: &mockReviewClient{}})
	store.Dispatch(cache.SetOnlineStatus{Online: false})
	svc := NewReviewService(store, nil, nil, nil, ReviewServiceConfig{})

	_, err := svc.GetProductReviews(context.Background(), "p1", false)

	assert.ErrorIs(t, err, ErrOffline)
}

func TestGetProductReviews_ClientNotReady(t *testing.T) {
	silenceLogs(t)
	store := newTestStore(initConfig(), newFakeClock())
	svc := NewReviewService(store, nil, nil, nil, ReviewServiceConfig{})

	_, err := svc.GetProductReviews(context.Background(), "p1", false)

	assert.ErrorIs(t, err, ErrClientNotReady)
	assert.False(t, store.IsLoading("p1"))
}

func TestGetProductReviews_EmptyProductID(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.GetProductReviews(context.Background(), "", false)

	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateReview_ReplacesOptimisticEntry(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.AddReview{ProductID: "p1", Review: models.Review{ID: "r1", Rating: 3, CreatedAt: at(-10)}})

	input := validInput()
	input.ProductID = "p1"
	confirmed := &models.Review{ID: "r-100", ProductID: "p1", Rating: 5, Author: "Ann", CreatedAt: at(0)}
	f.client.On("CreateReview", mock.Anything, input).Return(&models.MutationResult{Code: 0, Data: confirmed}, nil).Once()

	got, err := f.svc.CreateReview(context.Background(), "p1", validInput(), "key-1")

	require.NoError(t, err)
	assert.Equal(t, "r-100", got.ID)

	data := f.store.GetEntityData("p1")
	assert.Equal(t, []string{"r-100", "r1"}, reviewIDs(data.Reviews))
	assert.Equal(t, 2, data.Stats.TotalReviews)
	assert.Empty(t, data.Error)

	assert.Equal(t, []publishedEvent{{Type: models.EventTypeReviewCreated, ProductID: "p1", ReviewID: "r-100"}}, f.publisher.Events())
	assert.Equal(t, []string{"p1"}, f.invalidator.calls)
	assert.Equal(t, []string{"instance-a"}, f.invalidator.origins)
	assert.True(t, f.idempotency.Has("key-1"))
	f.client.AssertExpectations(t)
}

func TestCreateReview_KeepsOptimisticEntryWithoutServerCopy(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.FetchSuccess{ProductID: "p1", Reviews: []models.Review{}})
	f.client.On("CreateReview", mock.Anything, mock.Anything).Return(&models.MutationResult{Code: 0}, nil).Once()

	got, err := f.svc.CreateReview(context.Background(), "p1", validInput(), "")

	require.NoError(t, err)
	assert.Contains(t, got.ID, "temp-")
	assert.Equal(t, testNow, got.CreatedAt)

	data := f.store.GetEntityData("p1")
	assert.Equal(t, []string{got.ID}, reviewIDs(data.Reviews))
}

func TestCreateReview_RollsBackOnFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.FetchSuccess{ProductID: "p1", Reviews: []models.Review{{ID: "r1", Rating: 4}}})
	before := f.store.GetEntityData("p1")

	f.client.On("CreateReview", mock.Anything, mock.Anything).Return(nil, errors.New("service unavailable")).Once()

	_, err := f.svc.CreateReview(context.Background(), "p1", validInput(), "key-2")

	require.Error(t, err)
	data := f.store.GetEntityData("p1")
	assert.Equal(t, before.Reviews, data.Reviews)
	assert.Equal(t, before.Stats, data.Stats)
	assert.Equal(t, "service unavailable", data.Error)
	assert.False(t, f.idempotency.Has("key-2"))
	assert.Empty(t, f.publisher.Events())
	assert.Empty(t, f.invalidator.calls)
}

func TestCreateReview_ApplicationErrorRollsBack(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.FetchSuccess{ProductID: "p1", Reviews: []models.Review{}})
	f.client.On("CreateReview", mock.Anything, mock.Anything).
		Return(&models.MutationResult{Code: 4001, Message: "review rejected"}, nil).Once()

	_, err := f.svc.CreateReview(context.Background(), "p1", validInput(), "")

	var appErr *reviewclient.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 4001, appErr.Code)
	assert.Equal(t, "review rejected", appErr.Message)
	assert.Empty(t, f.store.GetEntityData("p1").Reviews)
	assert.True(t, f.store.HasError("p1"))
}

func TestCreateReview_UncachedProductFetchesOnNextRead(t *testing.T) {
	f := newServiceFixture(t)
	confirmed := &models.Review{ID: "r-new", ProductID: "p9", Rating: 5, CreatedAt: at(3)}
	f.client.On("CreateReview", mock.Anything, mock.Anything).Return(&models.MutationResult{Data: confirmed}, nil).Once()

	_, err := f.svc.CreateReview(context.Background(), "p9", validInput(), "")
	require.NoError(t, err)
	assert.False(t, f.store.IsCached("p9"))

	f.client.On("GetReviews", mock.Anything, fetchParams("p9")).Return(&models.ReviewPage{
		List: []models.Review{
			*confirmed,
			{ID: "s1", Rating: 4, CreatedAt: at(1)},
			{ID: "s2", Rating: 3, CreatedAt: at(2)},
		},
	}, nil).Once()

	data, err := f.svc.GetProductReviews(context.Background(), "p9", false)

	require.NoError(t, err)
	assert.Equal(t, []string{"r-new", "s2", "s1"}, reviewIDs(data.Reviews))
	assert.Equal(t, 3, data.Stats.TotalReviews)
	f.client.AssertExpectations(t)
}

func TestCreateReview_UncachedFailureLeavesNoSlice(t *testing.T) {
	f := newServiceFixture(t)
	f.client.On("CreateReview", mock.Anything, mock.Anything).Return(nil, errors.New("service unavailable")).Once()

	_, err := f.svc.CreateReview(context.Background(), "p9", validInput(), "")

	require.Error(t, err)
	_, exists := f.store.State().Products["p9"]
	assert.False(t, exists)
}

func TestCreateReview_DuplicateSubmission(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.idempotency.ClaimIdempotencyKey(context.Background(), "key-3", time.Hour)
	require.NoError(t, err)

	_, err = f.svc.CreateReview(context.Background(), "p1", validInput(), "key-3")

	assert.ErrorIs(t, err, ErrDuplicateSubmission)
	assert.False(t, f.store.IsCached("p1"))
	f.client.AssertNotCalled(t, "CreateReview", mock.Anything, mock.Anything)
}

func TestCreateReview_Validation(t *testing.T) {
	f := newServiceFixture(t)

	tests := []struct {
		name      string
		productID string
		mutate    func(*models.CreateReviewRequest)
	}{
		{name: "missing product", productID: "", mutate: func(*models.CreateReviewRequest) {}},
		{name: "rating too low", productID: "p1", mutate: func(r *models.CreateReviewRequest) { r.Rating = 0 }},
		{name: "rating too high", productID: "p1", mutate: func(r *models.CreateReviewRequest) { r.Rating = 6 }},
		{name: "blank author", productID: "p1", mutate: func(r *models.CreateReviewRequest) { r.Author = "  " }},
		{name: "blank content", productID: "p1", mutate: func(r *models.CreateReviewRequest) { r.Content = "" }},
		{name: "product mismatch", productID: "p1", mutate: func(r *models.CreateReviewRequest) { r.ProductID = "p2" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(&input)

			_, err := f.svc.CreateReview(context.Background(), tt.productID, input, "")

			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	f.client.AssertNotCalled(t, "CreateReview", mock.Anything, mock.Anything)
}

func TestUpdateReview(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.FetchSuccess{ProductID: "p1", Reviews: []models.Review{{ID: "r1", Rating: 2, Title: "meh"}}})

	rating := 4
	err := f.svc.UpdateReview(context.Background(), "p1", models.ReviewPatch{ID: "r1", Rating: &rating})

	require.NoError(t, err)
	data := f.store.GetEntityData("p1")
	assert.Equal(t, 4, data.Reviews[0].Rating)
	assert.Equal(t, "meh", data.Reviews[0].Title)
	assert.Equal(t, testNow, data.Reviews[0].UpdatedAt)
	assert.Equal(t, 4.0, data.Stats.AverageRating)
	assert.Equal(t, []publishedEvent{{Type: models.EventTypeReviewUpdated, ProductID: "p1", ReviewID: "r1"}}, f.publisher.Events())

	bad := 9
	err = f.svc.UpdateReview(context.Background(), "p1", models.ReviewPatch{ID: "r1", Rating: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = f.svc.UpdateReview(context.Background(), "p1", models.ReviewPatch{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeleteReview(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.FetchSuccess{ProductID: "p1", Reviews: []models.Review{{ID: "r1", Rating: 2}, {ID: "r2", Rating: 4}}})

	f.client.On("DeleteReview", mock.Anything, "r1").Return(&models.MutationResult{Code: 0}, nil).Once()

	err := f.svc.DeleteReview(context.Background(), "p1", "r1")

	require.NoError(t, err)
	data := f.store.GetEntityData("p1")
	assert.Equal(t, []string{"r2"}, reviewIDs(data.Reviews))
	assert.Equal(t, 1, data.Stats.TotalReviews)
	assert.Equal(t, []publishedEvent{{Type: models.EventTypeReviewDeleted, ProductID: "p1", ReviewID: "r1"}}, f.publisher.Events())
	assert.Equal(t, []string{"p1"}, f.invalidator.calls)
	f.client.AssertExpectations(t)
}

func TestDeleteReview_FailureKeepsReview(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.FetchSuccess{ProductID: "p1", Reviews: []models.Review{{ID: "r1", Rating: 2}}})

	f.client.On("DeleteReview", mock.Anything, "r1").Return(nil, &reviewclient.StatusError{Operation: "delete_review", StatusCode: 500}).Once()

	err := f.svc.DeleteReview(context.Background(), "p1", "r1")

	var statusErr *reviewclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	data := f.store.GetEntityData("p1")
	assert.Equal(t, []string{"r1"}, reviewIDs(data.Reviews))
	assert.NotEmpty(t, data.Error)
	assert.Empty(t, f.publisher.Events())
}

func TestDeleteReview_Offline(t *testing.T) {
	f := newServiceFixture(t)
	f.store.Dispatch(cache.SetOnlineStatus{Online: false})

	err := f.svc.DeleteReview(context.Background(), "p1", "r1")

	assert.ErrorIs(t, err, ErrOffline)
}

func TestBulkAddReviews(t *testing.T) {
	f := newServiceFixture(t)

	err := f.svc.BulkAddReviews("p1", []models.Review{
		{ID: "r1", Rating: 5, CreatedAt: at(1)},
		{ID: "r2", Rating: 1, CreatedAt: at(2)},
	})

	require.NoError(t, err)
	data := f.store.GetEntityData("p1")
	assert.Equal(t, []string{"r2", "r1"}, reviewIDs(data.Reviews))
	assert.Equal(t, 3.0, data.Stats.AverageRating)

	assert.ErrorIs(t, f.svc.BulkAddReviews("", nil), ErrInvalidInput)
	assert.ErrorIs(t, f.svc.BulkAddReviews("p1", []models.Review{{Rating: 3}}), ErrInvalidInput)
}

package cache

import (
	"time"

	"review-cache/internal/models"
)

// Reduce applies one action to a state and returns the resulting state. It
// never mutates its input and never panics. When nothing changes, including
// for actions it does not recognise, the input pointer is returned.
func Reduce(s *State, action Action, now time.Time) *State {
	if s == nil {
		s = InitialState()
	}

	switch a := action.(type) {
	case SetClient:
		next := *s
		next.Client = a.Client
		next.ClientError = ""
		next.IsInitialized = true
		next.GlobalError = ""
		return &next

	case SetClientError:
		next := *s
		next.Client = nil
		next.ClientError = a.Error
		next.IsInitialized = true
		next.GlobalError = a.Error
		return &next

	case SetOnlineStatus:
		if s.IsOnline == a.Online {
			return s
		}
		next := *s
		next.IsOnline = a.Online
		return &next

	case SetGlobalLoading:
		if s.GlobalLoading == a.Loading {
			return s
		}
		next := *s
		next.GlobalLoading = a.Loading
		return &next

	case SetGlobalError:
		if s.GlobalError == a.Error {
			return s
		}
		next := *s
		next.GlobalError = a.Error
		return &next

	case FetchStart:
		d := getOrDefault(s, a.ProductID)
		d.Loading = true
		d.Error = ""
		return withSlice(s, a.ProductID, d)

	case FetchSuccess:
		reviews := copyReviews(a.Reviews)
		stats := a.Stats
		if stats == nil {
			computed := models.ComputeStats(reviews)
			stats = &computed
		}
		fetched := now
		return withSlice(s, a.ProductID, models.ProductReviewData{
			Reviews:     reviews,
			Stats:       stats,
			LastFetched: &fetched,
		})

	case FetchError:
		d := getOrDefault(s, a.ProductID)
		d.Loading = false
		d.Error = a.Error
		return withSlice(s, a.ProductID, d)

	case AddReview:
		return mergeInto(s, a.ProductID, []models.Review{a.Review}, now)

	case BulkAddReviews:
		return mergeInto(s, a.ProductID, a.Reviews, now)

	case UpdateReview:
		d, ok := getExisting(s, a.ProductID)
		if !ok {
			return s
		}
		reviews := make([]models.Review, len(d.Reviews))
		for i, r := range d.Reviews {
			if r.ID == a.Review.ID {
				r = a.Review.Apply(r)
			}
			reviews[i] = r
		}
		return withReviews(s, a.ProductID, d, reviews, now)

	case DeleteReview:
		d, ok := getExisting(s, a.ProductID)
		if !ok {
			return s
		}
		reviews := make([]models.Review, 0, len(d.Reviews))
		for _, r := range d.Reviews {
			if r.ID != a.ReviewID {
				reviews = append(reviews, r)
			}
		}
		return withReviews(s, a.ProductID, d, reviews, now)

	case SetLoading:
		d, ok := getExisting(s, a.ProductID)
		if !ok {
			return s
		}
		d.Loading = a.Loading
		return withSlice(s, a.ProductID, d)

	case SetError:
		d, ok := getExisting(s, a.ProductID)
		if !ok {
			return s
		}
		d.Error = a.Error
		return withSlice(s, a.ProductID, d)

	case UpdateStats:
		d, ok := getExisting(s, a.ProductID)
		if !ok {
			return s
		}
		d.Stats = a.Stats
		return withSlice(s, a.ProductID, d)

	case ClearCache:
		if a.ProductID == "" {
			if len(s.Products) == 0 {
				return s
			}
			next := *s
			next.Products = map[string]*models.ProductReviewData{}
			return &next
		}
		return withoutSlice(s, a.ProductID)

	case ResetProductData:
		return withoutSlice(s, a.ProductID)

	case ResetAllData:
		next := *s
		next.Products = map[string]*models.ProductReviewData{}
		next.GlobalError = ""
		return &next

	default:
		return s
	}
}

// getExisting returns a shallow copy of the slice for id. Every handler that
// must not create slices goes through here.
func getExisting(s *State, id string) (models.ProductReviewData, bool) {
	d, ok := s.Products[id]
	if !ok || d == nil {
		return models.ProductReviewData{}, false
	}
	return *d, true
}

// getOrDefault returns a shallow copy of the slice for id, or an empty slice
func getOrDefault(s *State, id string) models.ProductReviewData {
	if d, ok := getExisting(s, id); ok {
		return d
	}
	return models.ProductReviewData{Reviews: []models.Review{}}
}

func mergeInto(s *State, id string, incoming []models.Review, now time.Time) *State {
	d := getOrDefault(s, id)
	return withReviews(s, id, d, models.MergeReviews(d.Reviews, incoming), now)
}

// withReviews stores a new review set and recomputes its stats
func withReviews(s *State, id string, d models.ProductReviewData, reviews []models.Review, now time.Time) *State {
	stats := models.ComputeStats(reviews)
	fetched := now
	d.Reviews = reviews
	d.Stats = &stats
	d.LastFetched = &fetched
	return withSlice(s, id, d)
}

func withSlice(s *State, id string, d models.ProductReviewData) *State {
	next := s.clone()
	next.Products[id] = &d
	return next
}

func withoutSlice(s *State, id string) *State {
	if _, ok := s.Products[id]; !ok {
		return s
	}
	next := s.clone()
	delete(next.Products, id)
	return next
}

func copyReviews(in []models.Review) []models.Review {
	out := make([]models.Review, len(in))
	copy(out, in)
	return out
}

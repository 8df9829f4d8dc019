package cache

import (
	"review-cache/internal/models"
	"review-cache/internal/reviewclient"
)

// Action types
const (
	ActionSetClient        = "SET_CLIENT"
	ActionSetClientError   = "SET_CLIENT_ERROR"
	ActionSetOnlineStatus  = "SET_ONLINE_STATUS"
	ActionSetGlobalLoading = "SET_GLOBAL_LOADING"
	ActionSetGlobalError   = "SET_GLOBAL_ERROR"
	ActionFetchStart       = "FETCH_START"
	ActionFetchSuccess     = "FETCH_SUCCESS"
	ActionFetchError       = "FETCH_ERROR"
	ActionAddReview        = "ADD_REVIEW"
	ActionBulkAddReviews   = "BULK_ADD_REVIEWS"
	ActionUpdateReview     = "UPDATE_REVIEW"
	ActionDeleteReview     = "DELETE_REVIEW"
	ActionSetLoading       = "SET_LOADING"
	ActionSetError         = "SET_ERROR"
	ActionUpdateStats      = "UPDATE_STATS"
	ActionClearCache       = "CLEAR_CACHE"
	ActionResetProductData = "RESET_PRODUCT_DATA"
	ActionResetAllData     = "RESET_ALL_DATA"
)

// Action is a closed set of cache transitions. Only this package can add
// variants.
type Action interface {
	Type() string
	isAction()
}

// SetClient records a ready review client
type SetClient struct {
	Client reviewclient.ReviewClient
}

// SetClientError records a terminal bootstrap failure
type SetClientError struct {
	Error string
}

// SetOnlineStatus records connectivity to the review service
type SetOnlineStatus struct {
	Online bool
}

// SetGlobalLoading toggles the bootstrap-in-progress flag
type SetGlobalLoading struct {
	Loading bool
}

// SetGlobalError sets or clears the global error ("" clears)
type SetGlobalError struct {
	Error string
}

// FetchStart marks a product slice as loading
type FetchStart struct {
	ProductID string
}

// FetchSuccess replaces a product slice with fetched reviews. Nil Stats are
// computed from Reviews.
type FetchSuccess struct {
	ProductID string
	Reviews   []models.Review
	Stats     *models.ReviewStats
}

// FetchError records a failed fetch and keeps the cached reviews
type FetchError struct {
	ProductID string
	Error     string
}

// AddReview merges a single review into a product slice
type AddReview struct {
	ProductID string
	Review    models.Review
}

// BulkAddReviews merges a batch of reviews into a product slice
type BulkAddReviews struct {
	ProductID string
	Reviews   []models.Review
}

// UpdateReview shallow-merges a patch onto the review with the same id
type UpdateReview struct {
	ProductID string
	Review    models.ReviewPatch
}

// DeleteReview removes a review by id
type DeleteReview struct {
	ProductID string
	ReviewID  string
}

// SetLoading overrides the loading flag of an existing slice
type SetLoading struct {
	ProductID string
	Loading   bool
}

// SetError overrides the error of an existing slice ("" clears)
type SetError struct {
	ProductID string
	Error     string
}

// UpdateStats replaces the stats of an existing slice
type UpdateStats struct {
	ProductID string
	Stats     *models.ReviewStats
}

// ClearCache removes one slice, or every slice when ProductID is empty
type ClearCache struct {
	ProductID string
}

// ResetProductData removes one slice
type ResetProductData struct {
	ProductID string
}

// ResetAllData removes every slice and the global error
type ResetAllData struct{}

func (SetClient) Type() string { return ActionSetClient }
func (SetClientError) Type() string { return ActionSetClientError }
func (SetOnlineStatus) Type() string { return ActionSetOnlineStatus }
func (SetGlobalLoading) Type() string { return ActionSetGlobalLoading }
func (SetGlobalError) Type() string { return ActionSetGlobalError }
func (FetchStart) Type() string { return ActionFetchStart }
func (FetchSuccess) Type() string { return ActionFetchSuccess }
func (FetchError) Type() string { return ActionFetchError }
func (AddReview) Type() string { return ActionAddReview }
func (BulkAddReviews) Type() string { return ActionBulkAddReviews }
func (UpdateReview) Type() string { return ActionUpdateReview }
func (DeleteReview) Type() string { return ActionDeleteReview }
func (SetLoading) Type() string { return ActionSetLoading }
func (SetError) Type() string { return ActionSetError }
func (UpdateStats) Type() string { return ActionUpdateStats }
func (ClearCache) Type() string { return ActionClearCache }
func (ResetProductData) Type() string { return ActionResetProductData }
func (ResetAllData) Type() string { return ActionResetAllData }

func (SetClient) isAction() {}
func (SetClientError) isAction() {}
func (SetOnlineStatus) isAction() {}
func (SetGlobalLoading) isAction() {}
func (SetGlobalError) isAction() {}
func (FetchStart) isAction() {}
func (FetchSuccess) isAction() {}
func (FetchError) isAction() {}
func (AddReview) isAction() {}
func (BulkAddReviews) isAction() {}
func (UpdateReview) isAction() {}
func (DeleteReview) isAction() {}
func (SetLoading) isAction() {}
func (SetError) isAction() {}
func (UpdateStats) isAction() {}
func (ClearCache) isAction() {}
func (ResetProductData) isAction() {}
func (ResetAllData) isAction() {}

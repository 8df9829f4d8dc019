package models

import "time"

// Media references an image or video attached to a review
type Media struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Review represents a single product review from the review service
type Review struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	Rating        int       `json:"rating"`
	Author        string    `json:"author"`
	AuthorEmail   string    `json:"author_email,omitempty"`
	AuthorCountry string    `json:"author_country,omitempty"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Source        string    `json:"source,omitempty"`
	Verified      int       `json:"verified"`
	Media         []Media   `json:"media,omitempty"`
	CommentedAt   time.Time `json:"commented_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Verified flag values. The remote service sends a number, not a boolean.
const (
	NotVerified = 0
	IsVerified  = 1
)

// ReviewPatch carries a partial review update. Nil fields are left untouched.
type ReviewPatch struct {
	ID            string     `json:"id"`
	Rating        *int       `json:"rating,omitempty"`
	Author        *string    `json:"author,omitempty"`
	AuthorEmail   *string    `json:"author_email,omitempty"`
	AuthorCountry *string    `json:"author_country,omitempty"`
	Title         *string    `json:"title,omitempty"`
	Content       *string    `json:"content,omitempty"`
	Verified      *int       `json:"verified,omitempty"`
	Media         []Media    `json:"media,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Apply returns a copy of r with the patch fields laid over it
func (p ReviewPatch) Apply(r Review) Review {
	if p.Rating != nil {
		r.Rating = *p.Rating
	}
	if p.Author != nil {
		r.Author = *p.Author
	}
	if p.AuthorEmail != nil {
		r.AuthorEmail = *p.AuthorEmail
	}
	if p.AuthorCountry != nil {
		r.AuthorCountry = *p.AuthorCountry
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Content != nil {
		r.Content = *p.Content
	}
	if p.Verified != nil {
		r.Verified = *p.Verified
	}
	if p.Media != nil {
		r.Media = append([]Media(nil), p.Media...)
	}
	if p.UpdatedAt != nil {
		r.UpdatedAt = *p.UpdatedAt
	}
	return r
}

// ReviewStats is derived from a review collection and never stored on its own
type ReviewStats struct {
	TotalReviews       int         `json:"total_reviews"`
	AverageRating      float64     `json:"average_rating"`
	RatingDistribution map[int]int `json:"rating_distribution"`
	VerifiedReviews    int         `json:"verified_reviews"`
}

// ProductReviewData is the cached slice for one product
type ProductReviewData struct {
	Reviews     []Review     `json:"reviews"`
	Stats       *ReviewStats `json:"stats,omitempty"`
	Loading     bool         `json:"loading"`
	Error       string       `json:"error,omitempty"`
	LastFetched *time.Time   `json:"last_fetched,omitempty"`
}

// Clone returns a deep copy safe to hand to callers
func (d *ProductReviewData) Clone() ProductReviewData {
	if d == nil {
		return ProductReviewData{Reviews: []Review{}}
	}
	out := ProductReviewData{
		Reviews: make([]Review, len(d.Reviews)),
		Loading: d.Loading,
		Error:   d.Error,
	}
	copy(out.Reviews, d.Reviews)
	if d.Stats != nil {
		stats := *d.Stats
		stats.RatingDistribution = make(map[int]int, len(d.Stats.RatingDistribution))
		for k, v := range d.Stats.RatingDistribution {
			stats.RatingDistribution[k] = v
		}
		out.Stats = &stats
	}
	if d.LastFetched != nil {
		t := *d.LastFetched
		out.LastFetched = &t
	}
	return out
}

// GetReviewsParams are the query parameters accepted by the review service
type GetReviewsParams struct {
	ProductIDs []string `json:"product_ids,omitempty"`
	Keyword    string   `json:"keyword,omitempty"`
	Ratings    []int    `json:"ratings,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	SortBy     string   `json:"sort_by,omitempty"`
	Page       int      `json:"page,omitempty"`
	PageSize   int      `json:"page_size,omitempty"`
}

// PageInfo describes one page of a review listing
type PageInfo struct {
	Page      int `json:"page"`
	PageSize  int `json:"page_size"`
	TotalPage int `json:"total_page"`
	Count     int `json:"count"`
}

// ReviewPage is the data payload of a getReviews response
type ReviewPage struct {
	List []Review `json:"list"`
	Page PageInfo `json:"page"`
}

// CreateReviewRequest is the body sent to the review service to submit a review
type CreateReviewRequest struct {
	ProductID     string  `json:"product_id"`
	Rating        int     `json:"rating" binding:"required,min=1,max=5"`
	Author        string  `json:"author" binding:"required"`
	AuthorEmail   string  `json:"author_email,omitempty"`
	AuthorCountry string  `json:"author_country,omitempty"`
	Title         string  `json:"title"`
	Content       string  `json:"content" binding:"required"`
	Media         []Media `json:"media,omitempty"`
}

// MutationResult is the response envelope of createReview and deleteReview
type MutationResult struct {
	Code    int     `json:"code"`
	Message string  `json:"message"`
	Data    *Review `json:"data,omitempty"`
}

// OK reports whether the review service accepted the mutation
func (r *MutationResult) OK() bool {
	return r != nil && r.Code == 0
}

package models

import "time"

// Event types
const (
	EventTypeReviewCreated = "REVIEW_CREATED"
	EventTypeReviewUpdated = "REVIEW_UPDATED"
	EventTypeReviewDeleted = "REVIEW_DELETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Origin    string    `json:"origin,omitempty"`
}

// ReviewCreatedEvent published when a review is accepted by the review service
type ReviewCreatedEvent struct {
	BaseEvent
	ProductID string `json:"product_id"`
	Review    Review `json:"review"`
}

// ReviewUpdatedEvent published when a review is edited
type ReviewUpdatedEvent struct {
	BaseEvent
	ProductID string      `json:"product_id"`
	Patch     ReviewPatch `json:"patch"`
}

// ReviewDeletedEvent published when a review is removed
type ReviewDeletedEvent struct {
	BaseEvent
	ProductID string `json:"product_id"`
	ReviewID  string `json:"review_id"`
}

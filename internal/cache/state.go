// Package cache holds the process-wide review cache: an immutable State, the
// closed set of actions that transform it, the pure Reduce function, and a
// Store that applies actions one at a time.
package cache

import (
	"time"

	"review-cache/internal/models"
	"review-cache/internal/reviewclient"
)

// State is the root of the review cache. A published State is never mutated;
// transitions that change anything return a new pointer.
type State struct {
	Products      map[string]*models.ProductReviewData
	Client        reviewclient.ReviewClient
	ClientError   string
	IsInitialized bool
	IsOnline      bool
	GlobalLoading bool
	GlobalError   string
}

// InitialState returns an empty, online cache
func InitialState() *State {
	return &State{
		Products: map[string]*models.ProductReviewData{},
		IsOnline: true,
	}
}

// clone copies the root fields and the products map. Slices themselves are
// shared until a handler replaces them.
func (s *State) clone() *State {
	next := *s
	next.Products = make(map[string]*models.ProductReviewData, len(s.Products))
	for k, v := range s.Products {
		next.Products[k] = v
	}
	return &next
}

// Config is accepted at store construction
type Config struct {
	AutoRetry         bool
	RetryAttempts     int
	RetryDelay        time.Duration
	CacheTimeout      time.Duration
	EnableOfflineMode bool
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		AutoRetry:         true,
		RetryAttempts:     3,
		RetryDelay:        time.Second,
		CacheTimeout:      5 * time.Minute,
		EnableOfflineMode: true,
	}
}

// normalize fills zero numeric fields with defaults. Booleans are taken as given.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = def.RetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.CacheTimeout <= 0 {
		c.CacheTimeout = def.CacheTimeout
	}
	return c
}

// GlobalStatus is a snapshot of the non-product part of the state
type GlobalStatus struct {
	IsInitialized  bool   `json:"is_initialized"`
	IsOnline       bool   `json:"is_online"`
	ClientReady    bool   `json:"client_ready"`
	ClientError    string `json:"client_error,omitempty"`
	GlobalLoading  bool   `json:"global_loading"`
	GlobalError    string `json:"global_error,omitempty"`
	CachedProducts int    `json:"cached_products"`
}

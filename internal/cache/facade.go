package cache

import (
	"time"

	"review-cache/internal/models"
)

// Facade is the read/dispatch surface consumed by handlers and services
type Facade interface {
	GetEntityData(productID string) models.ProductReviewData
	IsLoading(productID string) bool
	HasError(productID string) bool
	IsCached(productID string) bool
	CacheAge(productID string) (time.Duration, bool)
	Status() GlobalStatus

	ClearEntityCache(productID string)
	ClearAllCache()
	RefreshEntity(productID string)
	ResetAllData()
	Dispatch(action Action)
}

var _ Facade = (*Store)(nil)

// GetEntityData returns a copy of the product slice, or an empty default
func (s *Store) GetEntityData(productID string) models.ProductReviewData {
	return s.State().Products[productID].Clone()
}

// IsLoading reports whether a fetch is in progress for the product
func (s *Store) IsLoading(productID string) bool {
	d := s.State().Products[productID]
	return d != nil && d.Loading
}

// HasError reports whether the product slice carries an error
func (s *Store) HasError(productID string) bool {
	d := s.State().Products[productID]
	return d != nil && d.Error != ""
}

// IsCached reports whether the product has ever been fetched or written
func (s *Store) IsCached(productID string) bool {
	d := s.State().Products[productID]
	return d != nil && d.LastFetched != nil
}

// CacheAge returns how long ago the product slice was last written
func (s *Store) CacheAge(productID string) (time.Duration, bool) {
	d := s.State().Products[productID]
	if d == nil || d.LastFetched == nil {
		return 0, false
	}
	return s.clock.Now().Sub(*d.LastFetched), true
}

// Status returns the global part of the state
func (s *Store) Status() GlobalStatus {
	st := s.State()
	return GlobalStatus{
		IsInitialized:  st.IsInitialized,
		IsOnline:       st.IsOnline,
		ClientReady:    st.Client != nil,
		ClientError:    st.ClientError,
		GlobalLoading:  st.GlobalLoading,
		GlobalError:    st.GlobalError,
		CachedProducts: len(st.Products),
	}
}

// ClearEntityCache evicts one product slice
func (s *Store) ClearEntityCache(productID string) {
	if productID == "" {
		return
	}
	s.Dispatch(ClearCache{ProductID: productID})
}

// ClearAllCache evicts every product slice
func (s *Store) ClearAllCache() {
	s.Dispatch(ClearCache{})
}

// RefreshEntity drops the product slice so the next read fetches it again
func (s *Store) RefreshEntity(productID string) {
	s.Dispatch(ResetProductData{ProductID: productID})
}

// ResetAllData clears every slice and the global error
func (s *Store) ResetAllData() {
	s.Dispatch(ResetAllData{})
}

package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"review-cache/internal/cache"
	"review-cache/internal/util"

	"go.uber.org/zap"
)

// StalenessSweeper evicts product slices that have not been refreshed for
// twice the cache timeout
type StalenessSweeper struct {
	store    *cache.Store
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStalenessSweeper creates a sweeper that runs every CacheTimeout
func NewStalenessSweeper(store *cache.Store) *StalenessSweeper {
	return &StalenessSweeper{
		store:    store,
		interval: store.Config().CacheTimeout,
		logger:   util.GetLogger(),
	}
}

// Start launches the sweep loop. Calling Start twice is a no-op.
func (s *StalenessSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("Starting staleness sweeper", zap.Duration("interval", s.interval))
	go s.loop(ctx, s.done)
}

func (s *StalenessSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	clock := s.store.Clock()
	for {
		select {
		case <-ctx.Done():
			return
		case <-clock.After(s.interval):
			s.Sweep(clock.Now())
		}
	}
}

// Sweep evicts every stale slice and returns the evicted product ids
func (s *StalenessSweeper) Sweep(now time.Time) []string {
	maxAge := 2 * s.store.Config().CacheTimeout

	var stale []string
	for id, d := range s.store.State().Products {
		if d == nil || d.LastFetched == nil {
			continue
		}
		if now.Sub(*d.LastFetched) > maxAge {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)

	for _, id := range stale {
		s.store.Dispatch(cache.ClearCache{ProductID: id})
		util.CacheEvictionsTotal.Inc()
	}
	if len(stale) > 0 {
		s.logger.Info("Evicted stale product reviews", zap.Strings("product_ids", stale))
	}
	return stale
}

// Stop ends the sweep loop and waits for it to exit
func (s *StalenessSweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Staleness sweeper stopped")
}

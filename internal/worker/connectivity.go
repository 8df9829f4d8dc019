package worker

import (
	"context"
	"sync"
	"time"

	"review-cache/internal/cache"
	"review-cache/internal/util"

	"go.uber.org/zap"
)

// Pinger probes the review service
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivityMonitor keeps the store's online flag in line with the
// reachability of the review service
type ConnectivityMonitor struct {
	pinger   Pinger
	store    *cache.Store
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConnectivityMonitor creates a new connectivity monitor
func NewConnectivityMonitor(pinger Pinger, store *cache.Store, interval time.Duration) *ConnectivityMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &ConnectivityMonitor{
		pinger:   pinger,
		store:    store,
		interval: interval,
		timeout:  timeout,
		logger:   util.GetLogger(),
	}
}

// Check probes once and dispatches SET_ONLINE_STATUS when reachability changed
func (m *ConnectivityMonitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(probeCtx)
	if ctx.Err() != nil {
		// shutting down, not a connectivity change
		return m.store.State().IsOnline
	}
	online := err == nil

	if online {
		util.ReviewServiceOnline.Set(1)
	} else {
		util.ReviewServiceOnline.Set(0)
	}

	if m.store.State().IsOnline != online {
		if online {
			m.logger.Info("Review service back online")
		} else {
			m.logger.Warn("Review service unreachable, switching to offline", zap.Error(err))
		}
		m.store.Dispatch(cache.SetOnlineStatus{Online: online})
	}
	return online
}

// Start launches the probe loop
func (m *ConnectivityMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}(m.done)
}

// Stop ends the probe loop
func (m *ConnectivityMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

package cache

import (
	"sync"
	"sync/atomic"

	"review-cache/internal/util"

	"go.uber.org/zap"
)

// Listener is notified after a dispatch changed the state. Listeners run on
// the dispatching goroutine and must not call Dispatch.
type Listener func(*State)

// Store owns the review cache state and applies actions one at a time
type Store struct {
	cfg    Config
	clock  util.Clock
	logger *zap.Logger

	mu        sync.Mutex
	state     atomic.Pointer[State]
	listeners map[uint64]Listener
	nextID    uint64
	closed    bool
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the clock used to stamp lastFetched
func WithClock(c util.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithLogger replaces the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithInitialState seeds the store
func WithInitialState(st *State) Option {
	return func(s *Store) {
		if st != nil {
			s.state.Store(st)
		}
	}
}

// NewStore creates a new review cache store
func NewStore(cfg Config, opts ...Option) *Store {
	s := &Store{
		cfg:       cfg.normalize(),
		clock:     util.RealClock(),
		logger:    util.GetLogger(),
		listeners: make(map[uint64]Listener),
	}
	s.state.Store(InitialState())

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the normalized store configuration
func (s *Store) Config() Config {
	return s.cfg
}

// Clock returns the clock the store stamps actions with
func (s *Store) Clock() util.Clock {
	return s.clock
}

// State returns the current state. The returned value must not be modified.
func (s *Store) State() *State {
	return s.state.Load()
}

// Dispatch applies an action. Dispatches are serialized and listeners observe
// states in dispatch order.
func (s *Store) Dispatch(action Action) {
	if action == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Debug("Dropping action on closed store", zap.String("type", action.Type()))
		return
	}

	prev := s.state.Load()
	next := Reduce(prev, action, s.clock.Now())
	util.CacheActionsTotal.WithLabelValues(action.Type()).Inc()
	if next == prev {
		return
	}

	s.state.Store(next)
	util.CacheProducts.Set(float64(len(next.Products)))

	for _, l := range s.listeners {
		l(next)
	}
}

// Subscribe registers a listener and returns a function that removes it
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Close stops the store from accepting further actions
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.listeners = make(map[uint64]Listener)
}

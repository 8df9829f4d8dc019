package worker

import (
	"context"
	"sync"
	"time"

	"review-cache/internal/util"

	"go.uber.org/zap"
)

// PrunableLedger drops processed-event entries older than a cutoff
type PrunableLedger interface {
	PruneProcessedEvents(ctx context.Context, before time.Time) (int64, error)
}

// LedgerPruner keeps the processed events ledger bounded by deleting entries
// older than the retention window
type LedgerPruner struct {
	ledger    PrunableLedger
	retention time.Duration
	interval  time.Duration
	clock     util.Clock
	logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLedgerPruner creates a pruner. A nil clock means wall time.
func NewLedgerPruner(ledger PrunableLedger, retention, interval time.Duration, clock util.Clock) *LedgerPruner {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if clock == nil {
		clock = util.RealClock()
	}
	return &LedgerPruner{
		ledger:    ledger,
		retention: retention,
		interval:  interval,
		clock:     clock,
		logger:    util.GetLogger(),
	}
}

// Prune deletes entries processed before now minus the retention window
func (p *LedgerPruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.clock.Now().Add(-p.retention)
	n, err := p.ledger.PruneProcessedEvents(ctx, cutoff)
	if err != nil {
		p.logger.Error("Failed to prune processed events", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		util.LedgerPrunedTotal.Add(float64(n))
		p.logger.Info("Pruned processed events",
			zap.Int64("count", n),
			zap.Time("before", cutoff))
	}
	return n, nil
}

// Start launches the prune loop. Calling Start twice is a no-op.
func (p *LedgerPruner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Info("Starting ledger pruner",
		zap.Duration("interval", p.interval),
		zap.Duration("retention", p.retention))
	go p.loop(ctx, p.done)
}

func (p *LedgerPruner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.interval):
			_, _ = p.Prune(ctx)
		}
	}
}

// Stop ends the prune loop and waits for it to exit
func (p *LedgerPruner) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

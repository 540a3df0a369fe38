package syncclient

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultInterval = 3 * time.Second

// Poller refreshes a View on a fixed interval. A failed fetch is logged and
// simply retried on the next tick.
type Poller struct {
	fetcher  Fetcher
	view     *View
	logger   *slog.Logger
	now      func() time.Time
	onUpdate func(Snapshot)

	mu        sync.Mutex
	interval  time.Duration
	suspended int
	resetCh   chan time.Duration
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// OnUpdate registers a callback run after each successful reconcile.
func OnUpdate(fn func(Snapshot)) Option {
	return func(p *Poller) { p.onUpdate = fn }
}

func NewPoller(fetcher Fetcher, view *View, logger *slog.Logger, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		view:     view,
		logger:   logger,
		now:      time.Now,
		interval: DefaultInterval,
		resetCh:  make(chan time.Duration, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Suspend stops polling while a notification list is open for reading.
// Calls nest; polling resumes once every Suspend has been matched by Resume.
func (p *Poller) Suspend() {
	p.mu.Lock()
	p.suspended++
	p.mu.Unlock()
}

func (p *Poller) Resume() {
	p.mu.Lock()
	if p.suspended > 0 {
		p.suspended--
	}
	p.mu.Unlock()
}

func (p *Poller) Suspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suspended > 0
}

func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Run polls immediately and then on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	_ = p.PollOnce(ctx)

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.resetCh:
			ticker.Reset(d)
		case <-ticker.C:
			if p.Suspended() {
				continue
			}
			_ = p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches one snapshot, bounded by the poll interval, and applies it.
func (p *Poller) PollOnce(ctx context.Context) error {
	interval := p.Interval()
	fetchCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()

	started := p.now()
	snap, err := p.fetcher.Fetch(fetchCtx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("sync poll failed", "err", err)
		}
		return err
	}
	p.view.Apply(snap, started)

	if snap.PollIntervalMs > 0 {
		if d := time.Duration(snap.PollIntervalMs) * time.Millisecond; d != interval {
			p.mu.Lock()
			p.interval = d
			p.mu.Unlock()
			select {
			case p.resetCh <- d:
			default:
			}
		}
	}
	if p.onUpdate != nil {
		p.onUpdate(snap)
	}
	return nil
}

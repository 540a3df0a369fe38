// Package jobs runs the background sweep that completes confirmed
// appointments once their date has passed.
package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Completer is satisfied by *booking.Service.
type Completer interface {
	CompletePast(ctx context.Context, asOf time.Time) (int, error)
	Now() time.Time
}

type Worker struct {
	completer Completer
	logger    *slog.Logger
	interval  time.Duration
}

type WorkerConfig struct {
	Interval time.Duration
}

func NewWorker(completer Completer, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Worker{
		completer: completer,
		logger:    logger,
		interval:  cfg.Interval,
	}
}

// Run sweeps once at startup and then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	n, err := w.completer.CompletePast(ctx, w.completer.Now())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("completion sweep failed", "err", err)
		return
	}
	if n > 0 {
		w.logger.Debug("completion sweep", "completed", n)
	}
}

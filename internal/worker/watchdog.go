package worker

import (
	"context"
	"time"

	"github.com/ignite/deduply/internal/pkg/logger"
	"github.com/ignite/deduply/internal/service/jobs"
)

const (
	// DefaultWatchdogInterval is how often we scan for stalled jobs.
	DefaultWatchdogInterval = 2 * time.Minute

	// DefaultStaleAfter is how long a running job may go without a progress
	// write before the runner is presumed dead.
	DefaultStaleAfter = 10 * time.Minute
)

// Watchdog periodically fails running jobs that stopped reporting progress.
// A runner that dies mid-job can never finish its row; without this the job
// would show as running forever.
type Watchdog struct {
	services   []*jobs.Service
	interval   time.Duration
	staleAfter time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatchdog creates a watchdog over the given job services.
func NewWatchdog(interval, staleAfter time.Duration, services ...*jobs.Service) *Watchdog {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Watchdog{
		services:   services,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

// Start begins the watchdog loop in a goroutine.
func (w *Watchdog) Start() {
	w.ctx, w.cancel = context.WithCancel(context.Background())
	go func() {
		logger.Info("watchdog started",
			"interval", w.interval.String(), "stale_after", w.staleAfter.String())

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.ctx.Done():
				logger.Info("watchdog stopped")
				return
			case <-ticker.C:
				w.runOnce()
			}
		}
	}()
}

// Stop halts the loop.
func (w *Watchdog) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Watchdog) runOnce() {
	ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
	defer cancel()

	for _, svc := range w.services {
		if _, err := svc.FailStale(ctx, w.staleAfter); err != nil {
			logger.Error("watchdog scan failed", "kind", string(svc.Kind()), "error", err.Error())
		}
	}
}

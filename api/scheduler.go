/*
scheduler.go - Automated expiration scheduler

PURPOSE:
  Periodically fires the expiration pass so points roll off without an
  external cron. The coordinator's same-day guard makes extra fires
  harmless: only the first completed sweep of a calendar day mutates
  the good-behavior pipeline.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Fires immediately on start, then on every tick
  - Start/Stop with a WaitGroup for clean shutdown

CONFIGURATION:
  - CheckInterval: How often to fire (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewExpirationScheduler(coordinator, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerPass endpoint (manual runs)
  - discipline/batch.go: The pass itself
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/discipline-engine/discipline"
)

// ExpirationScheduler fires the daily expiration pass.
type ExpirationScheduler struct {
	Coordinator   *discipline.Coordinator
	CheckInterval time.Duration
	Enabled       bool
	Log           *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpirationScheduler creates a new scheduler.
func NewExpirationScheduler(coord *discipline.Coordinator, log *zap.Logger) *ExpirationScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpirationScheduler{
		Coordinator:   coord,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (es *ExpirationScheduler) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		es.Log.Info("scheduler disabled, not starting")
		return
	}

	es.ticker = time.NewTicker(es.CheckInterval)
	es.wg.Add(1)

	go es.run()

	es.Log.Info("scheduler started", zap.Duration("check_interval", es.CheckInterval))
}

// Stop stops the scheduler.
func (es *ExpirationScheduler) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		es.ticker.Stop()
		close(es.stop)
		es.wg.Wait()
		es.Log.Info("scheduler stopped")
	}
}

func (es *ExpirationScheduler) run() {
	defer es.wg.Done()

	// Run immediately on start
	es.fire()

	for {
		select {
		case <-es.ticker.C:
			es.fire()
		case <-es.stop:
			return
		}
	}
}

func (es *ExpirationScheduler) fire() {
	ctx := context.Background()

	summary, err := es.Coordinator.RunExpirationPass(ctx, discipline.PassOptions{Notify: true})
	if err != nil {
		es.Log.Error("scheduled expiration pass failed", zap.Error(err))
		return
	}

	if summary.SROExpired > 0 || summary.GBROExpired > 0 {
		es.Log.Info("scheduled expiration pass",
			zap.Int("sro_expired", summary.SROExpired),
			zap.Int("gbro_expired", summary.GBROExpired))
	}
}

// RunNow triggers an immediate pass (for testing/admin).
func (es *ExpirationScheduler) RunNow() {
	es.fire()
}

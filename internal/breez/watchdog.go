package breez

import (
	"context"
	"fmt"
	"time"

	"github.com/breez/payments-rest-api/internal/config"
	"github.com/breez/payments-rest-api/internal/logger"
)

const (
	resyncBaseTimeout = 5 * time.Second
	resyncStepTimeout = 2 * time.Second
	resyncMaxTimeout  = 30 * time.Second
)

// Watchdog keeps the engine connection synced. Each iteration checks
// whether a SYNCED event arrived recently; when the connection goes
// stale it forces a resync with a timeout that grows with consecutive
// failures, and after enough failures it asks the manager for a fresh
// connection. Healthy iterations run the maintenance sweeps: expiring
// old payment records and accepting proposed fees on stuck swaps.
type Watchdog struct {
	manager  *Manager
	cfg      config.SyncConfig
	log      *logger.Logger
	failures int
}

func NewWatchdog(manager *Manager, cfg config.SyncConfig, log *logger.Logger) *Watchdog {
	return &Watchdog{
		manager: manager,
		cfg:     cfg,
		log:     log,
	}
}

// Run loops until ctx is cancelled. Intended to run in its own
// goroutine for the life of the process.
func (w *Watchdog) Run(ctx context.Context) {
	w.log.LogSync("START", "sync watchdog started")
	for {
		delay := w.iterate(ctx)
		select {
		case <-ctx.Done():
			w.log.LogSync("STOP", "sync watchdog stopped")
			return
		case <-time.After(delay):
		}
	}
}

// iterate performs one health check and returns the delay before the
// next one.
func (w *Watchdog) iterate(ctx context.Context) time.Duration {
	handler, err := w.manager.Handler()
	if err != nil {
		w.log.Error("SYNC", fmt.Sprintf("Error obtaining payment handler: %v", err))
		return w.cfg.ErrorRetryDelay
	}

	if w.isHealthy(handler) {
		w.failures = 0
		w.runSweeps(handler)
		return w.cfg.HealthyInterval
	}

	w.log.LogSync("STALE", fmt.Sprintf("no sync event within %s, forcing resync (failure streak %d)", w.cfg.Staleness, w.failures))

	if w.resync(ctx, handler) {
		w.log.LogSync("RECOVER", "resync succeeded")
		w.failures = 0
		w.reconcile(handler)
		return w.cfg.HealthyInterval
	}

	w.failures++
	w.log.Warn("SYNC", fmt.Sprintf("resync attempt failed (%d/%d)", w.failures, w.cfg.FailureCeiling))

	if w.failures >= w.cfg.FailureCeiling {
		w.log.Error("SYNC", "failure ceiling reached, reinitializing payment handler")
		w.failures = 0
		if _, err := w.manager.Reinitialize(); err != nil {
			w.log.Error("SYNC", fmt.Sprintf("Error reinitializing payment handler: %v", err))
			return w.cfg.ErrorRetryDelay
		}
	}
	return w.cfg.DegradedInterval
}

func (w *Watchdog) isHealthy(handler *Handler) bool {
	if !handler.IsSynced() {
		return false
	}
	lastSync := handler.Tracker().LastSync()
	return !lastSync.IsZero() && time.Since(lastSync) < w.cfg.Staleness
}

// resyncTimeout grows two seconds per consecutive failure from a five
// second base, capped at thirty.
func resyncTimeout(failures int) time.Duration {
	timeout := resyncBaseTimeout + time.Duration(failures)*resyncStepTimeout
	if timeout > resyncMaxTimeout {
		timeout = resyncMaxTimeout
	}
	return timeout
}

// resync clears the sync flag and waits for the engine to report a
// fresh SYNCED event.
func (w *Watchdog) resync(ctx context.Context, handler *Handler) bool {
	handler.Tracker().SetSynced(false)
	return handler.WaitForSync(ctx, resyncTimeout(w.failures))
}

// reconcile re-checks every payment still in a non-terminal state after
// a recovered outage. Fresh lookups write back through the tracker, so
// any transition that happened while events were lost fans out to the
// notifier from there.
func (w *Watchdog) reconcile(handler *Handler) {
	pending := handler.Tracker().PendingIdentifiers()
	if len(pending) == 0 {
		return
	}
	w.log.LogSync("RECONCILE", fmt.Sprintf("re-checking %d pending payments after resync", len(pending)))

	for _, identifier := range pending {
		if _, err := handler.CheckPaymentStatus(identifier); err != nil {
			w.log.Warn("SYNC", fmt.Sprintf("reconcile check failed for %s: %v", identifier, err))
		}
	}
}

func (w *Watchdog) runSweeps(handler *Handler) {
	handler.Tracker().ExpireOlderThan(w.cfg.Retention)

	if handled, err := handler.HandleWaitingFeeAcceptance(); err != nil {
		w.log.Warn("SYNC", fmt.Sprintf("fee acceptance sweep failed: %v", err))
	} else if handled > 0 {
		w.log.LogSync("FEES", fmt.Sprintf("accepted proposed fees on %d swaps", handled))
	}
}

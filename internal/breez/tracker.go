package breez

import (
	"fmt"
	"sync"
	"time"

	"github.com/breez/payments-rest-api/internal/logger"
)

// Tracker is the single point of truth for locally-known payment state,
// fed by the engine's event stream and overwritten by fresh lookups in
// CheckPaymentStatus. All mutations go through its lock; the engine's
// delivery goroutine and request handlers touch it concurrently.
type Tracker struct {
	mu sync.RWMutex

	synced     bool
	lastSync   time.Time
	notifier   Notifier
	statuses   map[string]PaymentState
	errors     map[string]string
	timestamps map[string]time.Time
	details    map[string]*PaymentRecord
	paid       map[string]struct{}
	refunded   map[string]struct{}

	log *logger.Logger
}

func NewTracker(log *logger.Logger) *Tracker {
	return &Tracker{
		statuses:   make(map[string]PaymentState),
		errors:     make(map[string]string),
		timestamps: make(map[string]time.Time),
		details:    make(map[string]*PaymentRecord),
		paid:       make(map[string]struct{}),
		refunded:   make(map[string]struct{}),
		log:        log,
	}
}

// OnEvent dispatches an engine event into tracked state. Events whose
// payload yields no identifier are dropped without mutation.
func (t *Tracker) OnEvent(event Event) {
	if event.Kind == EventSynced {
		t.mu.Lock()
		t.synced = true
		t.lastSync = time.Now()
		t.mu.Unlock()
		t.log.LogSync("EVENT", "engine reported synced")
		return
	}

	identifier := event.Details.Identifier()
	if identifier == "" {
		t.log.Warn("TRACKER", "could not determine payment identifier from event, dropping")
		return
	}

	status := event.Kind.State()
	errMsg := ""
	if event.Kind == EventPaymentFailed {
		errMsg = event.Details.Error
		if errMsg == "" {
			errMsg = "Unknown error"
		}
	}

	t.UpdateState(identifier, status, event.Payment, errMsg)

	if event.Kind == EventPaymentRefunded {
		t.mu.Lock()
		t.refunded[identifier] = struct{}{}
		t.mu.Unlock()
	}
}

// UpdateState writes the record for identifier: status, timestamp,
// optional details snapshot, and the error field, which is non-empty
// only while status is FAILED. Paid-set membership is added for
// WAITING_CONFIRMATION/SUCCEEDED and never removed here; a later FAILED
// event leaves the identifier paid. That mirrors the engine's swap
// semantics and is corrected externally by fresh lookups when it
// matters.
func (t *Tracker) UpdateState(identifier string, status PaymentState, details *PaymentRecord, errMsg string) {
	if identifier == "" {
		t.log.Warn("TRACKER", fmt.Sprintf("attempted state update with empty identifier, status %s", status))
		return
	}

	t.mu.Lock()
	previous, seen := t.statuses[identifier]
	notifier := t.notifier
	t.statuses[identifier] = status
	t.timestamps[identifier] = time.Now()

	if details != nil {
		t.details[identifier] = details
	}

	if errMsg != "" {
		t.errors[identifier] = errMsg
	} else if status != StateFailed {
		delete(t.errors, identifier)
	}

	if status.IsPaidState() {
		if _, ok := t.paid[identifier]; !ok {
			t.paid[identifier] = struct{}{}
			t.log.LogPayment("PAID", identifier, fmt.Sprintf("added to paid set (status %s)", status))
		}
	}
	t.mu.Unlock()

	if errMsg != "" {
		t.log.LogPayment("STATE", identifier, fmt.Sprintf("updated to %s with error: %s", status, errMsg))
	} else {
		t.log.LogPayment("STATE", identifier, fmt.Sprintf("updated to %s", status))
	}

	// Fan out only on actual transitions, outside the lock. Repeated
	// deliveries of the same state stay quiet.
	if notifier != nil && (!seen || previous != status) {
		notifier.NotifyPayment(identifier, status, details, errMsg)
	}
}

// SetNotifier installs the fan-out target invoked on state transitions.
// Call before the engine starts delivering events.
func (t *Tracker) SetNotifier(notifier Notifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifier = notifier
}

// LastSync returns the time of the most recent SYNCED event, zero if
// none has been seen since the last reset.
func (t *Tracker) LastSync() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSync
}

// Status returns the tracked state for identifier, or false when the
// identifier has never been seen.
func (t *Tracker) Status(identifier string) (PaymentState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status, ok := t.statuses[identifier]
	return status, ok
}

// Error returns the stored failure message, empty unless FAILED.
func (t *Tracker) Error(identifier string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.errors[identifier]
}

// Timestamp returns the time of the last state write for identifier.
func (t *Tracker) Timestamp(identifier string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.timestamps[identifier]
	return ts, ok
}

// Details returns the last cached engine snapshot for identifier.
func (t *Tracker) Details(identifier string) *PaymentRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.details[identifier]
}

// IsPaid honors both the paid set and the current status: entries can
// land in the paid set without a status write through legacy paths, and
// the set is never pruned before expiry.
func (t *Tracker) IsPaid(identifier string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.paid[identifier]; ok {
		return true
	}
	return t.statuses[identifier].IsPaidState()
}

// MarkPaid adds the identifier to the paid set without touching status.
func (t *Tracker) MarkPaid(identifier string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paid[identifier] = struct{}{}
}

// IsRefunded reports refunded-set membership.
func (t *Tracker) IsRefunded(identifier string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.refunded[identifier]
	return ok
}

// IsSynced reports whether a SYNCED event has been seen since the last
// reset.
func (t *Tracker) IsSynced() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.synced
}

// SetSynced force-sets the sync flag; the watchdog clears it before a
// resync attempt so a fresh SYNCED event is required to pass.
func (t *Tracker) SetSynced(synced bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.synced = synced
	if synced {
		t.lastSync = time.Now()
	}
}

// PendingIdentifiers lists every identifier currently in a non-terminal
// state, for the watchdog's reconciliation sweep.
func (t *Tracker) PendingIdentifiers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var pending []string
	for identifier, status := range t.statuses {
		if !status.IsTerminal() {
			pending = append(pending, identifier)
		}
	}
	return pending
}

// ExpireOlderThan removes every trace of identifiers whose last update
// is older than maxAge. Bounds memory; callers are not notified.
func (t *Tracker) ExpireOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	t.mu.Lock()
	var expired []string
	for identifier, ts := range t.timestamps {
		if ts.Before(cutoff) {
			expired = append(expired, identifier)
		}
	}
	for _, identifier := range expired {
		delete(t.statuses, identifier)
		delete(t.errors, identifier)
		delete(t.timestamps, identifier)
		delete(t.details, identifier)
		delete(t.paid, identifier)
		delete(t.refunded, identifier)
	}
	t.mu.Unlock()

	if len(expired) > 0 {
		t.log.Info("TRACKER", fmt.Sprintf("cleared %d old payment records", len(expired)))
	}
	return len(expired)
}

// Reset clears every container and the sync flag. Called on disconnect.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.statuses = make(map[string]PaymentState)
	t.errors = make(map[string]string)
	t.timestamps = make(map[string]time.Time)
	t.details = make(map[string]*PaymentRecord)
	t.paid = make(map[string]struct{})
	t.refunded = make(map[string]struct{})
	t.synced = false
	t.lastSync = time.Time{}
	t.mu.Unlock()
	t.log.Info("TRACKER", "tracker reset complete")
}

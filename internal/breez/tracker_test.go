package breez_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/breez/payments-rest-api/internal/breez"
	"github.com/breez/payments-rest-api/internal/logger"
)

func newTestTracker() *breez.Tracker {
	return breez.NewTracker(logger.NewLogger())
}

func TestTrackerSyncEvent(t *testing.T) {
	tracker := newTestTracker()
	assert.False(t, tracker.IsSynced())

	tracker.OnEvent(breez.Event{Kind: breez.EventSynced})

	assert.True(t, tracker.IsSynced())
	assert.False(t, tracker.LastSync().IsZero())
}

func TestTrackerIdentifierResolutionOrder(t *testing.T) {
	tracker := newTestTracker()

	// Payment hash wins over destination and swap id.
	tracker.OnEvent(breez.Event{
		Kind: breez.EventPaymentPending,
		Details: breez.EventDetails{
			PaymentHash: "hash1",
			Destination: "dest1",
			SwapID:      "swap1",
		},
	})
	_, ok := tracker.Status("hash1")
	assert.True(t, ok)
	_, ok = tracker.Status("dest1")
	assert.False(t, ok)

	// Destination wins over swap id.
	tracker.OnEvent(breez.Event{
		Kind:    breez.EventPaymentPending,
		Details: breez.EventDetails{Destination: "dest2", SwapID: "swap2"},
	})
	_, ok = tracker.Status("dest2")
	assert.True(t, ok)

	// Swap id is the last resort.
	tracker.OnEvent(breez.Event{
		Kind:    breez.EventPaymentPending,
		Details: breez.EventDetails{SwapID: "swap3"},
	})
	_, ok = tracker.Status("swap3")
	assert.True(t, ok)
}

func TestTrackerDropsEventsWithoutIdentifier(t *testing.T) {
	tracker := newTestTracker()

	tracker.OnEvent(breez.Event{Kind: breez.EventPaymentSucceeded})

	assert.Empty(t, tracker.PendingIdentifiers())
	_, ok := tracker.Status("")
	assert.False(t, ok)
}

func TestTrackerErrorOnlyWhileFailed(t *testing.T) {
	tracker := newTestTracker()

	// Failure without a message gets a default.
	tracker.OnEvent(breez.Event{
		Kind:    breez.EventPaymentFailed,
		Details: breez.EventDetails{PaymentHash: "h"},
	})
	status, _ := tracker.Status("h")
	assert.Equal(t, breez.StateFailed, status)
	assert.Equal(t, "Unknown error", tracker.Error("h"))

	// Leaving FAILED clears the error.
	tracker.OnEvent(breez.Event{
		Kind:    breez.EventPaymentPending,
		Details: breez.EventDetails{PaymentHash: "h"},
	})
	assert.Empty(t, tracker.Error("h"))

	// Explicit failure message is kept verbatim.
	tracker.OnEvent(breez.Event{
		Kind:    breez.EventPaymentFailed,
		Details: breez.EventDetails{PaymentHash: "h", Error: "route not found"},
	})
	assert.Equal(t, "route not found", tracker.Error("h"))
}

func TestTrackerPaidSetIsMonotonic(t *testing.T) {
	tracker := newTestTracker()

	tracker.OnEvent(breez.Event{
		Kind:    breez.EventPaymentWaitingConfirmation,
		Details: breez.EventDetails{PaymentHash: "h"},
	})
	assert.True(t, tracker.IsPaid("h"))

	// A later failure does not pull the payment out of the paid set.
	tracker.OnEvent(breez.Event{
		Kind:    breez.EventPaymentFailed,
		Details: breez.EventDetails{PaymentHash: "h"},
	})
	status, _ := tracker.Status("h")
	assert.Equal(t, breez.StateFailed, status)
	assert.True(t, tracker.IsPaid("h"))
}

func TestTrackerRefundedSet(t *testing.T) {
	tracker := newTestTracker()

	tracker.OnEvent(breez.Event{
		Kind:    breez.EventPaymentRefunded,
		Details: breez.EventDetails{SwapID: "swap"},
	})

	assert.True(t, tracker.IsRefunded("swap"))
	status, _ := tracker.Status("swap")
	assert.Equal(t, breez.StateRefunded, status)
}

func TestTrackerExpireOlderThan(t *testing.T) {
	tracker := newTestTracker()

	tracker.OnEvent(breez.Event{
		Kind:    breez.EventPaymentSucceeded,
		Details: breez.EventDetails{PaymentHash: "old"},
	})
	tracker.MarkPaid("old")

	time.Sleep(10 * time.Millisecond)
	expired := tracker.ExpireOlderThan(time.Millisecond)

	assert.Equal(t, 1, expired)
	_, ok := tracker.Status("old")
	assert.False(t, ok)
	assert.False(t, tracker.IsPaid("old"))
}

func TestTrackerNotifiesOnTransitionsOnly(t *testing.T) {
	tracker := newTestTracker()

	var calls []breez.PaymentState
	tracker.SetNotifier(breez.NotifierFunc(func(identifier string, status breez.PaymentState, payment *breez.PaymentRecord, errMsg string) {
		calls = append(calls, status)
	}))

	event := breez.Event{
		Kind:    breez.EventPaymentPending,
		Details: breez.EventDetails{PaymentHash: "h"},
	}
	tracker.OnEvent(event)
	tracker.OnEvent(event) // duplicate delivery, no second notification
	tracker.OnEvent(breez.Event{
		Kind:    breez.EventPaymentSucceeded,
		Details: breez.EventDetails{PaymentHash: "h"},
	})

	assert.Equal(t, []breez.PaymentState{breez.StatePending, breez.StateSucceeded}, calls)
}

func TestTrackerReset(t *testing.T) {
	tracker := newTestTracker()

	tracker.OnEvent(breez.Event{Kind: breez.EventSynced})
	tracker.OnEvent(breez.Event{
		Kind:    breez.EventPaymentSucceeded,
		Details: breez.EventDetails{PaymentHash: "h"},
	})

	tracker.Reset()

	assert.False(t, tracker.IsSynced())
	assert.True(t, tracker.LastSync().IsZero())
	_, ok := tracker.Status("h")
	assert.False(t, ok)
	assert.False(t, tracker.IsPaid("h"))
}

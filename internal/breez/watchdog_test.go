package breez

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/breez/payments-rest-api/internal/config"
	"github.com/breez/payments-rest-api/internal/logger"
)

func TestResyncTimeoutGrowsWithFailures(t *testing.T) {
	cases := []struct {
		failures int
		expected time.Duration
	}{
		{0, 5 * time.Second},
		{1, 7 * time.Second},
		{2, 9 * time.Second},
		{3, 11 * time.Second},
		{4, 13 * time.Second},
		{12, 29 * time.Second},
		{13, 30 * time.Second},
		{50, 30 * time.Second},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, resyncTimeout(tc.failures), "failures=%d", tc.failures)
	}
}

func TestWatchdogHealthCheck(t *testing.T) {
	log := logger.NewLogger()
	watchdog := NewWatchdog(nil, config.SyncConfig{Staleness: 30 * time.Second}, log)
	handler := &Handler{tracker: NewTracker(log), log: log}

	// Never synced.
	assert.False(t, watchdog.isHealthy(handler))

	// Fresh sync event.
	handler.tracker.OnEvent(Event{Kind: EventSynced})
	assert.True(t, watchdog.isHealthy(handler))

	// Synced flag set but the last event is older than the staleness
	// window.
	handler.tracker.mu.Lock()
	handler.tracker.lastSync = time.Now().Add(-time.Minute)
	handler.tracker.mu.Unlock()
	assert.False(t, watchdog.isHealthy(handler))
}

func TestWatchdogSweepExpiresOldRecords(t *testing.T) {
	log := logger.NewLogger()
	watchdog := NewWatchdog(nil, config.SyncConfig{Retention: time.Millisecond}, log)

	engine := &sweepEngine{}
	handler := &Handler{engine: engine, tracker: NewTracker(log), log: log}
	handler.tracker.UpdateState("old", StateSucceeded, nil, "")

	time.Sleep(10 * time.Millisecond)
	watchdog.runSweeps(handler)

	_, ok := handler.tracker.Status("old")
	assert.False(t, ok)
}

func TestWatchdogReinitializesAfterFailureCeiling(t *testing.T) {
	log := logger.NewLogger()

	connects := 0
	connect := func(apiKey, mnemonic, network, workingDir string) (Engine, error) {
		connects++
		return &ceilingEngine{}, nil
	}
	manager := NewManager(config.BreezConfig{
		APIKey:     "key",
		Mnemonic:   "words",
		WorkingDir: t.TempDir(),
	}, connect, log)
	watchdog := NewWatchdog(manager, config.SyncConfig{
		Staleness:        time.Minute,
		HealthyInterval:  time.Minute,
		DegradedInterval: time.Second,
		ErrorRetryDelay:  time.Second,
		FailureCeiling:   5,
	}, log)

	first, err := manager.Handler()
	assert.NoError(t, err)
	assert.Equal(t, 1, connects)

	// Force the unhealthy path; the cancelled context makes every
	// resync attempt fail immediately.
	first.tracker.SetSynced(false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 4; i++ {
		watchdog.iterate(ctx)
	}
	assert.Equal(t, 4, watchdog.failures)
	assert.Equal(t, 1, connects)

	// The fifth consecutive failure reaches the ceiling: the manager
	// rebuilds the handler and the streak resets.
	watchdog.iterate(ctx)
	assert.Equal(t, 0, watchdog.failures)
	assert.Equal(t, 2, connects)

	rebuilt, err := manager.Handler()
	assert.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
}

// sweepEngine is the minimal engine surface runSweeps touches.
type sweepEngine struct {
	Engine
}

func (e *sweepEngine) ListPayments(filter ListFilter) ([]PaymentRecord, error) {
	return nil, nil
}

// ceilingEngine reports synced on listener registration so handler
// construction never blocks.
type ceilingEngine struct {
	Engine
}

func (e *ceilingEngine) AddListener(handler EventHandler) error {
	handler.OnEvent(Event{Kind: EventSynced})
	return nil
}

func (e *ceilingEngine) Disconnect() error { return nil }

package breez

import (
	"fmt"
	"sync"

	"github.com/breez/payments-rest-api/internal/config"
	"github.com/breez/payments-rest-api/internal/logger"
)

// Manager owns the handler lifecycle: lazy construction on first use,
// full teardown-and-rebuild when the watchdog gives up on a connection,
// and final disconnect on shutdown. All entry points serialize on one
// mutex so concurrent requests never see a half-built handler.
type Manager struct {
	mu      sync.Mutex
	handler *Handler

	cfg      config.BreezConfig
	connect  ConnectFunc
	notifier Notifier
	log      *logger.Logger
}

func NewManager(cfg config.BreezConfig, connect ConnectFunc, log *logger.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		connect: connect,
		log:     log,
	}
}

// SetNotifier records the fan-out target installed on every handler the
// manager builds, including rebuilds after reinitialization.
func (m *Manager) SetNotifier(notifier Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = notifier
	if m.handler != nil {
		m.handler.Tracker().SetNotifier(notifier)
	}
}

// Handler returns the live handler, building one if none exists.
func (m *Manager) Handler() (*Handler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handler != nil {
		return m.handler, nil
	}

	m.log.Info("MANAGER", "initializing payment handler")
	handler, err := NewHandler(m.cfg, m.connect, m.log)
	if err != nil {
		return nil, fmt.Errorf("initialize payment handler: %w", err)
	}
	if m.notifier != nil {
		handler.Tracker().SetNotifier(m.notifier)
	}
	m.handler = handler
	return m.handler, nil
}

// Reinitialize drops the current handler and builds a replacement. Used
// when repeated resyncs fail and only a fresh connection can recover.
func (m *Manager) Reinitialize() (*Handler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handler != nil {
		m.log.Warn("MANAGER", "tearing down payment handler for reinitialization")
		m.handler.Disconnect()
		m.handler = nil
	}

	handler, err := NewHandler(m.cfg, m.connect, m.log)
	if err != nil {
		return nil, fmt.Errorf("reinitialize payment handler: %w", err)
	}
	if m.notifier != nil {
		handler.Tracker().SetNotifier(m.notifier)
	}
	m.handler = handler
	m.log.Info("MANAGER", "payment handler reinitialized")
	return m.handler, nil
}

// Disconnect tears down the handler if one exists. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handler != nil {
		m.handler.Disconnect()
		m.handler = nil
		m.log.Info("MANAGER", "payment handler disconnected")
	}
}

package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/camstream/internal/events"
)

// Manager subscribes to session state changes and drives the status LED:
// solid while streaming, blinking during transitions, heartbeat after a
// failed cleanup and off when idle.
type Manager struct {
	controller  Controller
	eventBus    *events.Bus
	unsubscribe func()
	logger      *slog.Logger

	mu    sync.Mutex
	state string
}

// NewManager creates a new LED manager that reacts to session state changes
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Start begins listening for session state change events
func (m *Manager) Start() {
	m.unsubscribe = m.eventBus.Subscribe(func(e events.StateChangedEvent) {
		m.handleEvent(e)
	})
	m.apply("idle")
	m.logger.Info("LED manager started")
}

// Stop unsubscribes from events and turns the status LED off
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.apply("idle")
	m.logger.Info("LED manager stopped")
}

func (m *Manager) handleEvent(event events.StateChangedEvent) {
	m.logger.Debug("Session state changed", "state", event.State, "streaming", event.IsStreaming())
	m.apply(event.State)
}

func (m *Manager) apply(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state == m.state {
		return
	}
	m.state = state

	enabled, pattern := Pattern(state)
	if err := m.controller.Set(StatusLED, enabled, pattern); err != nil {
		m.logger.Warn("Failed to set status LED", "state", state, "error", err)
	}
}

// Pattern returns the status LED setting for a session state.
func Pattern(state string) (enabled bool, pattern string) {
	switch state {
	case "streaming":
		return true, "solid"
	case "starting", "stopping":
		return true, "blink"
	case "failed":
		return true, "heartbeat"
	default:
		return false, ""
	}
}

// GetController returns the underlying LED controller for direct API access
func (m *Manager) GetController() Controller {
	return m.controller
}

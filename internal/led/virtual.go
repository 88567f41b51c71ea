package led

import (
	"log/slog"
	"sync"
)

// virtual stands in on boards without a known status LED. It offers no
// LEDs to the API; state changes driven by the manager are only logged.
type virtual struct {
	logger *slog.Logger

	mu    sync.Mutex
	shown map[string]string
}

func newVirtual(logger *slog.Logger) *virtual {
	return &virtual{logger: logger, shown: make(map[string]string)}
}

func (v *virtual) Set(ledType string, enabled bool, pattern string) error {
	desc := "off"
	if enabled {
		desc = "on"
		if pattern != "" {
			desc = pattern
		}
	}

	v.mu.Lock()
	changed := v.shown[ledType] != desc
	v.shown[ledType] = desc
	v.mu.Unlock()

	if changed {
		v.logger.Debug("No LED hardware, state not shown", "led_type", ledType, "state", desc)
	}
	return nil
}

func (v *virtual) Available() []string { return []string{} }

func (v *virtual) Patterns() []string { return []string{} }

package led

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs implements Controller using Linux sysfs LED interface
type sysfs struct {
	root string
	leds map[string]string // LED type -> sysfs name mapping
}

func newSysfs(root string, leds map[string]string) *sysfs {
	return &sysfs{root: root, leds: leds}
}

// triggers maps patterns to kernel LED triggers.
var triggers = map[string]string{
	"solid":     "default-on",
	"blink":     "timer",
	"heartbeat": "heartbeat",
}

// Set controls an LED's state and optional pattern
func (s *sysfs) Set(ledType string, enabled bool, pattern string) error {
	sysfsName, ok := s.leds[ledType]
	if !ok {
		return fmt.Errorf("LED type %q not supported on this board", ledType)
	}

	ledPath := filepath.Join(s.root, sysfsName)
	if _, err := os.Stat(ledPath); err != nil {
		return fmt.Errorf("LED %q not found at %s", ledType, ledPath)
	}

	// switching off clears any trigger so the LED stays dark
	if pattern != "" || !enabled {
		trigger := "none"
		if enabled {
			trigger = pattern // raw trigger names pass through
			if t, ok := triggers[pattern]; ok {
				trigger = t
			}
		}
		if err := os.WriteFile(filepath.Join(ledPath, "trigger"), []byte(trigger), 0o644); err != nil {
			return fmt.Errorf("failed to set LED trigger: %w", err)
		}
	}

	brightness := "0"
	if enabled {
		brightness = "1"
	}
	if err := os.WriteFile(filepath.Join(ledPath, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}

	return nil
}

// Available returns the list of LED types supported by this controller
func (s *sysfs) Available() []string {
	types := make([]string, 0, len(s.leds))
	for ledType := range s.leds {
		types = append(types, ledType)
	}
	sort.Strings(types)
	return types
}

// Patterns returns the list of patterns supported by this controller
func (s *sysfs) Patterns() []string {
	return []string{"solid", "blink", "heartbeat"}
}

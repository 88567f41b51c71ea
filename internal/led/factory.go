package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// New creates a new LED controller based on board detection.
// Falls back to no-op controller if LEDs are not available.
func New(logger *slog.Logger) Controller {
	if logger == nil {
		logger = slog.Default()
	}
	boardModel := detectBoard(deviceTreeModelPath)
	logger.Info("Detecting board for LED control", "board_model", boardModel)

	leds := boardLEDs(boardModel)
	if leds == nil {
		logger.Info("No LED support detected, LED states will only be logged", "board_model", boardModel)
		return newVirtual(logger)
	}
	logger.Info("Using sysfs LED controller", "status_led", leds[StatusLED])
	return newSysfs(sysfsLEDPath, leds)
}

// boardLEDs returns the LED type to sysfs name mapping for a board model.
func boardLEDs(model string) map[string]string {
	switch {
	case strings.Contains(model, "Raspberry Pi"):
		return map[string]string{StatusLED: "ACT", "act": "ACT", "power": "PWR"}
	case strings.Contains(model, "NanoPC-T6"):
		return map[string]string{StatusLED: "sys_led", "user": "usr_led", "system": "sys_led"}
	case strings.Contains(model, "Orange Pi"):
		return map[string]string{StatusLED: "green_led", "blue": "blue_led", "green": "green_led"}
	default:
		return nil
	}
}

// detectBoard reads the device tree model to identify the board.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}

	// Device tree model contains null bytes, trim them
	return strings.TrimRight(string(data), "\x00")
}

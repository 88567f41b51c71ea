package systemd

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

const rebootTarget = "reboot.target"

// DBusManager talks to the system manager over D-Bus.
type DBusManager struct {
	conn *dbus.Conn
}

// NewDBusManager connects to the system bus.
func NewDBusManager(ctx context.Context) (*DBusManager, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, err
	}
	return &DBusManager{conn: conn}, nil
}

// IsActive reports whether the unit's ActiveState is "active".
func (m *DBusManager) IsActive(ctx context.Context, unit string) (bool, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, unitName(unit), "ActiveState")
	if err != nil {
		return false, err
	}
	return prop.Value.Value() == "active", nil
}

// Run applies verb to unit using replace mode. Reboot starts reboot.target.
func (m *DBusManager) Run(ctx context.Context, verb, unit string) error {
	var err error
	switch verb {
	case VerbStart:
		_, err = m.conn.StartUnitContext(ctx, unitName(unit), "replace", nil)
	case VerbStop:
		_, err = m.conn.StopUnitContext(ctx, unitName(unit), "replace", nil)
	case VerbRestart:
		_, err = m.conn.RestartUnitContext(ctx, unitName(unit), "replace", nil)
	case VerbReboot:
		_, err = m.conn.StartUnitContext(ctx, rebootTarget, "replace-irreversibly", nil)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownVerb, verb)
	}
	return err
}

// Close cleanly closes the D-Bus connection.
func (m *DBusManager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

func unitName(unit string) string {
	if strings.Contains(unit, ".") {
		return unit
	}
	return unit + ".service"
}

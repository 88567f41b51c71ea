// Package systemd drives the service manager on behalf of the operator console.
package systemd

import (
	"context"
	"errors"
	"fmt"
)

// Verbs accepted by Manager.Run.
const (
	VerbStart   = "start"
	VerbStop    = "stop"
	VerbRestart = "restart"
	VerbReboot  = "reboot"
)

// ErrUnknownVerb is returned for verbs other than start, stop, restart and reboot.
var ErrUnknownVerb = errors.New("unknown service verb")

// Manager starts, stops and restarts a unit, reboots the host and reports unit activity.
type Manager interface {
	IsActive(ctx context.Context, unit string) (bool, error)
	Run(ctx context.Context, verb, unit string) error
}

// ValidVerb reports whether verb is accepted by Run.
func ValidVerb(verb string) bool {
	switch verb {
	case VerbStart, VerbStop, VerbRestart, VerbReboot:
		return true
	}
	return false
}

// New returns the manager for the named backend ("command" or "dbus").
func New(ctx context.Context, backend string) (Manager, error) {
	switch backend {
	case "", "command":
		return NewCommandManager(), nil
	case "dbus":
		return NewDBusManager(ctx)
	default:
		return nil, fmt.Errorf("unknown service backend %q", backend)
	}
}

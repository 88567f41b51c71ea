package systemd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandError carries the exit status and standard error of a failed command.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("%s exited with status %d", strings.Join(e.Args, " "), e.ExitCode)
}

// CommandManager shells out to systemctl, escalating through sudo for state changes.
type CommandManager struct {
	Systemctl string
	Reboot    string
	// Sudo is prepended to start, stop, restart and reboot. Empty disables escalation.
	Sudo string
}

// NewCommandManager returns a manager using the binaries found on PATH.
func NewCommandManager() *CommandManager {
	return &CommandManager{
		Systemctl: "systemctl",
		Reboot:    "reboot",
		Sudo:      "sudo",
	}
}

// IsActive runs "systemctl is-active unit" and reports whether it printed "active".
func (m *CommandManager) IsActive(ctx context.Context, unit string) (bool, error) {
	out, err := exec.CommandContext(ctx, m.Systemctl, "is-active", unit).Output()
	state := strings.TrimSpace(string(out))
	if state == "active" {
		return true, nil
	}

	// is-active exits non-zero for every state but active; that is an answer, not a failure
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return false, err
	}
	return false, nil
}

// Run applies verb to unit. Reboot is fire-and-forget: it returns once the command is launched.
func (m *CommandManager) Run(ctx context.Context, verb, unit string) error {
	if !ValidVerb(verb) {
		return fmt.Errorf("%w: %s", ErrUnknownVerb, verb)
	}

	if verb == VerbReboot {
		args := m.escalate(m.Reboot)
		cmd := exec.Command(args[0], args[1:]...)
		if err := cmd.Start(); err != nil {
			return err
		}
		go func() { _ = cmd.Wait() }()
		return nil
	}

	args := m.escalate(m.Systemctl, verb, unit)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &CommandError{
				Args:     args,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return err
	}
	return nil
}

func (m *CommandManager) escalate(args ...string) []string {
	if m.Sudo == "" {
		return args
	}
	return append([]string{m.Sudo}, args...)
}

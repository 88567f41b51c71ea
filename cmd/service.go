package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camstream/internal/systemd"
)

const serviceTimeout = 30 * time.Second

// CreateServiceCmd creates the service command.
func CreateServiceCmd() *cobra.Command {
	var unit string
	var backend string

	cmd := &cobra.Command{
		Use:       "service {start|stop|restart|reboot|is-active}",
		Short:     "Control the streamer unit",
		Long:      `Runs a service manager verb against the streamer unit, reboots the host, or reports whether the unit is active.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{systemd.VerbStart, systemd.VerbStop, systemd.VerbRestart, systemd.VerbReboot, "is-active"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), serviceTimeout)
			defer cancel()

			mgr, err := systemd.New(ctx, backend)
			if err != nil {
				return err
			}
			if closer, ok := mgr.(interface{ Close() }); ok {
				defer closer.Close()
			}
			return runService(ctx, cmd, mgr, args[0], unit)
		},
	}

	cmd.Flags().StringVar(&unit, "unit", DefaultServiceName, "Service unit name")
	cmd.Flags().StringVar(&backend, "backend", "command", "Service manager backend (command, dbus)")
	return cmd
}

func runService(ctx context.Context, cmd *cobra.Command, mgr systemd.Manager, verb, unit string) error {
	if verb == "is-active" {
		active, err := mgr.IsActive(ctx, unit)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), map[bool]string{true: "active", false: "inactive"}[active])
		return nil
	}

	if err := mgr.Run(ctx, verb, unit); err != nil {
		return fmt.Errorf("%s %s: %w", verb, unit, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: ok\n", verb, unit)
	return nil
}

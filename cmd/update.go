package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/smazurov/camstream/internal/systemd"
	"github.com/smazurov/camstream/internal/updater"
)

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	var checkOnly bool
	var rollback bool
	var prerelease bool
	var restart bool
	var unit string
	var backend string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update camstream to the latest release",
		Long: `Downloads the latest GitHub release over the installed binary, keeping the current ` +
			`binary as a backup, then restarts the streamer unit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

			u, err := updater.New(updater.Options{Prerelease: prerelease, Logger: logger})
			if err != nil {
				return err
			}
			if !u.Enabled() {
				return fmt.Errorf("updates disabled: %s", u.DisabledReason())
			}

			switch {
			case rollback:
				if err := u.Rollback(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Rolled back to the previous binary")
			case checkOnly:
				rel, err := u.Check(ctx)
				if err != nil {
					return err
				}
				if !rel.UpdateAvailable {
					fmt.Fprintf(out, "Up to date (%s)\n", rel.CurrentVersion)
					return nil
				}
				fmt.Fprintf(out, "Update available: %s -> %s\n%s\n", rel.CurrentVersion, rel.LatestVersion, rel.ReleaseURL)
				return nil
			default:
				rel, err := u.Apply(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Updated %s -> %s\n", rel.CurrentVersion, rel.LatestVersion)
			}

			if !restart {
				return nil
			}
			mgr, err := systemd.New(ctx, backend)
			if err != nil {
				return err
			}
			if err := mgr.Run(ctx, systemd.VerbRestart, unit); err != nil {
				return fmt.Errorf("restart %s: %w", unit, err)
			}
			fmt.Fprintf(out, "Restarted %s\n", unit)
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether an update is available")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Restore the binary saved by the last update")
	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "Consider prereleases")
	cmd.Flags().BoolVar(&restart, "restart", true, "Restart the streamer unit afterwards")
	cmd.Flags().StringVar(&unit, "unit", DefaultServiceName, "Service unit to restart")
	cmd.Flags().StringVar(&backend, "backend", "command", "Service manager backend (command, dbus)")
	cmd.MarkFlagsMutuallyExclusive("check", "rollback")
	return cmd
}

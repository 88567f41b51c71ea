package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camstream/internal/nats"
)

// CreateCtlCmd creates the ctl command, which starts or stops streaming on
// a node through NATS.
func CreateCtlCmd() *cobra.Command {
	var url string
	var node string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:       "ctl {start|stop}",
		Short:     "Start or stop streaming on a node",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"start", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			reply, err := nats.RequestControl(ctx, url, nats.Subjects{Node: node}, args[0])
			if err != nil {
				return fmt.Errorf("request %s: %w", args[0], err)
			}
			if !reply.OK {
				return errors.New(reply.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", reply.Action)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "nats-url", DefaultNATSURL, "NATS server URL")
	cmd.Flags().StringVar(&node, "node", "", "Node name the daemon publishes under")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the reply")
	return cmd
}

package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/smazurov/camstream/internal/streamconfig"
)

// CreateConfigCmd creates the config command and its subcommands.
func CreateConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the stream configuration",
	}
	cmd.AddCommand(createConfigShowCmd())
	return cmd
}

func createConfigShowCmd() *cobra.Command {
	var configFile string
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective stream configuration",
		Long: `Prints the stored configuration merged onto the defaults, exactly as the daemon ` +
			`would use it on the next start. The stream key is masked unless --reveal is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			cfg := streamconfig.NewStore(configFile, logger).Load()
			return showConfig(cmd.OutOrStdout(), cfg, reveal)
		},
	}

	cmd.Flags().StringVar(&configFile, "file", DefaultConfigFile, "Path to the stream configuration file")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the stream key unmasked")
	return cmd
}

func showConfig(w io.Writer, cfg streamconfig.StreamConfig, reveal bool) error {
	if !reveal {
		cfg = cfg.Masked()
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

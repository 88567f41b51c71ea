package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/smazurov/camstream/internal/status"
)

// CreateStatusCmd creates the status command.
func CreateStatusCmd() *cobra.Command {
	var statusFile string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the streaming status",
		Long: `Reads the status file written by the running daemon. A missing or unreadable file ` +
			`shows the idle defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := status.Read(statusFile)
			return printStatus(cmd.OutOrStdout(), st, time.Now(), asJSON)
		},
	}

	cmd.Flags().StringVar(&statusFile, "status-file", DefaultStatusFile, "Path to the daemon status file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func printStatus(w io.Writer, st status.Status, now time.Time, asJSON bool) error {
	uptime := status.FormatUptime(st.Uptime(now))

	if asJSON {
		data, err := json.MarshalIndent(struct {
			status.Status
			Uptime string `json:"uptime"`
		}{st, uptime}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	state := "stopped"
	if st.Streaming {
		state = "streaming"
	}
	fmt.Fprintf(w, "State:      %s\n", state)
	fmt.Fprintf(w, "Uptime:     %s\n", uptime)
	fmt.Fprintf(w, "Resolution: %s\n", st.Resolution)
	fmt.Fprintf(w, "Framerate:  %d fps\n", st.Framerate)
	fmt.Fprintf(w, "Bitrate:    %d kbit/s\n", st.Bitrate/1000)
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause every download of the running batch",
	Long:  `Pause all active and waiting downloads of the running batch. Progress updates stop until 'batchget resume'.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := remoteFromFlags(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Shutdown() }()

		if err := svc.PauseAll(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Paused all downloads")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd)
	addRemoteFlags(pauseCmd)
}

// addRemoteFlags registers the flags selecting the instance to talk to.
func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "host:port of the instance (default: the local one)")
	cmd.Flags().String("token", "", "Bearer token (or set BATCHGET_TOKEN)")
}

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/batchget/internal/core"
	"github.com/surge-downloader/batchget/internal/engine/types"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the downloads paused by 'batchget pause'",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := remoteFromFlags(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Shutdown() }()

		if err := svc.ResumeAll(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Resumed")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running batch",
	Long:  `Stop the running batch. Partially downloaded files are kept and resumed by the next run with --continue.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := remoteFromFlags(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Shutdown() }()

		if err := svc.Stop(); err != nil {
			return err
		}
		if wait, _ := cmd.Flags().GetBool("wait"); !wait {
			fmt.Fprintln(cmd.OutOrStdout(), "Stopping")
			return nil
		}

		st, err := waitStopped(svc, shutdownTimeout)
		if err != nil {
			return err
		}
		if st.Last != nil && st.Last.Final {
			fmt.Fprintln(cmd.OutOrStdout(), finalSummary(*st.Last))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
		}
		return nil
	},
}

// waitStopped polls the instance until its batch has ended.
func waitStopped(svc core.BatchService, timeout time.Duration) (*types.BatchStatus, error) {
	deadline := time.Now().Add(timeout)
	for {
		st, err := svc.Status()
		if err != nil {
			return nil, err
		}
		if st.State == types.StateStopped || st.State == types.StateIdle {
			return st, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("batch %s still %s after %s", st.BatchID, st.State, timeout)
		}
		time.Sleep(stopPollInterval)
	}
}

const stopPollInterval = 200 * time.Millisecond

func remoteFromFlags(cmd *cobra.Command) (*core.RemoteBatchService, error) {
	host, _ := cmd.Flags().GetString("host")
	token, _ := cmd.Flags().GetString("token")
	return newRemoteService(host, token)
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(stopCmd)
	addRemoteFlags(resumeCmd)
	addRemoteFlags(stopCmd)
	stopCmd.Flags().Bool("wait", false, "Wait for the batch to end")
}

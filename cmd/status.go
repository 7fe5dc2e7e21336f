package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the running batch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := remoteFromFlags(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Shutdown() }()

		st, err := svc.Status()
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

func printStatus(w io.Writer, st *types.BatchStatus) {
	if st.State == types.StateIdle {
		fmt.Fprintln(w, "No batch has been submitted")
		return
	}

	fmt.Fprintf(w, "Batch:  %s\n", st.BatchID)
	fmt.Fprintf(w, "State:  %s\n", st.State)
	fmt.Fprintf(w, "Dir:    %s\n", st.Dir)
	if st.Last != nil {
		fmt.Fprintf(w, "Done:   %d/%d\n", st.Last.Completed, st.Last.Total)
	} else {
		fmt.Fprintf(w, "Done:   0/%d\n", st.Total)
	}
	if len(st.Paused) > 0 {
		gids := make([]string, len(st.Paused))
		for i, g := range st.Paused {
			gids[i] = g.Short()
		}
		fmt.Fprintf(w, "Paused: %s\n", strings.Join(gids, ", "))
	}

	if st.Last == nil || len(st.Last.Items) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GID\tSIZE\tSPEED\t%\tFILE")
	for _, it := range st.Last.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", it.GID.Short(),
			utils.FormatSize(it.CompletedLength, it.TotalLength),
			utils.FormatSpeed(it.DownloadSpeed), it.Progress(), it.Filename)
	}
	_ = tw.Flush()
}

func init() {
	rootCmd.AddCommand(statusCmd)
	addRemoteFlags(statusCmd)
	statusCmd.Flags().Bool("json", false, "Print the raw status as JSON")
}

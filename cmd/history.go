package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/batchget/internal/config"
	"github.com/surge-downloader/batchget/internal/engine/state"
	"github.com/surge-downloader/batchget/internal/utils"
)

var historyCmd = &cobra.Command{
	Use:     "history [batch-id]",
	Aliases: []string{"h"},
	Short:   "List past batches, or the items of one batch",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state.Configure(config.GetDBPath())
		defer state.CloseDB()

		if len(args) == 1 {
			return printBatchItems(cmd.OutOrStdout(), args[0])
		}
		limit, _ := cmd.Flags().GetInt("limit")
		return printBatches(cmd.OutOrStdout(), limit)
	},
}

func printBatches(w io.Writer, limit int) error {
	batches, err := state.ListBatches(limit)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Fprintln(w, "No batches yet")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tITEMS\tSTATUS\tDIR")
	for _, b := range batches {
		status := b.Status
		if b.Reason != "" {
			status += " (" + b.Reason + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", b.ID, utils.FormatTime(b.CreatedAt), b.Total, status, b.Dir)
	}
	return tw.Flush()
}

func printBatchItems(w io.Writer, id string) error {
	batch, err := resolveBatch(id)
	if err != nil {
		return err
	}
	items, err := state.ListItems(batch.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Batch %s in %s: %s", batch.ID, batch.Dir, batch.Status)
	if batch.Error != "" {
		fmt.Fprintf(w, " (%s)", batch.Error)
	}
	fmt.Fprintln(w)
	if len(items) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GID\tSTATUS\tSIZE\tTYPE\tFILE")
	for _, it := range items {
		name := it.Filename
		if name == "" {
			name = it.URL
		}
		if it.Error != "" {
			name += " (" + it.Error + ")"
		}
		mime := it.MIME
		if mime == "" {
			mime = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.GID.Short(), it.Status,
			utils.FormatSize(it.Downloaded, it.TotalSize), mime, name)
	}
	return tw.Flush()
}

// resolveBatch accepts a full batch ID or a unique prefix of one.
func resolveBatch(id string) (*state.BatchRecord, error) {
	if b, err := state.GetBatch(id); err == nil {
		return b, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	batches, err := state.ListBatches(0)
	if err != nil {
		return nil, err
	}
	var match *state.BatchRecord
	for i := range batches {
		if len(id) > 0 && len(batches[i].ID) >= len(id) && batches[i].ID[:len(id)] == id {
			if match != nil {
				return nil, fmt.Errorf("ambiguous batch ID prefix '%s'", id)
			}
			match = &batches[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("batch %s not found", id)
	}
	return match, nil
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Number of batches to list (0 for all)")
}

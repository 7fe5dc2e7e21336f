package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/batchget/internal/core"
	"github.com/surge-downloader/batchget/internal/utils"
)

var addCmd = &cobra.Command{
	Use:   "add [url]...",
	Short: "Submit a batch to the running instance",
	Long: `Submit a new batch to a running batchget instance once its previous batch
has ended. The destination is resolved on the instance's machine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		batchFile, _ := cmd.Flags().GetString("batch")
		output, _ := cmd.Flags().GetString("output")
		fromClipboard, _ := cmd.Flags().GetBool("clipboard")

		uris, err := collectURIs(args, batchFile, fromClipboard)
		if err != nil {
			return err
		}
		if len(uris) == 0 {
			_ = cmd.Help()
			return errors.New("no URIs given")
		}
		if output != "" {
			if output, err = utils.EnsureAbsPath(output); err != nil {
				return err
			}
		}

		svc, err := remoteFromFlags(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Shutdown() }()

		res, err := svc.Submit(context.Background(), uris, output)
		printSubmitResult(cmd, res)
		if errors.Is(err, core.ErrSessionActive) {
			return fmt.Errorf("%w: wait for it to finish or run 'batchget stop'", err)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addRemoteFlags(addCmd)
	addCmd.Flags().StringP("batch", "b", "", "File containing URLs to download (one per line)")
	addCmd.Flags().StringP("output", "o", "", "Destination directory (default: the instance's)")
	addCmd.Flags().Bool("clipboard", false, "Add the URLs currently on the clipboard")
}

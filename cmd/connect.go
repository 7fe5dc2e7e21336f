package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/batchget/internal/tui"
)

var connectCmd = &cobra.Command{
	Use:   "connect [host:port]",
	Short: "Attach the TUI to a running batch",
	Long: `Show the progress of the batch running in another batchget instance.
The control keys act on that instance. Quitting only detaches.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		if len(args) > 0 {
			host = args[0]
		}
		token, _ := cmd.Flags().GetString("token")

		svc, err := newRemoteService(host, token)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Shutdown() }()

		// Verify connection
		if _, err := svc.Status(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}

		stream, cleanup, err := svc.StreamSnapshots(context.Background())
		if err != nil {
			return fmt.Errorf("failed to start event stream: %w", err)
		}
		defer cleanup()

		p := tea.NewProgram(tui.NewModel(svc, stream), tea.WithAltScreen())
		result, err := p.Run()
		if err != nil {
			return fmt.Errorf("running TUI: %w", err)
		}
		if m, ok := result.(tui.Model); ok && m.Last() != nil && m.Last().Final {
			fmt.Fprintln(cmd.OutOrStdout(), finalSummary(*m.Last()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
	addRemoteFlags(connectCmd)
}

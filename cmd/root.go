package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/batchget/internal/clipboard"
	"github.com/surge-downloader/batchget/internal/config"
	"github.com/surge-downloader/batchget/internal/core"
	"github.com/surge-downloader/batchget/internal/engine/local"
	"github.com/surge-downloader/batchget/internal/engine/state"
	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/source"
	"github.com/surge-downloader/batchget/internal/tui"
	"github.com/surge-downloader/batchget/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	firstPort       = 1700
	shutdownTimeout = 30 * time.Second
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "batchget [url]...",
	Short: "Download a batch of URLs and watch it to completion",
	Long: `batchget downloads a batch of HTTP(S), magnet and .torrent URIs into one
directory and shows live progress until every item has finished.

While a batch runs, 'batchget pause', 'resume', 'stop' and 'status' control it
from another terminal.`,
	Version:       Version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if err := applyEngineFlags(cmd, settings); err != nil {
		return err
	}
	initializeGlobalState(settings)

	batchFile, _ := cmd.Flags().GetString("batch")
	outputDir, _ := cmd.Flags().GetString("output")
	fromClipboard, _ := cmd.Flags().GetBool("clipboard")
	headless, _ := cmd.Flags().GetBool("headless")
	verbose, _ := cmd.Flags().GetBool("verbose")
	portFlag, _ := cmd.Flags().GetInt("port")

	uris, err := collectURIs(args, batchFile, fromClipboard)
	if err != nil {
		return err
	}
	if len(uris) == 0 {
		_ = cmd.Help()
		return errors.New("no URIs given")
	}
	dir := resolveOutputDir(outputDir, batchFile, settings)

	// One running batch per machine
	isMaster, err := AcquireLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !isMaster {
		return errors.New("batchget is already running; use 'batchget status' to inspect it")
	}
	defer func() {
		if err := ReleaseLock(); err != nil {
			utils.Debug("Error releasing lock: %v", err)
		}
	}()

	service := core.NewLocalBatchService(local.New(), settings.ToEngineOptions(""), settings.MonitorConfig())
	defer func() {
		if err := service.Shutdown(); err != nil {
			utils.Debug("Error shutting down service: %v", err)
		}
	}()

	if portFlag == 0 {
		portFlag = settings.General.APIPort
	}
	port, listener, err := listen(portFlag)
	if err != nil {
		return err
	}
	saveActivePort(port)
	defer removeActivePort()

	server := startHTTPServer(listener, port, dir, service, ensureAuthToken(settings))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	// Subscribe before submitting so the first snapshot is not missed
	stream, cleanup, err := service.StreamSnapshots(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := service.Submit(context.Background(), uris, dir)
	printSubmitResult(cmd, res)
	if err != nil {
		return err
	}

	var final *types.Snapshot
	if headless {
		final = runHeadless(cmd, service, stream, verbose)
	} else {
		final, err = runTUI(service, stream)
		if err != nil {
			return err
		}
	}

	if final != nil && final.Reason == types.ReasonError {
		return fmt.Errorf("batch failed: %s", final.Err)
	}
	return nil
}

// runTUI shows the dashboard until the batch ends or the user quits. Quitting
// early stops the batch.
func runTUI(service *core.LocalBatchService, stream <-chan types.Snapshot) (*types.Snapshot, error) {
	p := tea.NewProgram(tui.NewModel(service, stream), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running TUI: %w", err)
	}

	m, _ := result.(tui.Model)
	if last := m.Last(); last != nil && last.Final {
		fmt.Println(finalSummary(*last))
		return last, nil
	}

	// The user left early
	_ = service.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = service.Wait(ctx)
	return nil, nil
}

// runHeadless prints snapshots until the batch ends. SIGINT and SIGTERM stop
// the batch instead of killing the process.
func runHeadless(cmd *cobra.Command, service *core.LocalBatchService, stream <-chan types.Snapshot, verbose bool) *types.Snapshot {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		if err := service.Stop(); err != nil {
			utils.Debug("Error stopping batch: %v", err)
		}
	}()

	return tui.NewPrinter(cmd.OutOrStdout(), verbose).Run(stream)
}

func finalSummary(snap types.Snapshot) string {
	s := fmt.Sprintf("Batch %s: %d/%d complete", snap.Reason, snap.Completed, snap.Total)
	if snap.Err != "" {
		s += ": " + snap.Err
	}
	return s
}

// printSubmitResult reports the URIs the engine refused.
func printSubmitResult(cmd *cobra.Command, res *types.SubmitResult) {
	if res == nil {
		return
	}
	for _, f := range res.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "Skipped #%d %s: %v\n", f.Index+1, f.URI, f.Err)
	}
	if len(res.GIDs) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Batch %s: %d downloads queued\n", res.BatchID, len(res.GIDs))
	}
}

// collectURIs merges command line arguments, the link list and the
// clipboard, in that order, without duplicates.
func collectURIs(args []string, batchFile string, fromClipboard bool) ([]string, error) {
	var uris []string
	for _, a := range args {
		if s := source.Normalize(a); s != "" {
			uris = append(uris, s)
		}
	}

	if batchFile != "" {
		fileURIs, err := readURLsFromFile(batchFile)
		if err != nil {
			return nil, fmt.Errorf("reading batch file: %w", err)
		}
		uris = append(uris, fileURIs...)
	}

	if fromClipboard {
		clip := clipboard.ReadURLs()
		utils.Debug("clipboard: %d URIs", len(clip))
		uris = append(uris, clip...)
	}

	return source.Dedupe(uris), nil
}

// resolveOutputDir picks the destination: -o, else the directory of the link
// list, else the configured default, else the working directory.
func resolveOutputDir(outputDir, batchFile string, settings *config.Settings) string {
	switch {
	case strings.TrimSpace(outputDir) != "":
		return outputDir
	case batchFile != "":
		return filepath.Dir(batchFile)
	case settings.General.DefaultDownloadDir != "":
		return settings.General.DefaultDownloadDir
	}
	return "."
}

// applyEngineFlags overlays flags the user set explicitly onto settings.
func applyEngineFlags(cmd *cobra.Command, settings *config.Settings) error {
	flags := cmd.Flags()
	if flags.Changed("split") {
		n, _ := flags.GetInt("split")
		if n < 1 || n > types.MaxSplit {
			return &types.ConfigError{Field: "split", Reason: fmt.Sprintf("must be between 1 and %d", types.MaxSplit)}
		}
		settings.Engine.Split = n
	}
	if flags.Changed("continue") {
		settings.Engine.Continue, _ = flags.GetBool("continue")
	}
	if flags.Changed("check-certificate") {
		settings.Engine.CheckCertificate, _ = flags.GetBool("check-certificate")
	}
	if flags.Changed("max-concurrent") {
		n, _ := flags.GetInt("max-concurrent")
		if n < 1 {
			return &types.ConfigError{Field: "max-concurrent", Reason: "must be at least 1"}
		}
		settings.Engine.MaxConcurrentDownloads = n
	}
	if flags.Changed("limit") {
		s, _ := flags.GetString("limit")
		n, err := parseRate(s)
		if err != nil {
			return &types.ConfigError{Field: "limit", Reason: err.Error()}
		}
		settings.Engine.MaxOverallDownloadLimit = n
	}
	if flags.Changed("interval") {
		d, _ := flags.GetDuration("interval")
		if d <= 0 {
			return &types.ConfigError{Field: "interval", Reason: "must be positive"}
		}
		settings.Monitor.Interval = d
	}
	return nil
}

func listen(port int) (int, net.Listener, error) {
	if port > 0 {
		// Strict port mode
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return 0, nil, fmt.Errorf("could not bind to port %d: %w", port, err)
		}
		return port, ln, nil
	}
	port, ln := findAvailablePort(firstPort)
	if ln == nil {
		return 0, nil, errors.New("could not find available port")
	}
	return port, ln, nil
}

// findAvailablePort tries ports starting from 'start' until one is available
func findAvailablePort(start int) (int, net.Listener) {
	for port := start; port < start+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return port, ln
		}
	}
	return 0, nil
}

// saveActivePort writes the active port for CLI discovery
func saveActivePort(port int) {
	if err := os.WriteFile(portFilePath(), []byte(fmt.Sprintf("%d", port)), 0o644); err != nil {
		utils.Debug("Error writing port file: %v", err)
	}
	utils.Debug("HTTP server listening on port %d", port)
}

// removeActivePort cleans up the port file on exit
func removeActivePort() {
	if err := os.Remove(portFilePath()); err != nil && !os.IsNotExist(err) {
		utils.Debug("Error removing port file: %v", err)
	}
}

func portFilePath() string {
	return filepath.Join(config.GetAppDir(), "port")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringP("batch", "b", "", "File containing URLs to download (one per line)")
	rootCmd.Flags().StringP("output", "o", "", "Destination directory")
	rootCmd.Flags().Bool("clipboard", false, "Add the URLs currently on the clipboard")
	rootCmd.Flags().IntP("split", "x", types.DefaultSplit, "Connections per download")
	rootCmd.Flags().IntP("max-concurrent", "j", types.DefaultMaxConcurrentDownloads, "Downloads running at once")
	rootCmd.Flags().String("limit", "", "Overall download limit, e.g. 2MiB (per second)")
	rootCmd.Flags().BoolP("continue", "c", true, "Resume partially downloaded files")
	rootCmd.Flags().Bool("check-certificate", config.DefaultSettings().Engine.CheckCertificate, "Verify TLS certificates")
	rootCmd.Flags().Duration("interval", types.DefaultPollInterval, "Minimum time between progress updates")
	rootCmd.Flags().Bool("headless", false, "Print progress lines instead of the TUI")
	rootCmd.Flags().BoolP("verbose", "v", false, "With --headless, print a line per active download")
	rootCmd.Flags().IntP("port", "p", 0, "Control API port (default: first free port from 1700)")
	rootCmd.SetVersionTemplate("batchget version {{.Version}}\n")
}

func loadSettings() (*config.Settings, error) {
	settings, err := config.Load()
	if err != nil {
		var cfgErr *types.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		utils.Debug("Falling back to default settings: %v", err)
		settings = config.DefaultSettings()
		if err := settings.ApplyEnv(); err != nil {
			return nil, err
		}
	}
	return settings, nil
}

// initializeGlobalState sets up the environment and configures the engine state and logging
func initializeGlobalState(settings *config.Settings) {
	if err := config.EnsureDirs(); err != nil {
		utils.Debug("Error creating directories: %v", err)
	}

	state.Configure(config.GetDBPath())
	utils.ConfigureDebug(config.GetLogsDir())
	utils.CleanupLogs(settings.General.LogRetentionCount)

	if n, err := state.ValidateResume(); err == nil && n > 0 {
		utils.Debug("Dropped %d stale resume entries", n)
	}
}

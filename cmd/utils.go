package cmd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/surge-downloader/batchget/internal/config"
	"github.com/surge-downloader/batchget/internal/core"
	"github.com/surge-downloader/batchget/internal/source"
)

var errNotRunning = errors.New("batchget is not running")

// readActivePort reads the port from the port file
func readActivePort() int {
	data, err := os.ReadFile(portFilePath())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return port
}

// readURLsFromFile reads URIs from a link list, one per line
func readURLsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return source.ReadLines(file)
}

// parseRate parses a byte rate such as "512K" or "2MiB". Empty and "0" mean
// unlimited.
func parseRate(s string) (int64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "/s"))
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// resolveAPIConnection finds the API of the running instance. target may be
// empty (local port file) or host:port. The token comes from the flag, the
// environment, then settings or the local token file for loopback targets.
func resolveAPIConnection(target, tokenFlag string) (baseURL, token string, err error) {
	if target == "" {
		port := readActivePort()
		if port == 0 {
			return "", "", errNotRunning
		}
		target = fmt.Sprintf("127.0.0.1:%d", port)
	}

	token = strings.TrimSpace(tokenFlag)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(config.EnvToken))
	}
	if token == "" {
		host, _, splitErr := net.SplitHostPort(target)
		if splitErr != nil {
			host = target
		}
		if host != "127.0.0.1" && host != "localhost" && host != "::1" {
			return "", "", fmt.Errorf("no token for %s: use --token or set %s", target, config.EnvToken)
		}
		settings, loadErr := config.LoadSettings()
		if loadErr != nil {
			settings = nil
		}
		token = ensureAuthToken(settings)
	}

	return "http://" + target, token, nil
}

// newRemoteService connects to the running instance named by the command's
// --host and --token flags.
func newRemoteService(host, tokenFlag string) (*core.RemoteBatchService, error) {
	baseURL, token, err := resolveAPIConnection(host, tokenFlag)
	if err != nil {
		return nil, err
	}
	return core.NewRemoteBatchService(baseURL, token), nil
}

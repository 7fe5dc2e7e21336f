package cmd

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/batchget/internal/config"
	"github.com/surge-downloader/batchget/internal/engine/types"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"512", 512, false},
		{"1K", 1000, false},
		{"1KiB", 1024, false},
		{"2MiB/s", 2 << 20, false},
		{" 10 MB ", 10_000_000, false},
		{"fast", 0, true},
	}
	for _, tt := range tests {
		got, err := parseRate(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestReadURLsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.txt")
	content := "# mirrors\nhttp://example.com/a.iso\n\n  https://example.com/b.iso  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	uris, err := readURLsFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.com/a.iso", "https://example.com/b.iso"}, uris)

	_, err = readURLsFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestCollectURIs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.txt")
	require.NoError(t, os.WriteFile(path, []byte("http://example.com/b\nhttp://example.com/a\n"), 0o644))

	uris, err := collectURIs([]string{"http://example.com/a", "  "}, path, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.com/a", "http://example.com/b"}, uris)

	_, err = collectURIs(nil, filepath.Join(t.TempDir(), "missing.txt"), false)
	assert.ErrorContains(t, err, "reading batch file")
}

func TestResolveOutputDir(t *testing.T) {
	settings := &config.Settings{}
	assert.Equal(t, "/out", resolveOutputDir("/out", "/lists/links.txt", settings))
	assert.Equal(t, "/lists", resolveOutputDir("", "/lists/links.txt", settings))
	assert.Equal(t, ".", resolveOutputDir("", "", settings))

	settings.General.DefaultDownloadDir = "/downloads"
	assert.Equal(t, "/downloads", resolveOutputDir("", "", settings))
}

func TestResolveAPIConnection(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BATCHGET_HOME", home)
	t.Setenv(config.EnvToken, "")

	_, _, err := resolveAPIConnection("", "")
	assert.ErrorIs(t, err, errNotRunning)

	require.NoError(t, os.WriteFile(filepath.Join(home, "port"), []byte("1705\n"), 0o644))

	baseURL, token, err := resolveAPIConnection("", "flag-token")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:1705", baseURL)
	assert.Equal(t, "flag-token", token)

	// Loopback targets fall back to the local token file
	_, token, err = resolveAPIConnection("", "")
	require.NoError(t, err)
	data, readErr := os.ReadFile(filepath.Join(home, "token"))
	require.NoError(t, readErr)
	assert.Equal(t, string(data), token)

	_, _, err = resolveAPIConnection("10.0.0.5:1700", "")
	assert.ErrorContains(t, err, "no token")

	t.Setenv(config.EnvToken, "env-token")
	baseURL, token, err = resolveAPIConnection("10.0.0.5:1700", "")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:1700", baseURL)
	assert.Equal(t, "env-token", token)
}

func TestFinalSummary(t *testing.T) {
	snap := types.Snapshot{Final: true, Reason: types.ReasonError, Completed: 1, Total: 3, Err: "engine step failed"}
	assert.Equal(t, "Batch error: 1/3 complete: engine step failed", finalSummary(snap))

	snap.Err = ""
	snap.Reason = types.ReasonDrained
	snap.Completed = 3
	assert.Equal(t, "Batch drained: 3/3 complete", finalSummary(snap))
}

func TestCheckCertificateFlagDefault(t *testing.T) {
	flag := rootCmd.Flags().Lookup("check-certificate")
	require.NotNil(t, flag)
	assert.Equal(t, strconv.FormatBool(config.DefaultSettings().Engine.CheckCertificate), flag.DefValue)
	assert.Equal(t, strconv.FormatBool(runtime.GOOS != "windows"), flag.DefValue)
}

func TestApplyEngineFlags_OnlyChanged(t *testing.T) {
	flags := rootCmd.Flags()
	t.Cleanup(func() {
		for _, name := range []string{"split", "check-certificate", "limit"} {
			f := flags.Lookup(name)
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})

	settings := config.DefaultSettings()
	settings.Engine.CheckCertificate = false
	settings.Engine.Split = 3
	require.NoError(t, applyEngineFlags(rootCmd, settings))
	assert.False(t, settings.Engine.CheckCertificate)
	assert.Equal(t, 3, settings.Engine.Split)

	require.NoError(t, flags.Set("check-certificate", "true"))
	require.NoError(t, flags.Set("limit", "1MiB"))
	require.NoError(t, applyEngineFlags(rootCmd, settings))
	assert.True(t, settings.Engine.CheckCertificate)
	assert.Equal(t, int64(1<<20), settings.Engine.MaxOverallDownloadLimit)

	require.NoError(t, flags.Set("split", "99"))
	var cfgErr *types.ConfigError
	assert.ErrorAs(t, applyEngineFlags(rootCmd, settings), &cfgErr)
}

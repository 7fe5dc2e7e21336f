package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/batchget/internal/engine/types"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, 6, s.Engine.Split)
	assert.True(t, s.Engine.Continue)
	assert.Equal(t, runtime.GOOS != "windows", s.Engine.CheckCertificate)
	assert.Equal(t, types.DefaultMaxConcurrentDownloads, s.Engine.MaxConcurrentDownloads)
	assert.Equal(t, 900*time.Millisecond, s.Monitor.Interval)
	assert.Equal(t, types.SnapshotChannelBuffer, s.Monitor.Buffer)
	assert.Equal(t, 5, s.General.LogRetentionCount)
}

func TestDefaultSettings_XDGDownloadDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DOWNLOAD_DIR", dir)
	assert.Equal(t, dir, DefaultSettings().General.DefaultDownloadDir)

	// A missing directory is not used
	t.Setenv("XDG_DOWNLOAD_DIR", filepath.Join(dir, "missing"))
	assert.NotEqual(t, filepath.Join(dir, "missing"), DefaultSettings().General.DefaultDownloadDir)
}

func TestLoadSettings_MissingFileGivesDefaults(t *testing.T) {
	t.Setenv("BATCHGET_HOME", t.TempDir())

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestSaveAndLoadSettings(t *testing.T) {
	t.Setenv("BATCHGET_HOME", filepath.Join(t.TempDir(), "app"))

	s := DefaultSettings()
	s.Engine.Split = 3
	s.Engine.UserAgent = "custom/2.0"
	s.Monitor.Interval = 2 * time.Second
	s.General.APIPort = 1777
	require.NoError(t, SaveSettings(s))

	_, err := os.Stat(GetSettingsPath() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file left behind")

	loaded, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestLoadSettings_PartialFileKeepsDefaults(t *testing.T) {
	t.Setenv("BATCHGET_HOME", t.TempDir())
	require.NoError(t, EnsureDirs())
	require.NoError(t, os.WriteFile(GetSettingsPath(), []byte(`{"engine":{"split":2}}`), 0o644))

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 2, s.Engine.Split)
	assert.Equal(t, types.DefaultPollInterval, s.Monitor.Interval)
	assert.Equal(t, 5, s.General.LogRetentionCount)
}

func TestLoadSettings_Corrupt(t *testing.T) {
	t.Setenv("BATCHGET_HOME", t.TempDir())
	require.NoError(t, EnsureDirs())
	require.NoError(t, os.WriteFile(GetSettingsPath(), []byte(`{not json`), 0o644))

	_, err := LoadSettings()
	assert.Error(t, err)
}

func TestToEngineOptions(t *testing.T) {
	s := DefaultSettings()
	s.Engine.Split = 4
	s.Engine.Continue = false
	s.Engine.CheckCertificate = true
	s.Engine.MaxConcurrentDownloads = 2
	s.Engine.MaxOverallDownloadLimit = 1 << 20
	s.Engine.UserAgent = "ua"

	opts := s.ToEngineOptions("/data")
	assert.Equal(t, "/data", opts.Dir)
	assert.Equal(t, 4, opts.Split)
	assert.False(t, opts.Continue)
	assert.True(t, opts.CheckCertificate)
	assert.Equal(t, 2, opts.MaxConcurrentDownloads)
	assert.Equal(t, int64(1<<20), opts.MaxOverallDownloadLimit)
	assert.Equal(t, "ua", opts.UserAgent)
	assert.NoError(t, opts.Validate())
}

func TestMonitorConfig(t *testing.T) {
	s := DefaultSettings()
	s.Monitor.Interval = 0
	s.Monitor.Buffer = 0

	cfg := s.MonitorConfig()
	assert.Equal(t, types.DefaultPollInterval, cfg.GetInterval())
	assert.Equal(t, types.SnapshotChannelBuffer, cfg.GetBuffer())

	s.Monitor.Interval = 250 * time.Millisecond
	assert.Equal(t, 250*time.Millisecond, s.MonitorConfig().GetInterval())
}

func TestGetSettingsMetadata_CoversCategories(t *testing.T) {
	meta := GetSettingsMetadata()
	for _, cat := range CategoryOrder() {
		assert.NotEmpty(t, meta[cat], cat)
	}
}

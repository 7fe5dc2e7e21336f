package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/batchget/internal/engine/types"
)

var envKeys = []string{EnvDir, EnvSplit, EnvCheckCertificate, EnvMaxConcurrent, EnvInterval, EnvToken}

// unsetEnv clears keys for the test and restores them afterwards.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestApplyEnv(t *testing.T) {
	unsetEnv(t, envKeys...)
	t.Setenv(EnvDir, "/srv/downloads")
	t.Setenv(EnvSplit, "3")
	t.Setenv(EnvCheckCertificate, "false")
	t.Setenv(EnvMaxConcurrent, "2")
	t.Setenv(EnvInterval, "1500ms")
	t.Setenv(EnvToken, "tok")

	s := DefaultSettings()
	require.NoError(t, s.ApplyEnv())

	assert.Equal(t, "/srv/downloads", s.General.DefaultDownloadDir)
	assert.Equal(t, 3, s.Engine.Split)
	assert.False(t, s.Engine.CheckCertificate)
	assert.Equal(t, 2, s.Engine.MaxConcurrentDownloads)
	assert.Equal(t, 1500*time.Millisecond, s.Monitor.Interval)
	assert.Equal(t, "tok", s.General.APIToken)
}

func TestApplyEnv_NothingSet(t *testing.T) {
	unsetEnv(t, envKeys...)

	s := DefaultSettings()
	require.NoError(t, s.ApplyEnv())
	assert.Equal(t, DefaultSettings(), s)
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{EnvSplit, "many"},
		{EnvSplit, "0"},
		{EnvMaxConcurrent, "-1"},
		{EnvCheckCertificate, "sometimes"},
		{EnvInterval, "fast"},
		{EnvInterval, "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			unsetEnv(t, envKeys...)
			t.Setenv(tt.key, tt.value)

			err := DefaultSettings().ApplyEnv()
			var cfgErr *types.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.key, cfgErr.Field)
		})
	}
}

func TestLoadEnv_MissingFile(t *testing.T) {
	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoad_DotenvOverlay(t *testing.T) {
	unsetEnv(t, envKeys...)
	t.Setenv("BATCHGET_HOME", t.TempDir())

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BATCHGET_SPLIT=2\nBATCHGET_INTERVAL=2s\n"), 0o644))
	// The process environment wins over the file
	t.Setenv(EnvInterval, "3s")

	s, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Engine.Split)
	assert.Equal(t, 3*time.Second, s.Monitor.Interval)
}

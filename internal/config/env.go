package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/utils"
)

// Environment variables that override settings.json.
const (
	EnvDir              = "BATCHGET_DIR"
	EnvSplit            = "BATCHGET_SPLIT"
	EnvCheckCertificate = "BATCHGET_CHECK_CERTIFICATE"
	EnvMaxConcurrent    = "BATCHGET_MAX_CONCURRENT"
	EnvInterval         = "BATCHGET_INTERVAL"
	EnvToken            = "BATCHGET_TOKEN"
)

// LoadEnv reads the given dotenv files into the process environment.
// Variables already set win. Missing files are not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			utils.Debug("config: %s not found, using environment variables only", f)
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays BATCHGET_* variables onto s. A malformed value is
// reported as a *types.ConfigError naming the variable.
func (s *Settings) ApplyEnv() error {
	if v := os.Getenv(EnvDir); v != "" {
		s.General.DefaultDownloadDir = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		s.General.APIToken = v
	}
	if v := os.Getenv(EnvSplit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return &types.ConfigError{Field: EnvSplit, Reason: fmt.Sprintf("%q is not a positive integer", v)}
		}
		s.Engine.Split = n
	}
	if v := os.Getenv(EnvMaxConcurrent); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return &types.ConfigError{Field: EnvMaxConcurrent, Reason: fmt.Sprintf("%q is not a positive integer", v)}
		}
		s.Engine.MaxConcurrentDownloads = n
	}
	if v := os.Getenv(EnvCheckCertificate); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &types.ConfigError{Field: EnvCheckCertificate, Reason: fmt.Sprintf("%q is not a boolean", v)}
		}
		s.Engine.CheckCertificate = b
	}
	if v := os.Getenv(EnvInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return &types.ConfigError{Field: EnvInterval, Reason: fmt.Sprintf("%q is not a positive duration", v)}
		}
		s.Monitor.Interval = d
	}
	return nil
}

// Load returns the effective settings: settings.json (or defaults), then
// the dotenv files, then the process environment.
func Load(envFiles ...string) (*Settings, error) {
	settings, err := LoadSettings()
	if err != nil {
		return nil, err
	}
	if err := LoadEnv(envFiles...); err != nil {
		return nil, err
	}
	if err := settings.ApplyEnv(); err != nil {
		return nil, err
	}
	return settings, nil
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/surge-downloader/batchget/internal/engine"
	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/monitor"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General GeneralSettings `json:"general"`
	Engine  EngineSettings  `json:"engine"`
	Monitor MonitorSettings `json:"monitor"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	DefaultDownloadDir string `json:"default_download_dir"`
	LogRetentionCount  int    `json:"log_retention_count"`
	APIPort            int    `json:"api_port"`

	// APIToken overrides the generated token file when set.
	APIToken string `json:"api_token,omitempty"`
}

// EngineSettings is passed through to every session the engine creates.
type EngineSettings struct {
	Split                   int    `json:"split"`
	Continue                bool   `json:"continue"`
	CheckCertificate        bool   `json:"check_certificate"`
	MaxConcurrentDownloads  int    `json:"max_concurrent_downloads"`
	MaxOverallDownloadLimit int64  `json:"max_overall_download_limit"`
	UserAgent               string `json:"user_agent"`
}

// MonitorSettings tunes snapshot delivery.
type MonitorSettings struct {
	Interval time.Duration `json:"interval"`
	Buffer   int           `json:"buffer"`
}

// SettingMeta provides metadata for a single setting.
type SettingMeta struct {
	Key         string
	Label       string
	Description string
	Type        string // "string", "int", "int64", "bool", "duration"
}

// GetSettingsMetadata returns metadata for all settings organized by category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "default_download_dir", Label: "Default Download Dir", Description: "Destination used when -o is not given. Leave empty to use the current directory.", Type: "string"},
			{Key: "log_retention_count", Label: "Log Retention Count", Description: "Number of recent log files to keep.", Type: "int"},
			{Key: "api_port", Label: "API Port", Description: "Port of the local control API. 0 picks the first free port from 1700.", Type: "int"},
		},
		"Engine": {
			{Key: "split", Label: "Split", Description: "Connections per download (1-16).", Type: "int"},
			{Key: "continue", Label: "Continue", Description: "Resume partially downloaded files.", Type: "bool"},
			{Key: "check_certificate", Label: "Check Certificate", Description: "Verify TLS certificates.", Type: "bool"},
			{Key: "max_concurrent_downloads", Label: "Max Concurrent Downloads", Description: "Items downloading at once.", Type: "int"},
			{Key: "max_overall_download_limit", Label: "Overall Limit", Description: "Bytes per second across the batch. 0 is unlimited.", Type: "int64"},
			{Key: "user_agent", Label: "User Agent", Description: "Custom User-Agent string. Leave empty for default.", Type: "string"},
		},
		"Monitor": {
			{Key: "interval", Label: "Interval", Description: "Minimum time between snapshots (e.g., 900ms).", Type: "duration"},
			{Key: "buffer", Label: "Buffer", Description: "Snapshots held for a slow consumer before the oldest is dropped.", Type: "int"},
		},
	}
}

// CategoryOrder returns the order of categories for display.
func CategoryOrder() []string {
	return []string{"General", "Engine", "Monitor"}
}

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()

	defaultDir := ""

	// Check XDG_DOWNLOAD_DIR
	if xdgDir := os.Getenv("XDG_DOWNLOAD_DIR"); xdgDir != "" {
		if info, err := os.Stat(xdgDir); err == nil && info.IsDir() {
			defaultDir = xdgDir
		}
	}

	// Check ~/Downloads if not set
	if defaultDir == "" && homeDir != "" {
		downloadsDir := filepath.Join(homeDir, "Downloads")
		if info, err := os.Stat(downloadsDir); err == nil && info.IsDir() {
			defaultDir = downloadsDir
		}
	}

	return &Settings{
		General: GeneralSettings{
			DefaultDownloadDir: defaultDir,
			LogRetentionCount:  5,
		},
		Engine: EngineSettings{
			Split:                  types.DefaultSplit,
			Continue:               true,
			CheckCertificate:       runtime.GOOS != "windows",
			MaxConcurrentDownloads: types.DefaultMaxConcurrentDownloads,
		},
		Monitor: MonitorSettings{
			Interval: types.DefaultPollInterval,
			Buffer:   types.SnapshotChannelBuffer,
		},
	}
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetAppDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
func LoadSettings() (*Settings, error) {
	path := GetSettingsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// ToEngineOptions builds the session options for a batch written to dir.
func (s *Settings) ToEngineOptions(dir string) engine.Options {
	return engine.Options{
		Dir:                     dir,
		Split:                   s.Engine.Split,
		Continue:                s.Engine.Continue,
		CheckCertificate:        s.Engine.CheckCertificate,
		MaxConcurrentDownloads:  s.Engine.MaxConcurrentDownloads,
		MaxOverallDownloadLimit: s.Engine.MaxOverallDownloadLimit,
		UserAgent:               s.Engine.UserAgent,
	}
}

// MonitorConfig returns the monitor tuning for new batches.
func (s *Settings) MonitorConfig() monitor.Config {
	return monitor.Config{
		Interval: s.Monitor.Interval,
		Buffer:   s.Monitor.Buffer,
	}
}

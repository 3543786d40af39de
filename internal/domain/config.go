package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ErrFolderOutsideBase is returned for requested folders that resolve outside BaseDir
var ErrFolderOutsideBase = fmt.Errorf("%w: folder must be inside the download directory", ErrInvalidInput)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	YTDLP        YTDLPConfig        `mapstructure:"ytdlp"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"` // cross origins; same-origin pages are always allowed
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	DefaultFolder  string `mapstructure:"default_folder"` // used when a request leaves the folder empty
	DefaultQuality string `mapstructure:"default_quality"`
	DefaultCodec   string `mapstructure:"default_codec"`
	DefaultBitrate int    `mapstructure:"default_bitrate"`
	HistoryLimit   int    `mapstructure:"history_limit"`
}

// LogsDir returns the directory for log files
func (c DownloadConfig) LogsDir() string {
	return filepath.Join(c.BaseDir, "logs")
}

// ConfigDir returns the directory for local state
func (c DownloadConfig) ConfigDir() string {
	return filepath.Join(c.BaseDir, "config")
}

// HistoryDBPath returns the sqlite path for attempt history
func (c DownloadConfig) HistoryDBPath() string {
	return filepath.Join(c.ConfigDir(), "history.db")
}

// ResolveFolder returns the destination for a requested folder.
// Empty falls back to DefaultFolder; relative paths are placed under BaseDir.
func (c DownloadConfig) ResolveFolder(folder string) string {
	if folder == "" {
		folder = c.DefaultFolder
	}
	if filepath.IsAbs(folder) {
		return filepath.Clean(folder)
	}
	return filepath.Join(c.BaseDir, folder)
}

// ConfineFolder resolves folder like ResolveFolder for callers that must stay
// inside BaseDir. The configured default folder is always accepted.
func (c DownloadConfig) ConfineFolder(folder string) (string, error) {
	resolved := c.ResolveFolder(strings.TrimSpace(folder))
	if resolved == c.ResolveFolder("") {
		return resolved, nil
	}

	rel, err := filepath.Rel(filepath.Clean(c.BaseDir), resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrFolderOutsideBase
	}
	return resolved, nil
}

// YTDLPConfig contains settings for the external yt-dlp binary
type YTDLPConfig struct {
	Binary     string `mapstructure:"binary"`
	CookieFile string `mapstructure:"cookie_file"`
	ExtraArgs  string `mapstructure:"extra_args"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// MetricsConfig contains prometheus settings
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           8501,
			AllowedOrigins: []string{},
		},
		Download: DownloadConfig{
			BaseDir:        "$HOME/.yt-extract",
			DefaultFolder:  "downloads",
			DefaultQuality: QualityBest,
			DefaultCodec:   "mp3",
			DefaultBitrate: DefaultAudioBitrateKbps,
			HistoryLimit:   50,
		},
		YTDLP: YTDLPConfig{
			Binary: "yt-dlp",
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "yt_extract",
		},
	}
}

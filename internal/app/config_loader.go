package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/yourusername/yt-extract-go/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. YTEXTRACT_SERVER_PORT
const EnvPrefix = "YTEXTRACT"

// LoadConfig loads configuration from .env files, the config file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, config)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.yt-extract")
		v.AddConfigPath("/etc/yt-extract")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadEnvFiles loads .env and then .env.local from the working directory when present
func loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv applies during Unmarshal
func setDefaults(v *viper.Viper, c *domain.Config) {
	for key, value := range configValues(c) {
		v.SetDefault(key, value)
	}
}

// configValues flattens the config into viper keys matching the mapstructure tags
func configValues(c *domain.Config) map[string]interface{} {
	return map[string]interface{}{
		"server.host":            c.Server.Host,
		"server.port":            c.Server.Port,
		"server.allowed_origins": c.Server.AllowedOrigins,

		"download.base_dir":        c.Download.BaseDir,
		"download.default_folder":  c.Download.DefaultFolder,
		"download.default_quality": c.Download.DefaultQuality,
		"download.default_codec":   c.Download.DefaultCodec,
		"download.default_bitrate": c.Download.DefaultBitrate,
		"download.history_limit":   c.Download.HistoryLimit,

		"ytdlp.binary":      c.YTDLP.Binary,
		"ytdlp.cookie_file": c.YTDLP.CookieFile,
		"ytdlp.extra_args":  c.YTDLP.ExtraArgs,

		"notification.enabled": c.Notification.Enabled,
		"notification.method":  c.Notification.Method,

		"logging.level":       c.Logging.Level,
		"logging.format":      c.Logging.Format,
		"logging.output_path": c.Logging.OutputPath,

		"metrics.enabled":   c.Metrics.Enabled,
		"metrics.namespace": c.Metrics.Namespace,
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.BaseDir = expandPath(config.Download.BaseDir)
	config.Download.DefaultFolder = expandPath(config.Download.DefaultFolder)
	config.YTDLP.CookieFile = expandPath(config.YTDLP.CookieFile)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.BaseDir == "" {
		return fmt.Errorf("download base directory not configured")
	}

	if config.Download.DefaultFolder == "" {
		return fmt.Errorf("default download folder not configured")
	}

	if config.Download.DefaultBitrate <= 0 {
		config.Download.DefaultBitrate = domain.DefaultAudioBitrateKbps
	}

	if config.Download.HistoryLimit < 0 {
		return fmt.Errorf("history limit cannot be negative")
	}

	if config.YTDLP.Binary == "" {
		return fmt.Errorf("yt-dlp binary not configured")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range configValues(config) {
		v.Set(key, value)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. KLINES_DOWNLOAD_ASSET.
const EnvPrefix = "KLINES"

// ConfigManager handles configuration loading and validation
type ConfigManager struct {
	config     *Config
	configPath string
	logger     *slog.Logger
}

// NewConfigManager creates a new configuration manager. An empty configPath
// skips the file layer.
func NewConfigManager(configPath string, logger *slog.Logger) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigManager{
		configPath: configPath,
		logger:     logger,
	}
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Overrides, usually command-line flags (highest priority)
// 2. Environment variables (KLINES_SECTION_KEY)
// 3. Configuration file (YAML, JSON or TOML)
// 4. Default values (lowest priority)
//
// Override keys use the dotted form, e.g. "download.start".
func (cm *ConfigManager) LoadConfig(overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	// Load from configuration file if it exists
	if cm.configPath != "" {
		if err := cm.loadFromFile(v); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Environment variables override the file
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range overrides {
		v.Set(key, value)
	}

	config := &Config{}
	if err := v.Unmarshal(config, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.config = config
	cm.logger.Debug("configuration loaded",
		"config_path", cm.configPath,
		"asset", config.Download.Asset,
		"interval", config.Download.Interval,
		"start", config.Download.Start,
		"end", config.Download.End)

	return config, nil
}

// loadFromFile merges the configuration file into v
func (cm *ConfigManager) loadFromFile(v *viper.Viper) error {
	if _, err := os.Stat(cm.configPath); errors.Is(err, os.ErrNotExist) {
		cm.logger.Debug("config file does not exist, using defaults", "path", cm.configPath)
		return nil
	}

	v.SetConfigFile(cm.configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cm.configPath, err)
	}

	cm.logger.Debug("loaded configuration from file", "path", cm.configPath)
	return nil
}

// GetConfig returns the last loaded configuration
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// setDefaults registers every key with viper. AutomaticEnv only resolves keys
// viper already knows about.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("download.start", cfg.Download.Start)
	v.SetDefault("download.end", cfg.Download.End)
	v.SetDefault("download.asset", cfg.Download.Asset)
	v.SetDefault("download.market_type", cfg.Download.MarketType)
	v.SetDefault("download.interval", cfg.Download.Interval)
	v.SetDefault("download.page_size", cfg.Download.PageSize)
	v.SetDefault("download.assemble_mode", cfg.Download.AssembleMode)

	v.SetDefault("exchange.provider", cfg.Exchange.Provider)
	v.SetDefault("exchange.base_url", cfg.Exchange.BaseURL)
	v.SetDefault("exchange.timeout", cfg.Exchange.Timeout)
	v.SetDefault("exchange.request_delay", cfg.Exchange.RequestDelay)

	v.SetDefault("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.SetDefault("retry.strategy", cfg.Retry.Strategy)
	v.SetDefault("retry.initial_delay", cfg.Retry.InitialDelay)
	v.SetDefault("retry.max_delay", cfg.Retry.MaxDelay)
	v.SetDefault("retry.multiplier", cfg.Retry.Multiplier)
	v.SetDefault("retry.jitter", cfg.Retry.Jitter)

	v.SetDefault("output.dir", cfg.Output.Dir)
	v.SetDefault("output.duckdb_path", cfg.Output.DuckDBPath)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
	v.SetDefault("logging.file_path", cfg.Logging.FilePath)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.context_fields", cfg.Logging.ContextFields)
}

// Package config provides centralized configuration management for the kline downloader.
// This module handles configuration loading from multiple sources (defaults, files,
// environment variables and command-line overrides), validation, and provides typed
// configuration structures for the downloader components.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the human-readable date format used for download boundaries
// (day-month-year hour:minute).
const DateLayout = "02-01-2006 15:04"

// Config represents the complete run configuration
type Config struct {
	// Download describes what to fetch
	Download DownloadConfig `mapstructure:"download" json:"download"`

	// Exchange configures the remote market-data API
	Exchange ExchangeConfig `mapstructure:"exchange" json:"exchange"`

	// Retry configures how failed page requests are retried
	Retry RetryConfig `mapstructure:"retry" json:"retry"`

	// Output configures where the assembled dataset is written
	Output OutputConfig `mapstructure:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
}

// DownloadConfig configures the time range and market of a run
type DownloadConfig struct {
	Start        string `mapstructure:"start" json:"start"`                 // Start date, DateLayout
	End          string `mapstructure:"end" json:"end"`                     // End date, DateLayout; empty means now
	Asset        string `mapstructure:"asset" json:"asset"`                 // Asset symbol, e.g. BTCUSD
	MarketType   string `mapstructure:"market_type" json:"market_type"`     // Market type suffix, e.g. inverse
	Interval     int    `mapstructure:"interval" json:"interval"`           // Candle interval in minutes
	PageSize     int    `mapstructure:"page_size" json:"page_size"`         // Candles per request
	AssembleMode string `mapstructure:"assemble_mode" json:"assemble_mode"` // "break" or "filter"
}

// ExchangeConfig configures the remote API client
type ExchangeConfig struct {
	Provider     string        `mapstructure:"provider" json:"provider"`           // Provider tag used in the output filename
	BaseURL      string        `mapstructure:"base_url" json:"base_url"`           // API base URL
	Timeout      time.Duration `mapstructure:"timeout" json:"timeout"`             // HTTP request timeout
	RequestDelay time.Duration `mapstructure:"request_delay" json:"request_delay"` // Minimum spacing between attempts
}

// RetryConfig configures retry behavior for page requests
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" json:"max_attempts"`   // 0 retries until success
	Strategy     string        `mapstructure:"strategy" json:"strategy"`           // fixed, exponential
	InitialDelay time.Duration `mapstructure:"initial_delay" json:"initial_delay"` // Delay before the first retry
	MaxDelay     time.Duration `mapstructure:"max_delay" json:"max_delay"`         // Upper bound for exponential delays
	Multiplier   float64       `mapstructure:"multiplier" json:"multiplier"`       // Exponential growth factor
	Jitter       bool          `mapstructure:"jitter" json:"jitter"`               // Randomize exponential delays
}

// OutputConfig configures the dataset sinks
type OutputConfig struct {
	Dir        string `mapstructure:"dir" json:"dir"`                 // Directory receiving the CSV file
	DuckDBPath string `mapstructure:"duckdb_path" json:"duckdb_path"` // Optional DuckDB database to load the dataset into
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level         string            `mapstructure:"level" json:"level"`             // Log level: debug, info, warn, error
	Format        string            `mapstructure:"format" json:"format"`           // Log format: json, text
	Output        string            `mapstructure:"output" json:"output"`           // Output: stdout, stderr, file
	FilePath      string            `mapstructure:"file_path" json:"file_path"`     // Log file path
	MaxSize       int               `mapstructure:"max_size" json:"max_size"`       // Maximum log file size in MB
	MaxBackups    int               `mapstructure:"max_backups" json:"max_backups"` // Maximum log file backups
	MaxAge        int               `mapstructure:"max_age" json:"max_age"`         // Maximum log file age in days
	Compress      bool              `mapstructure:"compress" json:"compress"`       // Compress old log files
	ContextFields map[string]string `mapstructure:"context_fields" json:"context_fields"`
}

// Supported values
var (
	ValidIntervals     = []int{1, 3, 5, 15, 30, 60, 120, 240, 360, 720}
	ValidAssembleModes = []string{"break", "filter"}
	ValidStrategies    = []string{"fixed", "exponential"}
	ValidLogLevels     = []string{"debug", "info", "warn", "error"}
	ValidLogFormats    = []string{"json", "text"}
	ValidLogOutputs    = []string{"stdout", "stderr", "file"}
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Download: DownloadConfig{
			Start:        "01-09-2020 00:00",
			End:          "",
			Asset:        "BTCUSD",
			MarketType:   "inverse",
			Interval:     1,
			PageSize:     200,
			AssembleMode: "break",
		},
		Exchange: ExchangeConfig{
			Provider:     "BYBIT",
			BaseURL:      "https://api.bybit.com",
			Timeout:      30 * time.Second,
			RequestDelay: 100 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxAttempts:  0, // unbounded
			Strategy:     "fixed",
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Output: OutputConfig{
			Dir:        ".",
			DuckDBPath: "",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   "",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
			Compress:   true,
			ContextFields: map[string]string{
				"service": "klines",
			},
		},
	}
}

// Validate checks the configuration for consistency and required fields
func (c *Config) Validate() error {
	var errs []string

	// Validate download configuration. Date formats are checked when the
	// range is resolved so that a malformed date surfaces as a ParseError.
	if strings.TrimSpace(c.Download.Start) == "" {
		errs = append(errs, "download.start is required")
	}
	if c.Download.Asset == "" {
		errs = append(errs, "download.asset is required")
	}
	if !containsInt(ValidIntervals, c.Download.Interval) {
		errs = append(errs, fmt.Sprintf("download.interval must be one of: %s", joinInts(ValidIntervals)))
	}
	if c.Download.PageSize <= 0 {
		errs = append(errs, "download.page_size must be greater than 0")
	}
	if !containsString(ValidAssembleModes, c.Download.AssembleMode) {
		errs = append(errs, "download.assemble_mode must be one of: "+strings.Join(ValidAssembleModes, ", "))
	}

	// Validate exchange configuration
	if c.Exchange.Provider == "" {
		errs = append(errs, "exchange.provider is required")
	}
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange.base_url is required")
	}
	if c.Exchange.Timeout <= 0 {
		errs = append(errs, "exchange.timeout must be greater than 0")
	}
	if c.Exchange.RequestDelay < 0 {
		errs = append(errs, "exchange.request_delay cannot be negative")
	}

	// Validate retry configuration
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, "retry.max_attempts cannot be negative")
	}
	if !containsString(ValidStrategies, c.Retry.Strategy) {
		errs = append(errs, "retry.strategy must be one of: "+strings.Join(ValidStrategies, ", "))
	}
	if c.Retry.InitialDelay < 0 {
		errs = append(errs, "retry.initial_delay cannot be negative")
	}
	if c.Retry.Strategy == "exponential" {
		if c.Retry.MaxDelay < c.Retry.InitialDelay {
			errs = append(errs, "retry.max_delay must not be lower than retry.initial_delay")
		}
		if c.Retry.Multiplier < 1 {
			errs = append(errs, "retry.multiplier must be at least 1")
		}
	}

	// Validate output configuration
	if c.Output.Dir == "" {
		errs = append(errs, "output.dir is required")
	}

	// Validate logging configuration
	if !containsString(ValidLogLevels, c.Logging.Level) {
		errs = append(errs, "logging.level must be one of: "+strings.Join(ValidLogLevels, ", "))
	}
	if !containsString(ValidLogFormats, c.Logging.Format) {
		errs = append(errs, "logging.format must be one of: "+strings.Join(ValidLogFormats, ", "))
	}
	if !containsString(ValidLogOutputs, c.Logging.Output) {
		errs = append(errs, "logging.output must be one of: "+strings.Join(ValidLogOutputs, ", "))
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		errs = append(errs, "logging.file_path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

// String returns a JSON representation of the configuration
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func containsInt(values []int, v int) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

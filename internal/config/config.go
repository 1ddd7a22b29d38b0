// Package config provides centralized configuration management for the kline extractor.
// Configuration is layered from defaults, an optional config file, a .env file and
// environment variables, then validated before any component is constructed.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. OHLCV_EXTRACT_OUTPUT_DIR.
const EnvPrefix = "OHLCV"

// MaxPageLimit is the largest page the klines endpoint documents.
const MaxPageLimit = 1000

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Application metadata
	AppName string `json:"app_name" mapstructure:"app_name"`
	Version string `json:"version" mapstructure:"version"`

	// Exchange configuration
	Exchange ExchangeConfig `json:"exchange" mapstructure:"exchange"`

	// Extraction defaults
	Extract ExtractConfig `json:"extract" mapstructure:"extract"`

	// Batch orchestration
	Batch BatchConfig `json:"batch" mapstructure:"batch"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ExchangeConfig configures the kline transport
type ExchangeConfig struct {
	Transport      string        `json:"transport" mapstructure:"transport"`             // "http" or "sdk"
	BaseURL        string        `json:"base_url" mapstructure:"base_url"`               // USDT-M futures REST root
	KlinesPath     string        `json:"klines_path" mapstructure:"klines_path"`         // Kline endpoint path
	PageLimit      int           `json:"page_limit" mapstructure:"page_limit"`           // Records per page request
	PageDelay      time.Duration `json:"page_delay" mapstructure:"page_delay"`           // Pause between page requests
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout"` // Per-request timeout
	APIKey         string        `json:"api_key" mapstructure:"api_key"`                 // Read but unused by public endpoints
	APISecret      string        `json:"api_secret" mapstructure:"api_secret"`           // Read but unused by public endpoints
}

// ExtractConfig holds the per-symbol extraction defaults
type ExtractConfig struct {
	DefaultInterval string   `json:"default_interval" mapstructure:"default_interval"`
	OutputDir       string   `json:"output_dir" mapstructure:"output_dir"`
	Format          string   `json:"format" mapstructure:"format"` // "csv", "parquet", "memory"
	DefaultSymbols  []string `json:"default_symbols" mapstructure:"default_symbols"`
}

// BatchConfig configures how a list of symbols is processed
type BatchConfig struct {
	SymbolDelay time.Duration     `json:"symbol_delay" mapstructure:"symbol_delay"` // Pause between symbols
	Concurrency int               `json:"concurrency" mapstructure:"concurrency"`   // 1 keeps extraction sequential
	Retry       RetryPolicyConfig `json:"retry" mapstructure:"retry"`
}

// RetryPolicyConfig configures caller-side retry of a whole symbol extraction
type RetryPolicyConfig struct {
	MaxAttempts  int           `json:"max_attempts" mapstructure:"max_attempts"` // 1 disables retry
	InitialDelay time.Duration `json:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" mapstructure:"max_delay"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level         string            `json:"level" mapstructure:"level"`             // Log level: debug, info, warn, error
	Format        string            `json:"format" mapstructure:"format"`           // Log format: json, text
	Output        string            `json:"output" mapstructure:"output"`           // Output: stdout, stderr, file
	FilePath      string            `json:"file_path" mapstructure:"file_path"`     // Log file path
	MaxSize       int               `json:"max_size" mapstructure:"max_size"`       // Maximum log file size in MB
	MaxBackups    int               `json:"max_backups" mapstructure:"max_backups"` // Maximum log file backups
	MaxAge        int               `json:"max_age" mapstructure:"max_age"`         // Maximum log file age in days
	Compress      bool              `json:"compress" mapstructure:"compress"`       // Compress old log files
	ContextFields map[string]string `json:"context_fields" mapstructure:"context_fields"`
}

// ConfigManager handles configuration loading and validation
type ConfigManager struct {
	config     *AppConfig
	configPath string
	envFile    string
	logger     *slog.Logger
}

// NewConfigManager creates a new configuration manager. configPath may be empty.
func NewConfigManager(configPath string, logger *slog.Logger) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigManager{
		configPath: configPath,
		envFile:    ".env",
		logger:     logger,
	}
}

// WithEnvFile overrides the dotenv file consulted before environment variables are read.
func (cm *ConfigManager) WithEnvFile(path string) *ConfigManager {
	cm.envFile = path
	return cm
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Environment variables (highest priority, .env values included)
// 2. Configuration file
// 3. Default values (lowest priority)
func (cm *ConfigManager) LoadConfig(ctx context.Context) (*AppConfig, error) {
	if err := cm.loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	v := viper.New()
	registerDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials keep the exchange's conventional names
	if err := v.BindEnv("exchange.api_key", EnvPrefix+"_EXCHANGE_API_KEY", "BINANCE_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind api key: %w", err)
	}
	if err := v.BindEnv("exchange.api_secret", EnvPrefix+"_EXCHANGE_API_SECRET", "BINANCE_API_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind api secret: %w", err)
	}

	if cm.configPath != "" {
		if err := cm.loadFromFile(v); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	config := &AppConfig{}
	if err := v.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)), func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.config = config
	cm.logger.Debug("configuration loaded successfully",
		"config_path", cm.configPath,
		"transport", config.Exchange.Transport,
		"output_dir", config.Extract.OutputDir,
		"log_level", config.Logging.Level)

	return config, nil
}

// loadEnvFile loads the dotenv file when it exists. A missing file is not an error.
func (cm *ConfigManager) loadEnvFile() error {
	if cm.envFile == "" {
		return nil
	}
	if err := godotenv.Load(cm.envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	cm.logger.Debug("loaded environment file", "path", cm.envFile)
	return nil
}

// loadFromFile merges a JSON, YAML or TOML file into v
func (cm *ConfigManager) loadFromFile(v *viper.Viper) error {
	if _, err := os.Stat(cm.configPath); os.IsNotExist(err) {
		cm.logger.Debug("config file does not exist, using defaults", "path", cm.configPath)
		return nil
	}

	v.SetConfigFile(cm.configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cm.configPath, err)
	}

	cm.logger.Debug("loaded configuration from file", "path", cm.configPath)
	return nil
}

// registerDefaults seeds every known key so AutomaticEnv can override it on Unmarshal.
func registerDefaults(v *viper.Viper, d *AppConfig) {
	v.SetDefault("app_name", d.AppName)
	v.SetDefault("version", d.Version)

	v.SetDefault("exchange.transport", d.Exchange.Transport)
	v.SetDefault("exchange.base_url", d.Exchange.BaseURL)
	v.SetDefault("exchange.klines_path", d.Exchange.KlinesPath)
	v.SetDefault("exchange.page_limit", d.Exchange.PageLimit)
	v.SetDefault("exchange.page_delay", d.Exchange.PageDelay)
	v.SetDefault("exchange.request_timeout", d.Exchange.RequestTimeout)
	v.SetDefault("exchange.api_key", d.Exchange.APIKey)
	v.SetDefault("exchange.api_secret", d.Exchange.APISecret)

	v.SetDefault("extract.default_interval", d.Extract.DefaultInterval)
	v.SetDefault("extract.output_dir", d.Extract.OutputDir)
	v.SetDefault("extract.format", d.Extract.Format)
	v.SetDefault("extract.default_symbols", d.Extract.DefaultSymbols)

	v.SetDefault("batch.symbol_delay", d.Batch.SymbolDelay)
	v.SetDefault("batch.concurrency", d.Batch.Concurrency)
	v.SetDefault("batch.retry.max_attempts", d.Batch.Retry.MaxAttempts)
	v.SetDefault("batch.retry.initial_delay", d.Batch.Retry.InitialDelay)
	v.SetDefault("batch.retry.max_delay", d.Batch.Retry.MaxDelay)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.file_path", d.Logging.FilePath)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.context_fields", d.Logging.ContextFields)
}

// validateConfig validates the configuration for consistency and required fields
func (cm *ConfigManager) validateConfig(config *AppConfig) error {
	var errs []string

	// Validate exchange configuration
	validTransports := map[string]bool{"http": true, "sdk": true}
	if !validTransports[config.Exchange.Transport] {
		errs = append(errs, "exchange.transport must be one of: http, sdk")
	}
	if config.Exchange.BaseURL == "" {
		errs = append(errs, "exchange.base_url is required")
	}
	if config.Exchange.PageLimit <= 0 || config.Exchange.PageLimit > MaxPageLimit {
		errs = append(errs, fmt.Sprintf("exchange.page_limit must be between 1 and %d", MaxPageLimit))
	}
	if config.Exchange.PageDelay < 0 {
		errs = append(errs, "exchange.page_delay cannot be negative")
	}
	if config.Exchange.RequestTimeout <= 0 {
		errs = append(errs, "exchange.request_timeout must be greater than 0")
	}

	// Validate extraction defaults
	if config.Extract.DefaultInterval == "" {
		errs = append(errs, "extract.default_interval is required")
	}
	if config.Extract.OutputDir == "" {
		errs = append(errs, "extract.output_dir is required")
	}
	validFormats := map[string]bool{"csv": true, "parquet": true, "memory": true}
	if !validFormats[config.Extract.Format] {
		errs = append(errs, "extract.format must be one of: csv, parquet, memory")
	}

	// Validate batch configuration
	if config.Batch.Concurrency <= 0 {
		errs = append(errs, "batch.concurrency must be greater than 0")
	}
	if config.Batch.SymbolDelay < 0 {
		errs = append(errs, "batch.symbol_delay cannot be negative")
	}
	if config.Batch.Retry.MaxAttempts <= 0 {
		errs = append(errs, "batch.retry.max_attempts must be greater than 0")
	}
	if config.Batch.Retry.MaxDelay < config.Batch.Retry.InitialDelay {
		errs = append(errs, "batch.retry.max_delay must not be less than batch.retry.initial_delay")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[config.Logging.Level] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[config.Logging.Format] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if config.Logging.Output == "file" && config.Logging.FilePath == "" {
		errs = append(errs, "logging.file_path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.config
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "ohlcv-extractor",
		Version: "1.0.0",
		Exchange: ExchangeConfig{
			Transport:      "http",
			BaseURL:        "https://fapi.binance.com",
			KlinesPath:     "/fapi/v1/klines",
			PageLimit:      MaxPageLimit,
			PageDelay:      200 * time.Millisecond,
			RequestTimeout: 30 * time.Second,
		},
		Extract: ExtractConfig{
			DefaultInterval: "1d",
			OutputDir:       "./binance_futures_csvs",
			Format:          "csv",
			DefaultSymbols:  []string{"BTCUSDT", "ETHUSDT", "ADAUSDT", "XRPUSDT"},
		},
		Batch: BatchConfig{
			SymbolDelay: 300 * time.Millisecond,
			Concurrency: 1,
			Retry: RetryPolicyConfig{
				MaxAttempts:  1,
				InitialDelay: time.Second,
				MaxDelay:     30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
			Compress:   true,
			ContextFields: map[string]string{
				"service": "ohlcv-extractor",
			},
		},
	}
}

// String returns a string representation of the configuration (excluding sensitive data)
func (c *AppConfig) String() string {
	sanitized := *c
	if sanitized.Exchange.APIKey != "" {
		sanitized.Exchange.APIKey = "[REDACTED]"
	}
	if sanitized.Exchange.APISecret != "" {
		sanitized.Exchange.APISecret = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(&sanitized, "", "  ")
	return string(data)
}

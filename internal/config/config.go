// Package config provides configuration management for rstview.
//
// Configuration is loaded from three sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (RSTVIEW_ prefix)
//  3. Config file (.rstview.yaml)
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DefaultConverter lets rstview pick a converter from the file extension.
const DefaultConverter = "auto"

// DefaultConvertTimeout bounds a single external conversion.
const DefaultConvertTimeout = 2 * time.Minute

// Config represents the global configuration for rstview.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel" yaml:"log-level"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat" yaml:"log-format"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor" yaml:"no-color"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet" yaml:"quiet"`

	// Verbose raises the log level: 1 selects info, 2 or more debug.
	Verbose int `mapstructure:"verbose" json:"verbose" yaml:"verbose"`

	// Converter names the converter: "auto", "markdown" or an executable.
	Converter string `mapstructure:"converter" json:"converter" yaml:"converter"`

	// ConvertTimeout bounds one external conversion. Zero disables it.
	ConvertTimeout time.Duration `mapstructure:"convert-timeout" json:"convertTimeout" yaml:"convert-timeout"`

	// Debounce delays conversions until changes have settled. Zero converts
	// on every change.
	Debounce time.Duration `mapstructure:"debounce" json:"debounce" yaml:"debounce"`

	// NoBrowser skips opening the preview in a browser.
	NoBrowser bool `mapstructure:"no-browser" json:"noBrowser" yaml:"no-browser"`

	// Converters are per-pattern converter rules read from the config file.
	Converters []ConverterRule `mapstructure:"-" json:"converters,omitempty" yaml:"converters,omitempty"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load(), not read from config itself.
	ConfigFile string `mapstructure:"-" json:"-" yaml:"-"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:       LogLevelWarn,
		LogFormat:      LogFormatText,
		Converter:      DefaultConverter,
		ConvertTimeout: DefaultConvertTimeout,
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	if strings.TrimSpace(c.Converter) == "" {
		return errors.New("invalid converter: must not be empty")
	}

	if c.ConvertTimeout < 0 {
		return fmt.Errorf("invalid convert timeout %s: must not be negative", c.ConvertTimeout)
	}

	if c.Debounce < 0 {
		return fmt.Errorf("invalid debounce %s: must not be negative", c.Debounce)
	}

	return validateRules(c.Converters)
}

// EffectiveLogLevel returns the log level to use. Quiet forces "error";
// otherwise each -v raises the level one step from the configured one, up to
// "debug".
func (c *Config) EffectiveLogLevel() string {
	switch {
	case c.Quiet:
		return LogLevelError
	case c.Verbose >= 2:
		return LogLevelDebug
	case c.Verbose == 1 && c.LogLevel != LogLevelDebug:
		return LogLevelInfo
	default:
		return c.LogLevel
	}
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Store the resolved config file path so downstream code can locate it.
	cfg.ConfigFile = v.ConfigFileUsed()

	if hasRules(cfg.ConfigFile) {
		rules, err := LoadConverterRules(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}

		cfg.Converters = rules
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// hasRules reports whether path is a config file format that can carry
// converter rules.
func hasRules(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", LogLevelWarn)
	v.SetDefault("log-format", LogFormatText)
	v.SetDefault("no-color", false)
	v.SetDefault("quiet", false)
	v.SetDefault("verbose", 0)
	v.SetDefault("converter", DefaultConverter)
	v.SetDefault("convert-timeout", DefaultConvertTimeout)
	v.SetDefault("debounce", time.Duration(0))
	v.SetDefault("no-browser", false)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("RSTVIEW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	// Auto-discovery mode.
	v.SetConfigName(".rstview")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "rstview"))
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file found, which is fine in auto-discovery.
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}

		// Found a file but it was malformed.
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	// Bind the current command's own flags.
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	// Walk up to root and bind all persistent flags at each level.
	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newTestRootCmd creates a cobra.Command with the same persistent flags as the
// real root command so that Load can bind them during tests.
func newTestRootCmd() *cobra.Command {
	cmd := &cobra.Command{}
	pf := cmd.PersistentFlags()
	pf.String("config", "", "")
	pf.String("log-level", "warn", "")
	pf.String("log-format", "text", "")
	pf.Bool("no-color", false, "")
	pf.BoolP("quiet", "q", false, "")
	pf.CountP("verbose", "v", "")

	f := cmd.Flags()
	f.String("converter", "auto", "")
	f.Duration("convert-timeout", 2*time.Minute, "")
	f.Duration("debounce", 0, "")
	f.Bool("no-browser", false, "")

	return cmd
}

// writeTempConfig writes a YAML string to a temporary file and returns the path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	return p
}

// ---------------------------------------------------------------------------
// Default
// ---------------------------------------------------------------------------

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, LogLevelWarn, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, DefaultConverter, cfg.Converter)
	assert.Equal(t, 2*time.Minute, cfg.ConvertTimeout)
	assert.Zero(t, cfg.Debounce)
	assert.False(t, cfg.NoColor)
	assert.False(t, cfg.Quiet)
	assert.False(t, cfg.NoBrowser)
	assert.NoError(t, cfg.Validate())
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate_ValidValues(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		cfg := Default()
		cfg.LogLevel = lvl
		assert.NoError(t, cfg.Validate(), "level=%s", lvl)
	}

	for _, fmt := range []string{"text", "json"} {
		cfg := Default()
		cfg.LogFormat = fmt
		assert.NoError(t, cfg.Validate(), "format=%s", fmt)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "verbose" }, "invalid log level"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "invalid log format"},
		{"empty converter", func(c *Config) { c.Converter = " " }, "invalid converter"},
		{"negative timeout", func(c *Config) { c.ConvertTimeout = -time.Second }, "invalid convert timeout"},
		{"negative debounce", func(c *Config) { c.Debounce = -time.Second }, "invalid debounce"},
		{"bad rule", func(c *Config) { c.Converters = []ConverterRule{{Pattern: "*.adoc"}} }, "command is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

// ---------------------------------------------------------------------------
// EffectiveLogLevel
// ---------------------------------------------------------------------------

func TestEffectiveLogLevel(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"configured", Config{LogLevel: "error"}, "error"},
		{"quiet", Config{LogLevel: "debug", Quiet: true}, "error"},
		{"one v", Config{LogLevel: "warn", Verbose: 1}, "info"},
		{"one v keeps debug", Config{LogLevel: "debug", Verbose: 1}, "debug"},
		{"two v", Config{LogLevel: "warn", Verbose: 2}, "debug"},
		{"many v", Config{LogLevel: "error", Verbose: 5}, "debug"},
		{"quiet wins over verbose", Config{LogLevel: "warn", Verbose: 2, Quiet: true}, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.EffectiveLogLevel())
		})
	}
}

// ---------------------------------------------------------------------------
// Load: defaults only
// ---------------------------------------------------------------------------

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, LogLevelWarn, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, DefaultConverter, cfg.Converter)
	assert.Equal(t, DefaultConvertTimeout, cfg.ConvertTimeout)
	assert.False(t, cfg.NoColor)
	assert.False(t, cfg.Quiet)
	assert.Empty(t, cfg.Converters)
}

// ---------------------------------------------------------------------------
// Load: environment variables
// ---------------------------------------------------------------------------

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("RSTVIEW_LOG_LEVEL", "debug")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvBooleans(t *testing.T) {
	t.Setenv("RSTVIEW_NO_COLOR", "true")
	t.Setenv("RSTVIEW_QUIET", "true")
	t.Setenv("RSTVIEW_NO_BROWSER", "true")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.True(t, cfg.NoColor)
	assert.True(t, cfg.Quiet)
	assert.True(t, cfg.NoBrowser)
}

func TestLoad_EnvDurations(t *testing.T) {
	t.Setenv("RSTVIEW_CONVERT_TIMEOUT", "30s")
	t.Setenv("RSTVIEW_DEBOUNCE", "150ms")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.ConvertTimeout)
	assert.Equal(t, 150*time.Millisecond, cfg.Debounce)
}

// ---------------------------------------------------------------------------
// Load: config file
// ---------------------------------------------------------------------------

func TestLoad_ConfigFile(t *testing.T) {
	p := writeTempConfig(t, "log-level: info\nlog-format: json\nconverter: rst2html\ndebounce: 200ms\n")

	cfg, err := Load(nil, p)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "rst2html", cfg.Converter)
	assert.Equal(t, 200*time.Millisecond, cfg.Debounce)
	assert.Equal(t, p, cfg.ConfigFile)
}

func TestLoad_ConfigFileConverterRules(t *testing.T) {
	p := writeTempConfig(t, `
converter: auto
converters:
  - pattern: "*.adoc"
    command: asciidoctor-html
  - pattern: "*.txt"
    command: rst2html5
`)

	cfg, err := Load(nil, p)
	require.NoError(t, err)
	assert.Equal(t, []ConverterRule{
		{Pattern: "*.adoc", Command: "asciidoctor-html"},
		{Pattern: "*.txt", Command: "rst2html5"},
	}, cfg.Converters)
}

func TestLoad_ConfigFileInvalidRule(t *testing.T) {
	p := writeTempConfig(t, "converters:\n  - pattern: \"[\"\n    command: x\n")

	_, err := Load(nil, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_MalformedFile(t *testing.T) {
	p := writeTempConfig(t, ": invalid yaml :")

	_, err := Load(nil, p)
	require.Error(t, err)
}

func TestLoad_AutoDiscoversWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rstview.yaml"), []byte("converter: markdown\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "markdown", cfg.Converter)
	assert.Equal(t, ".rstview.yaml", filepath.Base(cfg.ConfigFile))
}

// ---------------------------------------------------------------------------
// Load: flag precedence
// ---------------------------------------------------------------------------

func TestLoad_FlagOverridesDefault(t *testing.T) {
	cmd := newTestRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("log-level", "error"))
	require.NoError(t, cmd.Flags().Set("converter", "pandoc"))

	cfg, err := Load(cmd, "")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "pandoc", cfg.Converter)
}

func TestLoad_VerboseCount(t *testing.T) {
	cmd := newTestRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"-vv"}))

	cfg, err := Load(cmd, "")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Verbose)
	assert.Equal(t, LogLevelDebug, cfg.EffectiveLogLevel())
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	t.Setenv("RSTVIEW_LOG_LEVEL", "debug")

	cmd := newTestRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("log-level", "error"))

	cfg, err := Load(cmd, "")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("RSTVIEW_LOG_LEVEL", "debug")
	p := writeTempConfig(t, "log-level: warn\n")

	cfg, err := Load(nil, p)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_FlagOverridesAll(t *testing.T) {
	t.Setenv("RSTVIEW_LOG_LEVEL", "debug")
	p := writeTempConfig(t, "log-level: warn\n")

	cmd := newTestRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("log-level", "error"))

	cfg, err := Load(cmd, p)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

// ---------------------------------------------------------------------------
// Load: validation on loaded values
// ---------------------------------------------------------------------------

func TestLoad_InvalidLogLevelFromEnv(t *testing.T) {
	t.Setenv("RSTVIEW_LOG_LEVEL", "verbose")

	_, err := Load(nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoad_InvalidLogFormatFromFile(t *testing.T) {
	p := writeTempConfig(t, "log-format: xml\n")

	_, err := Load(nil, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

// ---------------------------------------------------------------------------
// Converter rules
// ---------------------------------------------------------------------------

func TestParseConverterConfig(t *testing.T) {
	cfg, err := ParseConverterConfig([]byte(`
log-level: debug
converters:
  - pattern: "*.adoc"
    command: asciidoctor-html
`))
	require.NoError(t, err)
	require.Len(t, cfg.Converters, 1)
	assert.Equal(t, "*.adoc", cfg.Converters[0].Pattern)
	assert.Equal(t, "asciidoctor-html", cfg.Converters[0].Command)
}

func TestParseConverterConfig_Empty(t *testing.T) {
	cfg, err := ParseConverterConfig([]byte("log-level: debug\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Converters)
}

func TestParseConverterConfig_JSON(t *testing.T) {
	cfg, err := ParseConverterConfig([]byte(`{"converters":[{"pattern":"*.rst","command":"rst2html"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []ConverterRule{{Pattern: "*.rst", Command: "rst2html"}}, cfg.Converters)
}

func TestParseConverterConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"missing pattern", "converters:\n  - command: x\n", "pattern is required"},
		{"bad pattern", "converters:\n  - pattern: \"[a\"\n    command: x\n", "invalid pattern"},
		{"missing command", "converters:\n  - pattern: \"*.rst\"\n", "command is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConverterConfig([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseConverterConfig_Malformed(t *testing.T) {
	_, err := ParseConverterConfig([]byte("converters: [unclosed"))
	require.Error(t, err)
}

func TestLoadConverterRules_MissingFile(t *testing.T) {
	_, err := LoadConverterRules(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

func TestContext_RoundTrip(t *testing.T) {
	cfg := &Config{LogLevel: "debug", LogFormat: "json"}
	ctx := NewContext(context.Background(), cfg)
	got := FromContext(ctx)
	assert.Equal(t, cfg, got)
}

func TestFromContext_FallbackToDefault(t *testing.T) {
	got := FromContext(context.Background())
	assert.Equal(t, Default(), got)
}

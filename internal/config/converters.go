package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sigsyaml "sigs.k8s.io/yaml"
)

// ConverterRule maps documents whose base name matches Pattern to an
// external Command invoked as "<command> <src> <dst>".
type ConverterRule struct {
	// Pattern is a filepath.Match pattern tested against the base name.
	Pattern string `json:"pattern" yaml:"pattern"`

	// Command is the executable to run.
	Command string `json:"command" yaml:"command"`
}

// ConverterConfig is the converters section of the config file.
type ConverterConfig struct {
	Converters []ConverterRule `json:"converters,omitempty"`
}

// ParseConverterConfig parses the converters section from raw config file
// bytes. Other sections are ignored.
func ParseConverterConfig(data []byte) (*ConverterConfig, error) {
	var cfg ConverterConfig
	if err := sigsyaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing converter config: %w", err)
	}

	if err := validateRules(cfg.Converters); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadConverterRules reads the converters section of the config file at path.
func LoadConverterRules(path string) ([]ConverterRule, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from config discovery
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	cfg, err := ParseConverterConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg.Converters, nil
}

func validateRules(rules []ConverterRule) error {
	for i, r := range rules {
		if r.Pattern == "" {
			return fmt.Errorf("converters[%d]: pattern is required", i)
		}

		if _, err := filepath.Match(r.Pattern, ""); err != nil {
			return fmt.Errorf("converters[%d]: invalid pattern %q: %w", i, r.Pattern, err)
		}

		if strings.TrimSpace(r.Command) == "" {
			return fmt.Errorf("converters[%d]: command is required", i)
		}
	}

	return nil
}

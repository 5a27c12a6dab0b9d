package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/rstview/internal/config"
)

func newConfigCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration rstview would run with after merging
defaults, the config file, RSTVIEW_* environment variables and flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			w := cmd.OutOrStdout()

			if cfg.ConfigFile != "" && format == "yaml" {
				if _, err := fmt.Fprintf(w, "# %s\n", cfg.ConfigFile); err != nil {
					return err
				}
			}

			switch format {
			case "yaml":
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)

				if err := enc.Encode(configView(cfg)); err != nil {
					return fmt.Errorf("encoding config: %w", err)
				}

				return enc.Close()
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")

				return enc.Encode(configView(cfg))
			default:
				return &ExitError{Code: 2, Err: fmt.Errorf("unsupported format %q: must be yaml or json", format)}
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml, json")

	return cmd
}

// configView uses the config file key names and renders durations as
// strings rather than nanosecond integers.
func configView(cfg *config.Config) map[string]any {
	view := map[string]any{
		"log-level":       cfg.LogLevel,
		"log-format":      cfg.LogFormat,
		"no-color":        cfg.NoColor,
		"quiet":           cfg.Quiet,
		"verbose":         cfg.Verbose,
		"converter":       cfg.Converter,
		"convert-timeout": cfg.ConvertTimeout.String(),
		"debounce":        cfg.Debounce.String(),
		"no-browser":      cfg.NoBrowser,
	}

	if len(cfg.Converters) > 0 {
		view["converters"] = cfg.Converters
	}

	return view
}

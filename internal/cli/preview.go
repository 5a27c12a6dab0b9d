package cli

import (
	"errors"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/hupe1980/rstview/internal/config"
	"github.com/hupe1980/rstview/internal/convert"
	"github.com/hupe1980/rstview/internal/logging"
	"github.com/hupe1980/rstview/internal/preview"
	"github.com/hupe1980/rstview/internal/watch"
)

// registerPreviewFlags adds the live preview flags to the root command.
func registerPreviewFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("converter", config.DefaultConverter, `converter: "auto", "markdown" or an executable`)
	f.Duration("convert-timeout", config.DefaultConvertTimeout, "maximum duration of one conversion (0 = no limit)")
	f.Duration("debounce", 0, "wait for changes to settle before converting (0 = off)")
	f.Bool("no-browser", false, "do not open the preview in a browser")
}

// previewOptions builds preview options from the loaded configuration.
func previewOptions(cmd *cobra.Command, cfg *config.Config, file string) preview.Options {
	logger := logging.FromContext(cmd.Context())

	rules := make([]convert.Rule, 0, len(cfg.Converters))
	for _, r := range cfg.Converters {
		rules = append(rules, convert.Rule{Pattern: r.Pattern, Command: r.Command})
	}

	conv := convert.Select(cfg.Converter, file, rules,
		convert.WithTimeout(cfg.ConvertTimeout),
		convert.WithOutput(nil, cmd.ErrOrStderr()),
		convert.WithLogger(logger),
	)

	opts := preview.DefaultOptions()
	opts.File = file
	opts.Converter = conv
	opts.Debounce = cfg.Debounce
	opts.OpenBrowser = !cfg.NoBrowser
	opts.Logger = logger
	opts.Out = cmd.ErrOrStderr()
	opts.Color = !cfg.NoColor && isTerminal(opts.Out)

	if cfg.Quiet {
		opts.Out = io.Discard
	}

	return opts
}

func runPreview(cmd *cobra.Command, file string) error {
	cfg := config.FromContext(cmd.Context())

	if err := preview.Run(cmd.Context(), previewOptions(cmd, cfg, file)); err != nil {
		var setupErr *watch.SetupError
		if errors.As(err, &setupErr) && errors.Is(err, os.ErrNotExist) {
			return &ExitError{Code: 2, Err: err}
		}

		return &ExitError{Code: 1, Err: err}
	}

	return nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

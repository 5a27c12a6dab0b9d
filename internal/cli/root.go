// Package cli implements the cobra command tree for rstview.
package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/rstview/internal/config"
	"github.com/hupe1980/rstview/internal/logging"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute builds the command tree, runs it, and returns the exit code.
func Execute() int {
	cmd := NewRootCommand()

	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}

	return exitCode(err)
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return 1
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "rstview [flags] <file>",
		Short: "Live preview of reStructuredText documents in the browser",
		Long: `rstview renders a document to HTML with an external converter and
shows it in your browser. Every time the file is saved it is converted
again and the open page reloads itself.

The converter is invoked as "<converter> <source> <destination>" and
defaults to rst2html5. Markdown files are rendered with a builtin
converter.

Generated files (_iframe.html and _<file>.html) are written next to the
document and removed again when rstview exits.`,
		Example: `  rstview README.rst
  rstview --converter rst2html --debounce 200ms docs/index.rst
  rstview --no-browser notes.md`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			logger := logging.SetupWithWriter(cfg, cmd.ErrOrStderr())

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("file", cfg.ConfigFile),
				slog.String("logLevel", cfg.EffectiveLogLevel()),
				slog.String("converter", cfg.Converter),
			)

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}

			return runPreview(cmd, args[0])
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .rstview.yaml)")
	pf.String("log-level", config.LogLevelWarn, "log level: debug, info, warn, error")
	pf.String("log-format", config.LogFormatText, "log format: text, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")
	pf.CountP("verbose", "v", "increase verbosity (-v info, -vv debug)")

	registerPreviewFlags(cmd)

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	// Register subcommands.
	cmd.AddCommand(
		newVersionCommand(),
		newConfigCommand(),
		newCompletionCommand(),
	)

	return cmd
}

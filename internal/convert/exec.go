package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

// ExecOption configures an Exec converter.
type ExecOption func(*Exec)

// WithTimeout bounds each run of the external tool. Zero disables the
// timeout.
func WithTimeout(d time.Duration) ExecOption {
	return func(e *Exec) {
		e.timeout = d
	}
}

// WithOutput forwards the tool's stdout and stderr. Both are discarded when
// nil.
func WithOutput(stdout, stderr io.Writer) ExecOption {
	return func(e *Exec) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithLogger sets the logger used for per-run debug output.
func WithLogger(logger *slog.Logger) ExecOption {
	return func(e *Exec) {
		e.logger = logger
	}
}

// Exec runs an external converter as "<tool> <source> <dest>".
type Exec struct {
	tool    string
	path    string
	timeout time.Duration
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
}

// NewExec returns a converter for tool. The tool is looked up on PATH now
// and, if missing, again on every run, so installing it later takes effect
// without a restart. Until then each run fails with a *Error whose ExitCode
// is -1.
func NewExec(tool string, opts ...ExecOption) *Exec {
	e := &Exec{
		tool:   tool,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if path, err := exec.LookPath(tool); err == nil {
		e.path = path
	} else {
		e.logger.Warn("converter not found, conversions fail until it is installed",
			slog.String("tool", tool),
			slog.String("error", err.Error()),
		)
	}

	return e
}

// Available reports whether the tool was found on PATH at construction.
func (e *Exec) Available() bool { return e.path != "" }

// resolve returns the tool's path, looking it up again if it was missing.
func (e *Exec) resolve() (string, error) {
	if e.path != "" {
		return e.path, nil
	}

	path, err := exec.LookPath(e.tool)
	if err != nil {
		return "", fmt.Errorf("converter %q not found: %w", e.tool, err)
	}

	return path, nil
}

// Convert runs the tool and waits for it to exit. A non-zero exit status or
// a tool that cannot be started is a conversion failure.
func (e *Exec) Convert(ctx context.Context, src, dst string) error {
	path, err := e.resolve()
	if err != nil {
		return &Error{Source: src, Dest: dst, ExitCode: -1, Err: err}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)

		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, src, dst) //nolint:gosec // tool chosen by the user
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr

	start := time.Now()

	e.logger.Debug("running converter",
		slog.String("tool", e.tool),
		slog.String("source", src),
		slog.String("dest", dst),
	)

	if err := cmd.Run(); err != nil {
		cerr := &Error{Source: src, Dest: dst, ExitCode: -1, Err: err}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			cerr.ExitCode = exitErr.ExitCode()
		}

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cerr.Err = fmt.Errorf("%s timed out after %s: %w", e.tool, e.timeout, ctx.Err())
		}

		return cerr
	}

	e.logger.Debug("converter finished",
		slog.String("tool", e.tool),
		slog.Duration("elapsed", time.Since(start)),
	)

	return nil
}

func (e *Exec) String() string { return e.tool }

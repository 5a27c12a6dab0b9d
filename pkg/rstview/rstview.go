// Package rstview provides a public Go API for live document previews.
//
// This package exposes the rstview preview engine as a library, allowing
// programmatic use without the CLI.
//
// Basic usage:
//
//	// Blocks until ctx is cancelled, then removes the generated files.
//	err := rstview.Preview(ctx, "README.rst")
//
// With options:
//
//	s, err := rstview.Start(ctx, "docs/index.md",
//	    rstview.WithConverter("markdown"),
//	    rstview.WithDebounce(200*time.Millisecond),
//	    rstview.WithoutBrowser(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("open", s.URL())
//	err = s.Wait()
package rstview

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/rstview/internal/config"
	"github.com/hupe1980/rstview/internal/convert"
	"github.com/hupe1980/rstview/internal/logging"
	"github.com/hupe1980/rstview/internal/preview"
)

// ConverterFunc renders the document at src into an HTML file at dst.
type ConverterFunc func(ctx context.Context, src, dst string) error

// Rule maps documents whose base name matches Pattern to an external
// Command invoked as "<command> <src> <dst>".
type Rule = convert.Rule

// Option configures a preview or conversion.
// Use the With* functions to create Options.
type Option func(*options)

type options struct {
	converter     string
	converterFunc ConverterFunc
	rules         []Rule
	timeout       time.Duration
	debounce      time.Duration
	openBrowser   bool
	logger        *slog.Logger
	status        io.Writer
}

func defaultOptions() *options {
	return &options{
		converter:   convert.NameAuto,
		timeout:     config.DefaultConvertTimeout,
		openBrowser: true,
		logger:      logging.Discard(),
		status:      io.Discard,
	}
}

// WithConverter selects the converter by name: "auto" (default), "markdown"
// for the builtin renderer, or an executable on PATH.
func WithConverter(name string) Option {
	return func(o *options) {
		o.converter = name
	}
}

// WithConverterFunc renders documents with fn instead of a named converter.
func WithConverterFunc(fn ConverterFunc) Option {
	return func(o *options) {
		o.converterFunc = fn
	}
}

// WithRules adds per-pattern converter rules consulted by "auto".
func WithRules(rules ...Rule) Option {
	return func(o *options) {
		o.rules = append(o.rules, rules...)
	}
}

// WithTimeout bounds a single external conversion. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithDebounce waits for changes to settle for d before converting.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
	}
}

// WithoutBrowser does not open the preview in a browser.
func WithoutBrowser() Option {
	return func(o *options) {
		o.openBrowser = false
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStatus writes one status line per conversion to w.
func WithStatus(w io.Writer) Option {
	return func(o *options) {
		o.status = w
	}
}

func resolve(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = logging.Discard()
	}

	return o
}

func (o *options) converterFor(source string) convert.Converter {
	if o.converterFunc != nil {
		return convert.Func(o.converterFunc)
	}

	return convert.Select(o.converter, source, o.rules,
		convert.WithTimeout(o.timeout),
		convert.WithLogger(o.logger),
	)
}

// Convert renders src into dst once, using the configured converter.
func Convert(ctx context.Context, src, dst string, opts ...Option) error {
	o := resolve(opts)

	return o.converterFor(src).Convert(ctx, src, dst)
}

// Session is a running preview.
type Session struct {
	p *preview.Preview
}

// Start begins previewing file and returns once the preview is being
// served. The preview runs until ctx is cancelled.
func Start(ctx context.Context, file string, opts ...Option) (*Session, error) {
	o := resolve(opts)

	popts := preview.DefaultOptions()
	popts.File = file
	popts.Converter = o.converterFor(file)
	popts.Debounce = o.debounce
	popts.OpenBrowser = o.openBrowser
	popts.Logger = o.logger
	popts.Out = o.status

	p, err := preview.New(popts)
	if err != nil {
		return nil, err
	}

	if err := p.Start(ctx); err != nil {
		return nil, err
	}

	return &Session{p: p}, nil
}

// URL returns the address of the preview page.
func (s *Session) URL() string { return s.p.URL() }

// PushURL returns the address of the reload channel.
func (s *Session) PushURL() string { return s.p.PushURL() }

// FramePath returns the path of the rendered document.
func (s *Session) FramePath() string { return s.p.FramePath() }

// Done is closed once the preview has stopped and cleaned up.
func (s *Session) Done() <-chan struct{} { return s.p.Done() }

// Wait blocks until the preview has stopped and cleaned up.
func (s *Session) Wait() error { return s.p.Wait() }

// Preview runs a preview of file until ctx is cancelled.
func Preview(ctx context.Context, file string, opts ...Option) error {
	s, err := Start(ctx, file, opts...)
	if err != nil {
		return err
	}

	return s.Wait()
}

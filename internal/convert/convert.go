// Package convert renders a source document into an HTML destination file.
//
// The default converter shells out to an external tool invoked as
// "<tool> <source> <dest>"; Markdown sources can use the builtin goldmark
// renderer instead.
package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Converter names understood by Select.
const (
	// NameAuto picks a converter from the source extension and the
	// configured rules.
	NameAuto = "auto"

	// NameMarkdown selects the builtin Markdown renderer.
	NameMarkdown = "markdown"

	// DefaultTool is the external converter used for everything that is
	// not matched by a rule or recognised as Markdown.
	DefaultTool = "rst2html5"
)

// Converter renders src into dst.
type Converter interface {
	// Convert renders src into dst. It blocks until the render finished
	// and returns a *Error when it failed.
	Convert(ctx context.Context, src, dst string) error

	// String names the converter for logs.
	String() string
}

// Func adapts a plain function to the Converter interface.
type Func func(ctx context.Context, src, dst string) error

// Convert calls f.
func (f Func) Convert(ctx context.Context, src, dst string) error {
	return f(ctx, src, dst)
}

func (f Func) String() string { return "func" }

// Error reports a failed conversion. The destination file is left as it was.
type Error struct {
	Source string
	Dest   string
	// ExitCode is the converter's exit status, or -1 when the process
	// could not be started or did not exit on its own.
	ExitCode int
	Err      error
}

func (e *Error) Error() string {
	if e.Source == "" {
		return e.Err.Error()
	}

	if e.ExitCode > 0 {
		return fmt.Sprintf("converting %s: exit status %d", e.Source, e.ExitCode)
	}

	return fmt.Sprintf("converting %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Rule maps a filename glob to an external tool.
type Rule struct {
	// Pattern is matched against the source base name with filepath.Match.
	Pattern string
	// Command is the executable invoked as "<command> <source> <dest>".
	Command string
}

// Select resolves name into a Converter for the given source file.
//
// NameAuto consults rules first, then uses the builtin renderer for Markdown
// sources and DefaultTool for everything else. NameMarkdown always uses the
// builtin renderer. Any other name is treated as an executable.
func Select(name, source string, rules []Rule, opts ...ExecOption) Converter {
	switch name {
	case "", NameAuto:
		base := filepath.Base(source)

		for _, r := range rules {
			if ok, _ := filepath.Match(r.Pattern, base); ok {
				return NewExec(r.Command, opts...)
			}
		}

		if IsMarkdown(source) {
			return NewMarkdown()
		}

		return NewExec(DefaultTool, opts...)
	case NameMarkdown:
		return NewMarkdown()
	default:
		return NewExec(name, opts...)
	}
}

// IsMarkdown reports whether path has a Markdown extension.
func IsMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdown", ".mkd":
		return true
	default:
		return false
	}
}

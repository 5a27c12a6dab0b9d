package convert

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/hupe1980/rstview/internal/output"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { max-width: 48rem; margin: 2rem auto; padding: 0 1rem; font-family: sans-serif; line-height: 1.5; }
pre { padding: .75rem; overflow-x: auto; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: .25rem .5rem; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Markdown renders Markdown sources in-process with goldmark.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown returns the builtin Markdown converter.
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Typographer,
				highlighting.NewHighlighting(
					highlighting.WithStyle("github"),
				),
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				html.WithUnsafe(),
			),
		),
	}
}

// Convert renders src into a standalone HTML page at dst.
func (m *Markdown) Convert(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return &Error{Source: src, Dest: dst, ExitCode: -1, Err: err}
	}

	source, err := os.ReadFile(src) //nolint:gosec // user-selected document
	if err != nil {
		return &Error{Source: src, Dest: dst, ExitCode: -1, Err: err}
	}

	var body bytes.Buffer
	if err := m.md.Convert(source, &body); err != nil {
		return &Error{Source: src, Dest: dst, ExitCode: -1, Err: fmt.Errorf("rendering markdown: %w", err)}
	}

	var page bytes.Buffer

	data := struct {
		Title string
		Body  template.HTML
	}{
		Title: filepath.Base(src),
		Body:  template.HTML(body.String()), //nolint:gosec // rendered from the user's own document
	}

	if err := pageTemplate.Execute(&page, data); err != nil {
		return &Error{Source: src, Dest: dst, ExitCode: -1, Err: err}
	}

	if err := output.NewFileWriter(dst).Write(page.Bytes()); err != nil {
		return &Error{Source: src, Dest: dst, ExitCode: -1, Err: err}
	}

	return nil
}

func (m *Markdown) String() string { return NameMarkdown }

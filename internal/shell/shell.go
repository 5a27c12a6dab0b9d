// Package shell renders the browser-facing wrapper page: a full-window frame
// showing the rendered document plus a small script that reloads the frame
// whenever the push channel delivers a message.
package shell

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/hupe1980/rstview/internal/output"
)

//go:embed templates/shell.html.tmpl
var templateFS embed.FS

var shellTemplate = template.Must(template.ParseFS(templateFS, "templates/shell.html.tmpl"))

// FrameName is the file name of the rendered document inside the watched
// directory.
const FrameName = "_iframe.html"

// Name returns the shell document's file name for a source file name.
func Name(source string) string {
	return "_" + source + ".html"
}

// Data is injected into the shell template.
type Data struct {
	// Title is shown in the browser tab.
	Title string
	// FrameURL points at the rendered document on the static endpoint.
	FrameURL string
	// PushURL is the WebSocket URL of the push endpoint.
	PushURL string
}

// Render writes the shell document to w.
func Render(w io.Writer, data Data) error {
	if err := shellTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("rendering shell document: %w", err)
	}

	return nil
}

// Write renders the shell document into path.
func Write(path string, data Data, opts ...output.FileWriterOption) error {
	var buf bytes.Buffer
	if err := Render(&buf, data); err != nil {
		return err
	}

	return output.NewFileWriter(path, opts...).Write(buf.Bytes())
}

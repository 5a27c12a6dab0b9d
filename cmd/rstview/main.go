// rstview shows a live preview of a reStructuredText document in the browser.
package main

import (
	"os"

	"github.com/hupe1980/rstview/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

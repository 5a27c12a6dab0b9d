// Package browser opens URLs in the user's default web browser.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Command returns the program and arguments that open url on goos.
func Command(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

// Open starts the platform opener for url and does not wait for it.
func Open(url string) error {
	name, args := Command(runtime.GOOS, url)

	cmd := exec.Command(name, args...) //nolint:gosec // fixed opener, url built locally
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("opening %s: %w", url, err)
	}

	// Reap the opener in the background.
	go func() { _ = cmd.Wait() }()

	return nil
}

package output

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Writer is the interface for artifact destinations.
type Writer interface {
	// Write replaces the destination content with data.
	Write(data []byte) error
}

// FileWriter writes output to a file atomically, creating parent
// directories as needed.
type FileWriter struct {
	path   string
	perm   os.FileMode
	logger *slog.Logger
}

// FileWriterOption configures a FileWriter.
type FileWriterOption func(*FileWriter)

// WithPermissions overrides the default file permissions (0644).
func WithPermissions(perm os.FileMode) FileWriterOption {
	return func(fw *FileWriter) {
		fw.perm = perm
	}
}

// WithLogger sets a logger for the FileWriter.
func WithLogger(logger *slog.Logger) FileWriterOption {
	return func(fw *FileWriter) {
		fw.logger = logger
	}
}

// NewFileWriter creates a writer that writes to the specified file path.
func NewFileWriter(path string, opts ...FileWriterOption) *FileWriter {
	fw := &FileWriter{
		path:   path,
		perm:   0o644,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(fw)
	}

	return fw
}

// Write creates parent directories and replaces the file with data.
func (fw *FileWriter) Write(data []byte) error {
	dir := filepath.Dir(fw.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fw.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}

	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file %s: %w", tmpPath, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file %s: %w", tmpPath, err)
	}

	if err := os.Chmod(tmpPath, fw.perm); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, fw.path); err != nil {
		return fmt.Errorf("writing file %s: %w", fw.path, err)
	}

	fw.logger.Debug("wrote file", slog.String("path", fw.path), slog.Int("bytes", len(data)))

	return nil
}

// Path returns the output file path.
func (fw *FileWriter) Path() string {
	return fw.path
}

// Remove deletes path and reports whether it existed. A missing file is not
// an error.
func Remove(path string) (bool, error) {
	err := os.Remove(path)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("removing %s: %w", path, err)
	}
}

package watch

import (
	"fmt"
	"os"
	"path/filepath"
)

// Op is the kind of change that was observed.
type Op int

const (
	// Created means the file appeared, including editors that save by
	// writing a new file and renaming it into place.
	Created Op = iota + 1
	// Modified means the file content was written.
	Modified
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Modified:
		return "modified"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Event is a qualifying change to the target file.
type Event struct {
	Op   Op
	Path string
}

// Target identifies the single file a preview follows.
type Target struct {
	// Path is the absolute path of the source file.
	Path string
	// Dir is the directory that is watched.
	Dir string
	// Name is the base name events are filtered on.
	Name string
}

// ResolveTarget makes path absolute and checks that it names a regular file
// inside an existing directory.
func ResolveTarget(path string) (Target, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Target{}, &SetupError{Path: path, Err: fmt.Errorf("resolving path: %w", err)}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Target{}, &SetupError{Path: abs, Err: err}
	}

	if info.IsDir() {
		return Target{}, &SetupError{Path: abs, Err: fmt.Errorf("%s is a directory", abs)}
	}

	return Target{
		Path: abs,
		Dir:  filepath.Dir(abs),
		Name: filepath.Base(abs),
	}, nil
}

// SetupError reports that the target or its directory cannot be watched.
type SetupError struct {
	Path string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("watching %s: %v", e.Path, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

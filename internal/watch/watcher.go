package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HandleFunc receives qualifying events. It runs on the watcher goroutine
// and must not touch state owned by other goroutines directly.
type HandleFunc func(Event)

// Options configures the watch behaviour.
type Options struct {
	// Debounce is the quiet period before an event is delivered. Zero
	// delivers every qualifying event.
	Debounce time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Logger: slog.Default(),
	}
}

// Watcher follows a single Target.
type Watcher struct {
	target Target
	opts   Options
	fs     *fsnotify.Watcher
}

// New installs an OS-level watch on the target's directory. Failures are
// reported as *SetupError.
func New(target Target, opts Options) (*Watcher, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &SetupError{Path: target.Dir, Err: fmt.Errorf("creating watcher: %w", err)}
	}

	if err := fsw.Add(target.Dir); err != nil {
		_ = fsw.Close()
		return nil, &SetupError{Path: target.Dir, Err: err}
	}

	return &Watcher{target: target, opts: opts, fs: fsw}, nil
}

// Target returns the watched target.
func (w *Watcher) Target() Target {
	return w.target
}

// Run delivers events to handle until ctx is done or the underlying
// watcher is closed. Delivery errors are logged and do not stop the loop.
// Run closes the OS watch before returning.
func (w *Watcher) Run(ctx context.Context, handle HandleFunc) error {
	defer w.fs.Close()

	logger := w.opts.Logger.With(slog.String("file", w.target.Path))

	deliver := handle
	if w.opts.Debounce > 0 {
		debouncer := NewDebouncer(w.opts.Debounce, handle)
		defer debouncer.Stop()

		deliver = debouncer.Trigger
	}

	logger.Debug("watching directory", slog.String("dir", w.target.Dir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}

			ev, relevant := classify(event, w.target.Name)
			if !relevant {
				continue
			}

			logger.Debug("file changed", slog.String("op", ev.Op.String()))
			deliver(ev)

		case watchErr, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}

			logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// Close stops the OS watch. Run returns shortly after.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// classify turns a raw notification into an Event when it is a creation,
// write or attribute change of exactly the file called name. Touching a file
// only changes its attributes, so attribute changes count as modifications.
func classify(event fsnotify.Event, name string) (Event, bool) {
	if filepath.Base(event.Name) != name {
		return Event{}, false
	}

	var op Op

	switch {
	case event.Has(fsnotify.Create):
		op = Created
	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		op = Modified
	default:
		return Event{}, false
	}

	info, err := os.Stat(event.Name)

	// A directory with the target's name is not the target.
	if err == nil && info.IsDir() {
		return Event{}, false
	}

	// Unlinking a file also changes its attributes; that is not a change
	// worth converting.
	if err != nil && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return Event{}, false
	}

	return Event{Op: op, Path: event.Name}, true
}

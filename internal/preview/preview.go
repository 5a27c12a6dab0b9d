// Package preview wires the live preview together: it follows one source
// file, re-renders it on every change and tells connected browser tabs to
// reload.
//
// Two execution contexts exist. The watcher goroutine blocks on OS file
// notifications and never touches preview state; it hands each change to
// the reactor goroutine, which owns conversion bookkeeping and launches the
// converter without blocking. The only object shared with the HTTP side is
// the ready.Signal that push sessions wait on.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/hupe1980/rstview/internal/browser"
	"github.com/hupe1980/rstview/internal/convert"
	"github.com/hupe1980/rstview/internal/output"
	"github.com/hupe1980/rstview/internal/reactor"
	"github.com/hupe1980/rstview/internal/ready"
	"github.com/hupe1980/rstview/internal/server"
	"github.com/hupe1980/rstview/internal/shell"
	"github.com/hupe1980/rstview/internal/watch"
)

// LockName is the lock file created in the watched directory. The rendered
// document has a fixed name, so only one preview may run per directory.
const LockName = ".rstview.lock"

// ErrLocked is returned by Start when another preview owns the directory.
var ErrLocked = errors.New("another preview is already running in this directory")

// Options configures a Preview.
type Options struct {
	// File is the document to preview.
	File string

	// Converter renders File. Required.
	Converter convert.Converter

	// Debounce is the quiet period before a change triggers a conversion.
	Debounce time.Duration

	// OpenBrowser opens the shell document once the server is up.
	OpenBrowser bool

	// Browser opens a URL. Defaults to browser.Open.
	Browser func(url string) error

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out receives one status line per conversion.
	Out io.Writer

	// Color enables ANSI colors in status lines.
	Color bool
}

// DefaultOptions returns sensible default preview options.
func DefaultOptions() Options {
	return Options{
		OpenBrowser: true,
		Browser:     browser.Open,
		Logger:      slog.Default(),
		Out:         os.Stderr,
	}
}

// Preview is one running live preview.
type Preview struct {
	opts   Options
	logger *slog.Logger
	target watch.Target

	framePath string
	shellPath string

	lock    *flock.Flock
	signal  *ready.Signal
	reactor *reactor.Reactor
	server  *server.Server
	watcher *watch.Watcher
	sched   *scheduler
	status  *statusPrinter

	done chan struct{}
	err  error
}

// New validates the options and resolves the watched file. It does not
// create anything on disk.
func New(opts Options) (*Preview, error) {
	if opts.Converter == nil {
		return nil, errors.New("preview: converter is required")
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Browser == nil {
		opts.Browser = browser.Open
	}

	target, err := watch.ResolveTarget(opts.File)
	if err != nil {
		return nil, err
	}

	return &Preview{
		opts:      opts,
		logger:    opts.Logger.With(slog.String("file", target.Path)),
		target:    target,
		framePath: filepath.Join(target.Dir, shell.FrameName),
		shellPath: filepath.Join(target.Dir, shell.Name(target.Name)),
		lock:      flock.New(filepath.Join(target.Dir, LockName)),
		signal:    ready.NewSignal(),
		status:    newStatusPrinter(opts.Out, opts.Color),
		done:      make(chan struct{}),
	}, nil
}

// Target returns the watched file.
func (p *Preview) Target() watch.Target { return p.target }

// Signal returns the signal armed after each successful conversion.
func (p *Preview) Signal() *ready.Signal { return p.signal }

// FramePath returns the path of the rendered document.
func (p *Preview) FramePath() string { return p.framePath }

// ShellPath returns the path of the browser shell document.
func (p *Preview) ShellPath() string { return p.shellPath }

// URL returns the address of the shell document. Valid after Start.
func (p *Preview) URL() string { return p.server.StaticURL(filepath.Base(p.shellPath)) }

// FrameURL returns the address of the rendered document. Valid after Start.
func (p *Preview) FrameURL() string { return p.server.StaticURL(shell.FrameName) }

// PushURL returns the push channel address. Valid after Start.
func (p *Preview) PushURL() string { return p.server.PushURL() }

// Start runs the startup sequence and returns once the preview is serving.
// The preview keeps running until ctx is done; Wait blocks until teardown
// has finished. Start fails before creating any artifact if the directory is
// locked, an endpoint cannot be bound, or the watch cannot be installed.
func (p *Preview) Start(ctx context.Context) error {
	locked, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock %s: %w", p.lock.Path(), err)
	}

	if !locked {
		return fmt.Errorf("%w: %s", ErrLocked, p.target.Dir)
	}

	p.reactor = reactor.New(reactor.WithLogger(p.logger))
	p.sched = newScheduler(p.reactor, p.opts.Converter, p.logger, p.status)
	p.server = server.New(server.Options{
		Dir:    p.target.Dir,
		Signal: p.signal,
		Logger: p.logger,
	})

	if err := p.server.Listen(); err != nil {
		p.releaseLock()
		return err
	}

	p.logger.Debug("converting initial version", slog.String("converter", p.opts.Converter.String()))

	started := time.Now()
	if err := p.opts.Converter.Convert(ctx, p.target.Path, p.framePath); err != nil {
		p.logger.Warn("initial conversion failed", slog.String("error", err.Error()))
		p.status.failed("(initial)", err)
	} else {
		p.status.converted("(initial)", time.Since(started))
	}

	p.logger.Debug("writing shell document", slog.String("path", p.shellPath))

	err = shell.Write(p.shellPath, shell.Data{
		Title:    p.target.Name,
		FrameURL: p.FrameURL(),
		PushURL:  p.PushURL(),
	}, output.WithLogger(p.logger))
	if err != nil {
		p.abort()
		return err
	}

	watcher, err := watch.New(p.target, watch.Options{
		Debounce: p.opts.Debounce,
		Logger:   p.logger,
	})
	if err != nil {
		p.abort()
		return err
	}

	p.watcher = watcher

	p.run(ctx)

	p.logger.Info("preview ready", slog.String("url", p.URL()))

	if p.opts.OpenBrowser {
		if err := p.opts.Browser(p.URL()); err != nil {
			p.logger.Warn("could not open browser", slog.String("error", err.Error()))
		}
	}

	return nil
}

// run starts the reactor, watcher and server goroutines and the supervisor
// that tears everything down once ctx is done.
func (p *Preview) run(ctx context.Context) {
	var wg sync.WaitGroup

	errs := make(chan error, 3)

	wg.Add(3)

	go func() {
		defer wg.Done()
		errs <- p.reactor.Run(ctx)
	}()

	go func() {
		defer wg.Done()
		errs <- p.watcher.Run(ctx, p.onChange)
	}()

	go func() {
		defer wg.Done()
		errs <- p.server.Serve(ctx)
	}()

	go func() {
		wg.Wait()
		close(errs)

		var runErr error
		for err := range errs {
			runErr = errors.Join(runErr, err)
		}

		p.teardown()
		p.err = runErr
		close(p.done)
	}()
}

// onChange runs on the watcher goroutine and hands the change to the reactor.
func (p *Preview) onChange(ev watch.Event) {
	j := job{
		src:     p.target.Path,
		dst:     p.framePath,
		trigger: fmt.Sprintf("%s %s", p.target.Name, ev.Op),
		signal:  p.signal,
	}

	err := p.reactor.Submit(func(ctx context.Context) {
		p.sched.request(ctx, j)
	})
	if err != nil {
		p.logger.Debug("change ignored after shutdown", slog.String("op", ev.Op.String()))
	}
}

// Wait blocks until the preview has stopped and its artifacts were removed.
func (p *Preview) Wait() error {
	<-p.done
	return p.err
}

// Done is closed once teardown has finished.
func (p *Preview) Done() <-chan struct{} { return p.done }

// abort undoes a partially completed Start.
func (p *Preview) abort() {
	p.server.Close()
	p.teardown()
}

// teardown removes the generated artifacts and releases the directory lock.
// Removal is best effort: files may already be gone.
func (p *Preview) teardown() {
	for _, path := range []string{p.shellPath, p.framePath} {
		existed, err := output.Remove(path)
		if err != nil {
			p.logger.Warn("could not remove artifact", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}

		if existed {
			p.logger.Debug("removed artifact", slog.String("path", path))
		}
	}

	p.releaseLock()
}

func (p *Preview) releaseLock() {
	// Remove while still holding the lock so no other preview can have
	// locked the file we are deleting.
	if _, err := output.Remove(p.lock.Path()); err != nil {
		p.logger.Debug("could not remove lock file", slog.String("error", err.Error()))
	}

	if err := p.lock.Unlock(); err != nil {
		p.logger.Warn("failed to release lock", slog.String("error", err.Error()))
	}
}

// Run starts a preview and blocks until ctx is cancelled or SIGINT/SIGTERM is
// received, then tears it down.
func Run(ctx context.Context, opts Options) error {
	p, err := New(opts)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.Start(sigCtx); err != nil {
		return err
	}

	p.status.notice("previewing %s at %s (press Ctrl+C to stop)", p.target.Name, p.URL())

	return p.Wait()
}

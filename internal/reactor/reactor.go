// Package reactor implements the hand-off between foreign goroutines (such as
// the file watcher) and a single goroutine that owns all mutable preview
// state. Work submitted from anywhere runs exactly once, on the reactor
// goroutine, in submission order per submitter.
package reactor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned by Submit once the reactor has stopped.
var ErrStopped = errors.New("reactor stopped")

// Task is a unit of work executed on the reactor goroutine. The context is
// the one passed to Run.
type Task func(ctx context.Context)

// Option configures a Reactor.
type Option func(*Reactor)

// WithLogger sets the logger used for panics in tasks.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reactor) {
		r.logger = logger
	}
}

// WithQueueSize overrides the task queue capacity (default 64).
func WithQueueSize(n int) Option {
	return func(r *Reactor) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// Reactor drains submitted tasks on a single goroutine.
type Reactor struct {
	logger    *slog.Logger
	queueSize int

	tasks   chan Task
	stopped chan struct{}
	once    sync.Once

	// async tracks operations started with Go so Run can wait for them.
	async sync.WaitGroup
}

// New creates a Reactor. Call Run to start draining.
func New(opts ...Option) *Reactor {
	r := &Reactor{
		logger:    slog.Default(),
		queueSize: 64,
		stopped:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.tasks = make(chan Task, r.queueSize)

	return r
}

// Submit hands t to the reactor. It is safe to call from any goroutine
// except the reactor itself, which should call the work directly. Submit
// blocks while the queue is full and returns ErrStopped after Run returned.
func (r *Reactor) Submit(t Task) error {
	select {
	case <-r.stopped:
		return ErrStopped
	default:
	}

	select {
	case r.tasks <- t:
		return nil
	case <-r.stopped:
		return ErrStopped
	}
}

// Go runs fn on its own goroutine so the reactor never blocks on it, then
// delivers its result to done on the reactor goroutine. Go must be called
// from the reactor goroutine. If the reactor stops first, done is dropped.
func (r *Reactor) Go(ctx context.Context, fn func(ctx context.Context) error, done func(err error)) {
	r.async.Add(1)

	go func() {
		defer r.async.Done()

		err := fn(ctx)

		if submitErr := r.Submit(func(context.Context) { done(err) }); submitErr != nil {
			r.logger.Debug("dropping completion after stop", slog.Any("error", err))
		}
	}()
}

// Run executes tasks until ctx is done. On return, no further tasks are
// accepted and all operations started with Go have finished.
func (r *Reactor) Run(ctx context.Context) error {
	defer func() {
		r.once.Do(func() { close(r.stopped) })
		r.async.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-r.tasks:
			r.exec(ctx, t)
		}
	}
}

// Stopped is closed once Run has stopped accepting tasks.
func (r *Reactor) Stopped() <-chan struct{} {
	return r.stopped
}

func (r *Reactor) exec(ctx context.Context, t Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("reactor task panicked", slog.Any("error", rec))
		}
	}()

	t(ctx)
}

package preview

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/rstview/internal/convert"
	"github.com/hupe1980/rstview/internal/reactor"
	"github.com/hupe1980/rstview/internal/ready"
)

// job is one requested conversion.
type job struct {
	src     string
	dst     string
	trigger string
	// signal is armed after a successful conversion, if set.
	signal *ready.Signal
}

// scheduler runs conversions for the reactor. All of its fields are owned by
// the reactor goroutine; request and finish must only run there.
//
// At most one conversion per destination is in flight. Requests arriving
// meanwhile collapse into a single pending rerun that starts when the
// running one completes, so the last change always wins. The rerun is
// dropped if the source has not changed since the running conversion
// started, which folds the several events of a single save into one.
type scheduler struct {
	reactor   *reactor.Reactor
	converter convert.Converter
	logger    *slog.Logger
	status    *statusPrinter

	// inflight holds the source state seen when the running conversion for
	// a destination started.
	inflight map[string]sourceState
	pending  map[string]job

	// onFinish is called after every completed conversion.
	onFinish func(j job, err error)
}

func newScheduler(r *reactor.Reactor, c convert.Converter, logger *slog.Logger, status *statusPrinter) *scheduler {
	return &scheduler{
		reactor:   r,
		converter: c,
		logger:    logger,
		status:    status,
		inflight:  make(map[string]sourceState),
		pending:   make(map[string]job),
	}
}

func (s *scheduler) request(ctx context.Context, j job) {
	if _, busy := s.inflight[j.dst]; busy {
		s.logger.Debug("conversion queued behind running one", slog.String("dest", j.dst))
		s.pending[j.dst] = j

		return
	}

	s.start(ctx, j)
}

func (s *scheduler) start(ctx context.Context, j job) {
	s.inflight[j.dst] = statSource(j.src)
	started := time.Now()

	s.reactor.Go(ctx, func(ctx context.Context) error {
		return s.converter.Convert(ctx, j.src, j.dst)
	}, func(err error) {
		s.finish(ctx, j, err, time.Since(started))
	})
}

func (s *scheduler) finish(ctx context.Context, j job, err error, elapsed time.Duration) {
	seen := s.inflight[j.dst]
	delete(s.inflight, j.dst)

	if err != nil {
		s.logger.Error("conversion failed",
			slog.String("source", j.src),
			slog.String("error", err.Error()),
		)
		s.status.failed(j.trigger, err)
	} else {
		s.logger.Debug("conversion done", slog.String("dest", j.dst), slog.Duration("elapsed", elapsed))
		s.status.converted(j.trigger, elapsed)

		if j.signal != nil {
			j.signal.Arm()
		}
	}

	if s.onFinish != nil {
		s.onFinish(j, err)
	}

	next, ok := s.pending[j.dst]
	if !ok {
		return
	}

	delete(s.pending, j.dst)

	if next.src == j.src && seen.same(statSource(next.src)) {
		s.logger.Debug("source unchanged, skipping rerun", slog.String("source", next.src))
		return
	}

	s.start(ctx, next)
}

// sourceState identifies a version of a source file.
type sourceState struct {
	ok      bool
	size    int64
	modTime time.Time
}

func statSource(path string) sourceState {
	info, err := os.Stat(path)
	if err != nil {
		return sourceState{}
	}

	return sourceState{ok: true, size: info.Size(), modTime: info.ModTime()}
}

// same reports whether both states describe the same readable version.
func (a sourceState) same(b sourceState) bool {
	return a.ok && b.ok && a.size == b.size && a.modTime.Equal(b.modTime)
}

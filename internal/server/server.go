// Package server exposes the rendered document and the reload push channel
// over HTTP.
//
// Two loopback listeners share one route table: the static endpoint serves
// files from the watched directory under /static/, the push endpoint holds
// WebSocket sessions under /ws. Keeping them apart means a large asset
// download cannot delay a reload notification.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hupe1980/rstview/internal/ready"
)

// Role tags a listening endpoint.
type Role string

// Endpoint roles.
const (
	RoleStatic Role = "static"
	RolePush   Role = "push"
)

// Route paths.
const (
	StaticPrefix = "/static/"
	PushPath     = "/ws"
)

// UpdateMessage is the text frame sent to every session per notification.
const UpdateMessage = "update"

// LoopbackHost is the only interface the endpoints bind to.
const LoopbackHost = "127.0.0.1"

// Endpoint is a bound listening socket.
type Endpoint struct {
	Role     Role
	Listener net.Listener
	Port     int
}

// Options configures a Server.
type Options struct {
	// Dir is served under /static/.
	Dir string

	// Signal wakes push sessions.
	Signal *ready.Signal

	// WriteTimeout bounds a single push frame write.
	WriteTimeout time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// Server serves the static and push endpoints.
type Server struct {
	opts   Options
	logger *slog.Logger
	http   *http.Server

	static *Endpoint
	push   *Endpoint

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a Server. Call Listen, then Serve.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Signal == nil {
		opts.Signal = ready.NewSignal()
	}

	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	s := &Server{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*session),
	}

	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(opts.Logger.Handler(), slog.LevelDebug),
	}

	return s
}

// Listen binds both endpoints on ephemeral loopback ports. It fails with a
// *BindError if either cannot be bound; nothing stays open in that case.
func (s *Server) Listen() error {
	push, err := bind(RolePush)
	if err != nil {
		return err
	}

	static, err := bind(RoleStatic)
	if err != nil {
		_ = push.Listener.Close()
		return err
	}

	s.push, s.static = push, static

	s.logger.Debug("endpoints bound",
		slog.Int("staticPort", static.Port),
		slog.Int("pushPort", push.Port),
	)

	return nil
}

func bind(role Role) (*Endpoint, error) {
	addr := net.JoinHostPort(LoopbackHost, "0")

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Role: role, Addr: addr, Err: err}
	}

	tcpAddr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		_ = l.Close()
		return nil, &BindError{Role: role, Addr: addr, Err: fmt.Errorf("unexpected address type %T", l.Addr())}
	}

	return &Endpoint{Role: role, Listener: l, Port: tcpAddr.Port}, nil
}

// Close releases the listeners of a server that is not serving. Once Serve
// has been called, cancel its context instead.
func (s *Server) Close() {
	for _, ep := range []*Endpoint{s.static, s.push} {
		if ep != nil {
			_ = ep.Listener.Close()
		}
	}
}

// StaticPort returns the static endpoint's port, or 0 before Listen.
func (s *Server) StaticPort() int {
	if s.static == nil {
		return 0
	}

	return s.static.Port
}

// PushPort returns the push endpoint's port, or 0 before Listen.
func (s *Server) PushPort() int {
	if s.push == nil {
		return 0
	}

	return s.push.Port
}

// StaticURL returns the URL of name under the static endpoint.
func (s *Server) StaticURL(name string) string {
	return fmt.Sprintf("http://%s%s%s", net.JoinHostPort(LoopbackHost, strconv.Itoa(s.StaticPort())), StaticPrefix, name)
}

// PushURL returns the WebSocket URL of the push endpoint.
func (s *Server) PushURL() string {
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(LoopbackHost, strconv.Itoa(s.PushPort())), PushPath)
}

// Handler returns the route table shared by both endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+StaticPrefix, withRecovery(s.logger, s.staticHandler()))
	mux.Handle("GET "+PushPath, withRecovery(s.logger, http.HandlerFunc(s.handlePush)))

	return mux
}

// Serve serves both endpoints until ctx is done, then shuts down: new
// connections are refused, push sessions are closed, and in-flight static
// requests get a short grace period.
func (s *Server) Serve(ctx context.Context) error {
	if s.static == nil || s.push == nil {
		return errors.New("server: Serve called before Listen")
	}

	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	s.http.BaseContext = func(net.Listener) context.Context { return baseCtx }

	errCh := make(chan error, 2)

	for _, ep := range []*Endpoint{s.static, s.push} {
		go func(ep *Endpoint) {
			s.logger.Debug("serving endpoint", slog.String("role", string(ep.Role)), slog.Int("port", ep.Port))

			if err := s.http.Serve(ep.Listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serving %s endpoint: %w", ep.Role, err)
				return
			}

			errCh <- nil
		}(ep)
	}

	var serveErr error

	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	// Hijacked WebSocket connections are not tracked by http.Server, so
	// their contexts are cancelled explicitly.
	cancelBase()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("server shutdown", slog.String("error", err.Error()))
	}

	s.waitSessions(shutdownCtx)

	return serveErr
}

// SessionCount returns the number of open push sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

func (s *Server) register(sess *session) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.id] = sess

	return len(s.sessions)
}

func (s *Server) unregister(sess *session) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sess.id)

	return len(s.sessions)
}

func (s *Server) waitSessions(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for s.SessionCount() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// withRecovery wraps an HTTP handler with panic recovery.
func withRecovery(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("handler panicked",
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

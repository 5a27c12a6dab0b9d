package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 512,
	CheckOrigin:     isLoopbackOrigin,
}

// isLoopbackOrigin accepts requests without an Origin header (non-browser
// clients) and browser pages served from a loopback host. The shell page
// lives on the static port, so same-origin checking would reject it.
func isLoopbackOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}

// session is one accepted push connection.
type session struct {
	id     string
	conn   *websocket.Conn
	remote string
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		s.logger.Debug("push upgrade failed", slog.String("error", err.Error()))
		return
	}

	sess := &session{
		id:     uuid.NewString(),
		conn:   conn,
		remote: r.RemoteAddr,
	}

	logger := s.logger.With(slog.String("session", sess.id))

	count := s.register(sess)
	logger.Info("push session opened", slog.String("remote", sess.remote), slog.Int("sessions", count))

	defer func() {
		_ = conn.Close()
		count := s.unregister(sess)
		logger.Info("push session closed", slog.Int("sessions", count))
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends payloads, but reading is how close frames and
	// dropped connections are noticed.
	go func() {
		defer cancel()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					logger.Debug("push read error", slog.String("error", err.Error()))
				}

				return
			}
		}
	}()

	if err := s.runSession(ctx, sess); err != nil {
		logger.Warn("push session dropped", slog.String("error", err.Error()))
		return
	}

	// Peer went away or the server is shutting down.
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
}

// runSession waits for the ready signal, sends one update per arming and
// clears the signal, until ctx is done or a write fails.
func (s *Server) runSession(ctx context.Context, sess *session) error {
	sig := s.opts.Signal
	last := sig.Mark()

	for {
		gen, err := sig.Wait(ctx, last)
		if err != nil {
			return nil
		}

		if err := sess.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return &TransportError{Session: sess.id, Err: err}
		}

		if err := sess.conn.WriteMessage(websocket.TextMessage, []byte(UpdateMessage)); err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return &TransportError{Session: sess.id, Err: err}
		}

		s.logger.Debug("sent update", slog.String("session", sess.id), slog.Uint64("generation", gen))

		sig.Clear(gen)
		last = gen
	}
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/voicescribe/dictation-core/cmd/dictation/session"
)

const sendQueueSize = 64

var upgrader = websocket.Upgrader{
	// Local-only event surface; clients connect from the presentation
	// shell on the same machine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Config struct {
	ListenAddr string
}

func (c Config) IsValid() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("invalid ListenAddr: should not be empty")
	}
	return nil
}

// Server broadcasts session events to local websocket clients. Delivery is
// fire and forget: a slow client gets events dropped, never blocking the
// pipeline.
type Server struct {
	cfg Config
	srv *http.Server

	mut   sync.Mutex
	conns map[*websocket.Conn]chan session.Event
}

func New(cfg Config) (*Server, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	s := &Server{
		cfg:   cfg,
		conns: make(map[*websocket.Conn]chan session.Event),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	s.srv = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	return s, nil
}

// Handler exposes the underlying handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		slog.Info("event server listening", slog.String("addr", s.cfg.ListenAddr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("event server failed", slog.String("err", err.Error()))
		}
	}()
}

// Stop shuts the server down and disconnects all clients.
func (s *Server) Stop(ctx context.Context) error {
	s.mut.Lock()
	for conn, sendCh := range s.conns {
		close(sendCh)
		delete(s.conns, conn)
	}
	s.mut.Unlock()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Broadcast fans an event out to every connected client without blocking.
func (s *Server) Broadcast(ev session.Event) {
	s.mut.Lock()
	defer s.mut.Unlock()

	for conn, sendCh := range s.conns {
		select {
		case sendCh <- ev:
		default:
			slog.Debug("dropping event for slow client",
				slog.String("addr", conn.RemoteAddr().String()),
				slog.String("type", string(ev.Type)))
		}
	}
}

// Forward pumps a session's event stream into the broadcaster until the
// stream is closed or the context is cancelled.
func (s *Server) Forward(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.Broadcast(ev)
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mut.Lock()
	defer s.mut.Unlock()
	return len(s.conns)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade connection", slog.String("err", err.Error()))
		return
	}

	sendCh := make(chan session.Event, sendQueueSize)
	s.mut.Lock()
	s.conns[conn] = sendCh
	s.mut.Unlock()

	slog.Debug("client connected", slog.String("addr", conn.RemoteAddr().String()))

	go s.writeLoop(conn, sendCh)

	// Read loop exists only to notice disconnects; clients send nothing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mut.Lock()
	if ch, ok := s.conns[conn]; ok {
		close(ch)
		delete(s.conns, conn)
	}
	s.mut.Unlock()

	if err := conn.Close(); err != nil {
		slog.Debug("failed to close connection", slog.String("err", err.Error()))
	}

	slog.Debug("client disconnected", slog.String("addr", conn.RemoteAddr().String()))
}

func (s *Server) writeLoop(conn *websocket.Conn, sendCh <-chan session.Event) {
	for ev := range sendCh {
		if err := conn.WriteJSON(ev); err != nil {
			slog.Debug("failed to write event", slog.String("err", err.Error()))
			return
		}
	}
	// Channel closed: server stopping or client unregistered.
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

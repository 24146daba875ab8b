// Package statusfeed publishes viewer status to hosting pages over HTTP and
// websockets.
package statusfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Faultbox/estateview/internal/logger"
	"github.com/Faultbox/estateview/internal/viewer"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	shutdownTimeout = 5 * time.Second
)

// Source is the status publisher, normally a *viewer.Viewer.
type Source interface {
	Status() viewer.Status
	Subscribe() (<-chan viewer.Status, func())
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry serves reg on /metrics and registers the feed's own metrics
// on it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithAllowedOrigins restricts websocket upgrades to the given origins.
// Without it any origin is accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return allowed[r.Header.Get("Origin")]
		}
	}
}

// Server serves GET /status, the /ws status stream and optionally /metrics.
type Server struct {
	src      Source
	log      *zap.Logger
	upgrader websocket.Upgrader
	registry *prometheus.Registry
	clients  prometheus.Gauge
	sent     prometheus.Counter

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	done  chan struct{}
	once  sync.Once
}

// New creates a status server for src.
func New(src Source, opts ...Option) *Server {
	s := &Server{
		src: src,
		log: logger.Named("statusfeed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "estateview_statusfeed_clients",
			Help: "Connected status stream clients.",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estateview_statusfeed_messages_total",
			Help: "Status messages written to stream clients.",
		}),
		conns: make(map[*websocket.Conn]struct{}),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry != nil {
		s.registry.MustRegister(s.clients, s.sent)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.serveStatus)
	mux.HandleFunc("GET /ws", s.serveWS)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("status server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close ends all status streams. Websocket connections are hijacked, so
// http.Server.Shutdown does not close them.
func (s *Server) Close() {
	s.once.Do(func() { close(s.done) })
}

// Clients returns the number of connected stream clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) serveStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.src.Status()); err != nil {
		s.log.Debug("writing status", zap.Error(err))
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.track(conn)
	defer s.untrack(conn)

	updates, unsubscribe := s.src.Subscribe()
	defer unsubscribe()

	// The reader only services control frames and notices disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				s.closeConn(conn, websocket.CloseGoingAway, "viewer closed")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(st); err != nil {
				s.log.Debug("status write failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
				return
			}
			s.sent.Inc()
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.done:
			s.closeConn(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func (s *Server) closeConn(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		s.log.Debug("close frame failed", zap.Error(err))
	}
}

func (s *Server) track(conn *websocket.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.clients.Inc()
	s.log.Debug("status client connected", zap.String("remote", conn.RemoteAddr().String()))
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.clients.Dec()
	conn.Close()
	s.log.Debug("status client disconnected", zap.String("remote", conn.RemoteAddr().String()))
}

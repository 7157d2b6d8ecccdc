// Package server exposes the websocket endpoint, the metrics scrape endpoint
// and the health probe, and owns connection admission and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/metrics"
	"chat-relay/services"
	"chat-relay/session"
)

type Config struct {
	Host            string
	Port            int
	MaxSessions     int
	ShutdownTimeout time.Duration
	Session         session.Config
}

type Server struct {
	cfg     Config
	hub     session.Broadcaster
	auth    services.IAuthService
	chat    services.IChatService
	metrics *metrics.Registry
	log     *slog.Logger

	upgrader websocket.Upgrader
	slots    chan struct{}
	sessions sync.WaitGroup

	// baseCtx outlives individual requests; a request context dies with its
	// handler, which would cancel a session's store calls mid-flight.
	baseCtx context.Context
}

func New(cfg Config, b session.Broadcaster, auth services.IAuthService,
	chat services.IChatService, m *metrics.Registry, log *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		hub:     b,
		auth:    auth,
		chat:    chat,
		metrics: m,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		slots:   make(chan struct{}, cfg.MaxSessions),
		baseCtx: context.Background(),
	}
}

// Handler builds the HTTP surface. Exposed separately so tests can mount it
// on an httptest server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run serves until the context is cancelled, then shuts down gracefully:
// stop accepting, wait for live sessions, bounded by the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.log.Warn("shutdown timeout reached with sessions still live")
	}
	return nil
}

// handleWS admits, upgrades and runs one session. Admission is checked
// before the upgrade so a refused client costs one cheap HTTP response.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	select {
	case s.slots <- struct{}{}:
	default:
		s.metrics.AdmissionRefused.Inc()
		s.log.Warn("admission refused", "remote", r.RemoteAddr)
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		<-s.slots
		s.log.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := session.New(conn, s.hub, s.auth, s.chat, s.cfg.Session, s.log)
	s.sessions.Add(1)
	go func() {
		defer func() {
			<-s.slots
			s.sessions.Done()
		}()
		sess.Run(s.baseCtx)
	}()
}

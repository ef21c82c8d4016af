package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/photonchat/photon/pkg/protocol"
	"github.com/photonchat/photon/pkg/transport"
)

type httpServer struct {
	srv *http.Server
}

func (h *httpServer) shutdown(ctx context.Context) {
	_ = h.srv.Shutdown(ctx)
}

// Handler returns the HTTP surface: Prometheus /metrics, /healthz and the
// /ws WebSocket endpoint carrying the chat protocol.
func (s *Server) Handler() http.Handler {
	reg := s.newRegistry()
	up := transport.NewUpgrader(s.cfg.MaxTransmissionSize+protocol.HeaderSize, nil)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r)
		if err != nil {
			s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		s.ServeConn(conn)
	})
	return r
}

// StartHTTP starts the HTTP surface on Config.HTTPAddr in the background.
// An empty address disables it.
func (s *Server) StartHTTP() error {
	addr := s.cfg.HTTPAddr
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen http: %w", err)
	}

	hs := &httpServer{
		srv: &http.Server{
			Handler:           s.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	s.mu.Lock()
	s.httpSrv = hs
	s.mu.Unlock()

	go func() {
		s.logger.Info("HTTP listening", "addr", ln.Addr().String())
		if err := hs.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP error", "err", err)
		}
	}()
	return nil
}

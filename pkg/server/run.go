package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Run starts the server and blocks until a shutdown signal.
func (s *Server) Run() error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	if err := s.Listen(); err != nil {
		_ = s.store.Close()
		return err
	}
	if err := s.StartHTTP(); err != nil {
		s.Shutdown(context.Background())
		return err
	}
	s.metrics.StartPeriodicLog(s.logger, 60*time.Second, s.ctx.Done())

	s.logger.Info("Photon server running",
		"chat", s.cfg.ListenAddr(),
		"http", s.cfg.HTTPAddr,
	)

	sigCtx, stop := signal.NotifyContext(s.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	s.logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Shutdown(ctx)
	return nil
}

// Shutdown stops accepting connections, closes every session, waits for
// their teardown and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	// cancel strictly before taking s.mu: admit checks s.ctx under s.mu
	s.cancel()

	s.mu.Lock()
	ln, hs := s.listener, s.httpSrv
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	if hs != nil {
		hs.shutdown(ctx)
	}

	for _, sess := range s.presence.All() {
		sess.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("sessions still running at shutdown", "err", ctx.Err())
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("close store", "err", err)
		}
	}
}

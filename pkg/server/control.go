package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/photonchat/photon/pkg/protocol"
)

// Listen binds the chat listener on the configured address and starts
// accepting connections in the background.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.logger.Info("chat listener ready", "addr", ln.Addr().String())
	go s.Serve(ln)
	return nil
}

// Addr returns the bound chat listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections on ln until the server shuts down.
func (s *Server) Serve(ln net.Listener) {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept error", "err", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !s.admit() {
			_ = conn.Close()
			return
		}
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// ServeConn runs one session on conn and returns once it has been torn down.
// It is used for both TCP and WebSocket peers. After Shutdown it closes conn
// and returns at once.
func (s *Server) ServeConn(conn net.Conn) {
	if !s.admit() {
		_ = conn.Close()
		return
	}
	defer s.wg.Done()
	s.serveConn(conn)
}

// admit counts a new session against s.wg. It fails once Shutdown has begun,
// so no Add can race with Shutdown's Wait.
func (s *Server) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) serveConn(conn net.Conn) {
	sess := newSession(conn, s.cfg.MaxTransmissionSize, s.logger)
	s.presence.Add(sess)
	// Shutdown cancels before it snapshots presence; a session added after
	// that snapshot closes itself here.
	if s.ctx.Err() != nil {
		sess.close()
	}
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	sess.logger.Info("client connected")

	defer s.teardown(sess)
	s.readLoop(sess)
}

func (s *Server) readLoop(sess *Session) {
	for {
		if s.cfg.HandshakeTimeout > 0 && sess.State() == StateConnecting {
			_ = sess.conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
		}
		pkt, err := sess.read()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				s.metrics.ProtocolErrors.Add(1)
				sess.fail("", newError(KindProtocol, CodeMalformed, "read", err))
				continue
			}
			switch {
			case sess.State() == StateClosed || isDisconnect(err):
				sess.logger.Debug("connection closed", "err", err)
			case errors.Is(err, os.ErrDeadlineExceeded):
				sess.logger.Info("handshake timed out")
			default:
				// oversized frame or transport failure: framing is lost
				sess.logger.Warn("read failed", "kind", KindConnectionLost, "err", err)
			}
			return
		}
		s.dispatch(sess, pkt)
	}
}

// teardown releases everything a session holds. It runs exactly once, when
// the session's read loop ends.
func (s *Server) teardown(sess *Session) {
	wasActive := sess.State() == StateActive
	sess.close()
	loggedIn := s.presence.Remove(sess)
	s.metrics.ActiveConnections.Add(-1)
	s.metrics.TotalDisconnects.Add(1)

	if !loggedIn {
		sess.logger.Info("client disconnected")
		return
	}
	sess.logger.Info("client disconnected", "was_active", wasActive)
	if wasActive {
		// the server context may already be cancelled during shutdown
		s.announce(context.WithoutCancel(s.ctx), sess.Username()+" left")
	}
	s.broadcastRoster()
}

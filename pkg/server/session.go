package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/photonchat/photon/pkg/protocol"
	pb "github.com/photonchat/photon/pkg/protocol/pb"
)

// writeTimeout bounds a single frame write. A peer that misses it is
// disconnected.
const writeTimeout = 10 * time.Second

// State is the protocol state of a session.
type State int32

const (
	StateConnecting State = iota
	StateAwaitingReady
	StateActive
	StateClosed
)

func (st State) String() string {
	switch st {
	case StateConnecting:
		return "connecting"
	case StateAwaitingReady:
		return "awaiting_ready"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one client connection.
type Session struct {
	ID         string
	RemoteAddr string

	conn    net.Conn
	maxSize int
	logger  *slog.Logger

	writeMu sync.Mutex // serializes frames to conn
	state   atomic.Int32

	// replayedThrough is the newest message id sent in the history replay.
	// Guarded by writeMu.
	replayedThrough int64

	identMu  sync.RWMutex
	userID   int64
	username string
	isAdmin  bool

	closeOnce sync.Once
}

func newSession(conn net.Conn, maxSize int, logger *slog.Logger) *Session {
	id := uuid.NewString()
	remote := conn.RemoteAddr().String()
	return &Session{
		ID:         id,
		RemoteAddr: remote,
		conn:       conn,
		maxSize:    maxSize,
		logger:     logger.With("conn", id, "remote", remote),
	}
}

// State returns the current protocol state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Username returns the logged-in name, or "" before login.
func (s *Session) Username() string {
	s.identMu.RLock()
	defer s.identMu.RUnlock()
	return s.username
}

// UserID returns the logged-in user id, or 0 before login.
func (s *Session) UserID() int64 {
	s.identMu.RLock()
	defer s.identMu.RUnlock()
	return s.userID
}

// IsAdmin reports the admin flag captured at login.
func (s *Session) IsAdmin() bool {
	s.identMu.RLock()
	defer s.identMu.RUnlock()
	return s.isAdmin
}

func (s *Session) bind(userID int64, name string, admin bool) {
	s.identMu.Lock()
	s.userID = userID
	s.username = name
	s.isAdmin = admin
	s.identMu.Unlock()
	s.logger = s.logger.With("user", name)
}

// Send writes one packet to the peer.
func (s *Session) Send(pkt *pb.Packet) error {
	data, err := protocol.Encode(pkt)
	if err != nil {
		return err
	}
	return s.sendFrame(data)
}

func (s *Session) sendFrame(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeFrameLocked(data)
}

// sendMessageFrame writes an encoded MESSAGE packet unless the history
// replay already carried message id.
func (s *Session) sendMessageFrame(data []byte, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if id != 0 && id <= s.replayedThrough {
		return nil
	}
	return s.writeFrameLocked(data)
}

// writeFrameLocked requires writeMu. A failed write may have left a partial
// frame on the wire, so the session is closed; an oversized frame is
// rejected before anything is written and leaves it open.
func (s *Session) writeFrameLocked(data []byte) error {
	if s.State() == StateClosed {
		return net.ErrClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := protocol.WriteFrame(s.conn, data, s.maxSize)
	if err != nil && !errors.Is(err, protocol.ErrTooLarge) {
		s.close()
	}
	return err
}

// reply sends pkt and logs, rather than returns, a write failure: the read
// side notices a dead peer on its own.
func (s *Session) reply(pkt *pb.Packet) {
	if err := s.Send(pkt); err != nil {
		s.logger.Debug("reply write failed", "type", pkt.Type, "err", err)
	}
}

// fail reports a session-local fault to the peer and the log.
func (s *Session) fail(request pb.Type, e *Error) {
	level := slog.LevelInfo
	if e.Kind == KindStorage {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "request failed", "op", e.Op, "kind", e.Kind, "code", e.Code, "err", e.Err)
	s.reply(e.packet(request))
}

func (s *Session) read() (*pb.Packet, error) {
	return protocol.ReadPacket(s.conn, s.maxSize)
}

// close shuts the connection once; later calls are no-ops.
func (s *Session) close() bool {
	closed := false
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		_ = s.conn.Close()
		closed = true
	})
	return closed
}

// isDisconnect reports whether a read error means the peer is gone rather
// than that it sent garbage.
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}

package server

import (
	"context"
	"errors"
	"time"

	"github.com/photonchat/photon/pkg/datastore"
	"github.com/photonchat/photon/pkg/model"
	"github.com/photonchat/photon/pkg/protocol"
	pb "github.com/photonchat/photon/pkg/protocol/pb"
)

// handleHandshake serves a session that has not logged in yet. It accepts
// REGISTER and LOGIN until a login succeeds.
func (s *Server) handleHandshake(ctx context.Context, sess *Session, pkt *pb.Packet) *Error {
	switch pkt.Type {
	case pb.TypeRegister:
		return s.handleRegister(ctx, sess, pkt.Credentials)
	case pb.TypeLogin:
		return s.handleLogin(ctx, sess, pkt.Credentials)
	default:
		return protocolError(CodeUnexpectedPacket, string(pkt.Type), "%s is not allowed before login", pkt.Type)
	}
}

func (s *Server) handleRegister(ctx context.Context, sess *Session, creds *pb.Credentials) *Error {
	const op = "REGISTER"
	if creds == nil || creds.PasswordHash == "" {
		return protocolError(CodeMalformed, op, "missing credentials")
	}
	if err := model.ValidateUsername(creds.Username); err != nil {
		return newError(KindProtocol, CodeInvalidUsername, op, err)
	}

	resp := pb.New(pb.TypeRegisterResponse)
	_, err := s.store.AddUser(ctx, creds.Username, creds.PasswordHash)
	switch {
	case err == nil:
		s.metrics.Registrations.Add(1)
		sess.logger.Info("user registered", "name", creds.Username)
		resp.Result = &pb.Result{Success: true}
	case errors.Is(err, datastore.ErrUserExists):
		sess.logger.Info("registration rejected", "name", creds.Username, "code", CodeDuplicateUser)
		resp.Result = &pb.Result{Error: string(CodeDuplicateUser)}
	default:
		return storageError(op, err)
	}
	sess.reply(resp)
	return nil
}

func (s *Server) handleLogin(ctx context.Context, sess *Session, creds *pb.Credentials) *Error {
	const op = "LOGIN"
	if creds == nil {
		return protocolError(CodeMalformed, op, "missing credentials")
	}
	reject := func(code Code) *Error {
		s.metrics.FailedAuths.Add(1)
		sess.logger.Info("login failed", "name", creds.Username, "code", code)
		resp := pb.New(pb.TypeLoginResponse)
		resp.LoginResult = &pb.LoginResult{Error: string(code)}
		sess.reply(resp)
		return nil
	}

	if s.presence.IsOnline(creds.Username) {
		return reject(CodeAlreadyLoggedIn)
	}
	res, err := s.auth.QueryLogin(ctx, creds.Username, creds.PasswordHash)
	if err != nil {
		return storageError(op, err)
	}
	if !res.Valid {
		return reject(CodeInvalidCredentials)
	}
	// a concurrent login may have won since the IsOnline check
	if err := s.presence.Claim(sess, creds.Username); err != nil {
		return reject(CodeAlreadyLoggedIn)
	}

	sess.bind(res.UserID, creds.Username, res.IsAdmin)
	sess.setState(StateAwaitingReady)
	_ = sess.conn.SetReadDeadline(time.Time{})
	s.metrics.SuccessfulAuths.Add(1)
	sess.logger.Info("client authenticated", "user_id", res.UserID, "admin", res.IsAdmin)

	resp := pb.New(pb.TypeLoginResponse)
	resp.LoginResult = &pb.LoginResult{Success: true, UserID: res.UserID, Admin: res.IsAdmin}
	sess.reply(resp)
	s.broadcastRoster()
	return nil
}

// handleReady activates the session and replays history. The write lock is
// held from activation until the history is written, so broadcasts that see
// the session as Active are queued behind the replay. A message committed
// before the scan is in the replay and its broadcast is dropped for this
// session.
func (s *Server) handleReady(ctx context.Context, sess *Session) *Error {
	sess.writeMu.Lock()
	sess.setState(StateActive)
	history := selectHistory(s.store.HistoryBackward(), sess.UserID(), s.historyBudget())
	if n := len(history); n > 0 {
		sess.replayedThrough = history[n-1].ID
	}
	pkt := pb.New(pb.TypeMessageList)
	pkt.Messages = history
	data, err := protocol.Encode(pkt)
	if err == nil {
		err = sess.writeFrameLocked(data)
	}
	sess.writeMu.Unlock()
	if err != nil {
		sess.logger.Debug("history write failed", "err", err)
	}
	s.metrics.HistoryReplays.Add(1)
	sess.logger.Info("session active", "history", len(history))

	s.announce(ctx, sess.Username()+" joined")
	s.broadcastRoster()
	return nil
}

// announce persists and broadcasts a public notice from the system user.
func (s *Server) announce(ctx context.Context, text string) {
	msg := model.NewSystemMessage(text, s.now().UTC())
	if err := s.store.AddMessage(ctx, msg); err != nil {
		s.logger.Warn("system message not stored", "text", text, "err", err)
		return
	}
	pkt := pb.New(pb.TypeMessage)
	pkt.Message = msg
	s.presence.Broadcast(pkt)
}

func (s *Server) broadcastRoster() {
	pkt := pb.New(pb.TypeOnlineUsers)
	pkt.Users = s.presence.Roster()
	s.presence.Broadcast(pkt)
}

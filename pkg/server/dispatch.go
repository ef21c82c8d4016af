package server

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/photonchat/photon/pkg/datastore"
	"github.com/photonchat/photon/pkg/model"
	pb "github.com/photonchat/photon/pkg/protocol/pb"
	"github.com/photonchat/photon/pkg/rbac"
)

// dispatch routes one packet according to the session state. It runs on the
// session's own goroutine, so packets from one client are handled in order.
func (s *Server) dispatch(sess *Session, pkt *pb.Packet) {
	state := sess.State()
	ctx, span := s.tracer.Start(s.ctx, "photon."+string(pkt.Type),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("photon.conn", sess.ID),
			attribute.String("photon.state", state.String()),
		))
	defer span.End()
	s.metrics.PacketsIn.Add(1)

	if pkt.Type == pb.TypePing {
		pong := pb.New(pb.TypePong)
		pong.Timestamp = pkt.Timestamp
		sess.reply(pong)
		return
	}

	var err *Error
	switch state {
	case StateConnecting:
		err = s.handleHandshake(ctx, sess, pkt)
	case StateAwaitingReady:
		if pkt.Type == pb.TypeReady {
			err = s.handleReady(ctx, sess)
		} else {
			err = protocolError(CodeUnexpectedPacket, string(pkt.Type), "waiting for READY, got %s", pkt.Type)
		}
	case StateActive:
		err = s.handleActive(ctx, sess, pkt)
	default:
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(err.Code))
		switch err.Kind {
		case KindProtocol:
			s.metrics.ProtocolErrors.Add(1)
		case KindStorage:
			s.metrics.StorageFaults.Add(1)
		}
		sess.fail(pkt.Type, err)
	}
}

func (s *Server) handleActive(ctx context.Context, sess *Session, pkt *pb.Packet) *Error {
	switch pkt.Type {
	case pb.TypeMessage:
		return s.handleMessage(ctx, sess, pkt.Message)
	case pb.TypeCommand:
		return s.handleCommand(ctx, sess, pkt.Command)
	case pb.TypeRequestUserList:
		return s.handleUserList(ctx, sess)
	case pb.TypeRequestUserInfo:
		return s.handleUserInfo(ctx, sess, pkt.Username)
	case pb.TypeReport:
		return s.handleReport(ctx, sess, pkt.Report)
	case pb.TypeEditMessage:
		return s.handleEdit(ctx, sess, pkt.Edit)
	case pb.TypeDeleteMessage:
		return s.handleDelete(ctx, sess, pkt.Delete)
	case pb.TypeSetAdminStatus:
		return s.handleSetAdminStatus(ctx, sess, pkt.AdminStatus)
	default:
		return protocolError(CodeUnexpectedPacket, string(pkt.Type), "%s is not valid in an active session", pkt.Type)
	}
}

func (s *Server) handleMessage(ctx context.Context, sess *Session, in *model.Message) *Error {
	const op = "MESSAGE"
	if in == nil || in.Contents == "" {
		return newError(KindProtocol, CodeInvalidContents, op, model.ErrMessageContentsEmpty)
	}
	msg := &model.Message{
		SenderID:    sess.UserID(),
		SenderName:  sess.Username(),
		Contents:    in.Contents,
		TimeSent:    s.now().UTC(),
		RecipientID: model.PublicRecipient,
		Tag:         model.TagNormal,
	}
	if err := s.store.AddMessage(ctx, msg); err != nil {
		return storageError(op, err)
	}
	s.metrics.MessagesSent.Add(1)

	pkt := pb.New(pb.TypeMessage)
	pkt.Message = msg
	s.presence.Broadcast(pkt)
	return nil
}

func (s *Server) handleUserList(ctx context.Context, sess *Session) *Error {
	const op = "REQUEST_USER_LIST"
	if e := s.requireQueryAccess(sess, op); e != nil {
		return e
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return storageError(op, err)
	}
	pkt := pb.New(pb.TypeUserList)
	pkt.UserList = users
	sess.reply(pkt)
	return nil
}

func (s *Server) handleUserInfo(ctx context.Context, sess *Session, username string) *Error {
	const op = "REQUEST_USER_INFO"
	if e := s.requireQueryAccess(sess, op); e != nil {
		return e
	}
	if username == "" {
		return protocolError(CodeMalformed, op, "missing username")
	}
	details, err := s.store.GetUserDetails(ctx, username)
	if err != nil {
		return storageError(op, err)
	}
	pkt := pb.New(pb.TypeUserInfo)
	pkt.UserInfo = details
	sess.reply(pkt)
	return nil
}

func (s *Server) requireQueryAccess(sess *Session, op string) *Error {
	if !s.cfg.RestrictAdminQueries {
		return nil
	}
	if msg := rbac.RequirePermission(sess.IsAdmin(), model.PermQueryUsers); msg != "" {
		return forbidden(op, msg)
	}
	return nil
}

func (s *Server) handleReport(ctx context.Context, sess *Session, req *pb.Report) *Error {
	const op = "REPORT"
	if req == nil {
		return protocolError(CodeMalformed, op, "missing report body")
	}
	msg, err := s.store.MessageByID(ctx, req.MessageID)
	if err != nil {
		return storageError(op, err)
	}
	r := &model.Report{
		ReportedUserID: msg.SenderID,
		MessageID:      msg.ID,
		ReporterID:     sess.UserID(),
		Reason:         sanitizeText(req.Reason),
	}
	if err := s.store.AddReport(ctx, r); err != nil {
		return storageError(op, err)
	}
	s.metrics.ReportsFiled.Add(1)
	sess.logger.Info("message reported", "message_id", msg.ID, "reported_user_id", msg.SenderID, "reason", r.Reason)
	return nil
}

func (s *Server) handleEdit(ctx context.Context, sess *Session, req *pb.EditMessage) *Error {
	const op = "EDIT_MESSAGE"
	if req == nil {
		return protocolError(CodeMalformed, op, "missing edit body")
	}
	if req.NewContents == "" {
		return newError(KindProtocol, CodeInvalidContents, op, model.ErrMessageContentsEmpty)
	}
	msg, err := s.store.MessageByID(ctx, req.MessageID)
	if err != nil {
		return storageError(op, err)
	}
	if msg.IsTombstone() {
		return storageError(op, datastore.ErrMessageDeleted)
	}
	if !rbac.CanModifyMessage(sess.UserID(), sess.IsAdmin(), msg, model.PermEditAnyMessage) {
		return forbidden(op, "only the author or an admin may edit this message")
	}
	if _, err := s.store.EditMessage(ctx, req.MessageID, req.NewContents); err != nil {
		return storageError(op, err)
	}
	s.metrics.MessagesEdited.Add(1)
	sess.logger.Info("message edited", "message_id", req.MessageID, "author_id", msg.SenderID)

	pkt := pb.New(pb.TypeEditMessage)
	pkt.Edit = &pb.EditMessage{MessageID: req.MessageID, NewContents: req.NewContents}
	s.presence.Broadcast(pkt)
	return nil
}

func (s *Server) handleDelete(ctx context.Context, sess *Session, req *pb.DeleteMessage) *Error {
	const op = "DELETE_MESSAGE"
	if req == nil {
		return protocolError(CodeMalformed, op, "missing delete body")
	}
	msg, err := s.store.MessageByID(ctx, req.MessageID)
	if err != nil {
		return storageError(op, err)
	}
	if msg.IsTombstone() {
		return nil
	}
	if !rbac.CanModifyMessage(sess.UserID(), sess.IsAdmin(), msg, model.PermDeleteAnyMessage) {
		return forbidden(op, "only the author or an admin may delete this message")
	}
	changed, err := s.store.DeleteMessage(ctx, req.MessageID)
	if err != nil {
		return storageError(op, err)
	}
	if !changed {
		return nil
	}
	s.metrics.MessagesDeleted.Add(1)
	sess.logger.Info("message deleted", "message_id", req.MessageID, "author_id", msg.SenderID)

	pkt := pb.New(pb.TypeDeleteMessage)
	pkt.Delete = &pb.DeleteMessage{MessageID: req.MessageID}
	s.presence.Broadcast(pkt)
	return nil
}

func (s *Server) handleSetAdminStatus(ctx context.Context, sess *Session, req *pb.AdminStatus) *Error {
	const op = "SET_ADMIN_STATUS"
	if req == nil {
		return protocolError(CodeMalformed, op, "missing admin status body")
	}
	if msg := rbac.RequirePermission(sess.IsAdmin(), model.PermSetAdminStatus); msg != "" {
		return forbidden(op, msg)
	}
	if err := s.store.SetAdminStatus(ctx, req.UserID, req.Admin); err != nil {
		return storageError(op, err)
	}
	sess.logger.Info("admin status changed", "target_user_id", req.UserID, "admin", req.Admin)
	return nil
}

func forbidden(op, msg string) *Error {
	return newError(KindForbidden, CodeForbidden, op, errors.New(msg))
}

// sanitizeText strips control characters from user-supplied text that ends
// up in logs and moderator views.
func sanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

package server

import (
	"context"
	"strings"

	"github.com/photonchat/photon/pkg/model"
	pb "github.com/photonchat/photon/pkg/protocol/pb"
)

const helpText = `Commands:
  /help                     show this help
  /markup                   show message formatting help
  /ping                     check the connection
  /whisper <user> <text>    send a private message to an online user`

const markupText = `Formatting:
  *bold*  _italic_  ~strikethrough~  ` + "`code`"

// handleCommand runs a slash command. Every outcome, including failures, is
// reported to the issuer as a COMMAND_RESPONSE.
func (s *Server) handleCommand(ctx context.Context, sess *Session, cmd *pb.Command) *Error {
	if cmd == nil {
		return protocolError(CodeMalformed, "COMMAND", "missing command body")
	}
	name := strings.TrimPrefix(strings.TrimSpace(cmd.Name), "/")
	s.metrics.CommandsRun.Add(1)
	sess.logger.Info("command", "name", name, "args", len(cmd.Args))

	resp := &pb.CommandResponse{Command: name, Timestamp: s.now().UnixMilli()}
	switch name {
	case "help":
		resp.Success, resp.Payload = true, helpText
	case "markup":
		resp.Success, resp.Payload = true, markupText
	case "ping":
		resp.Success, resp.Payload = true, "pong"
	case "whisper":
		return s.whisper(ctx, sess, cmd.Args, resp)
	default:
		resp.Error = string(CodeUnrecognisedCommand)
	}
	sess.reply(commandResponsePacket(resp))
	return nil
}

// whisper sends a direct message to an online user. The message and the
// command response go to the sender and the target only.
func (s *Server) whisper(ctx context.Context, sess *Session, args []string, resp *pb.CommandResponse) *Error {
	if len(args) < 2 || strings.TrimSpace(strings.Join(args[1:], " ")) == "" {
		resp.Error = string(CodeMissingArguments)
		sess.reply(commandResponsePacket(resp))
		return nil
	}
	targetName := args[0]
	target, ok := s.presence.Lookup(targetName)
	if !ok {
		resp.Error = string(CodeUnknownUser)
		sess.reply(commandResponsePacket(resp))
		return nil
	}

	msg := &model.Message{
		SenderID:    sess.UserID(),
		SenderName:  sess.Username(),
		Contents:    strings.Join(args[1:], " "),
		TimeSent:    s.now().UTC(),
		RecipientID: target.UserID(),
		Tag:         model.TagWhisper,
	}
	if err := s.store.AddMessage(ctx, msg); err != nil {
		return storageError("whisper", err)
	}
	s.metrics.WhispersSent.Add(1)

	resp.Success = true
	msgPkt := pb.New(pb.TypeMessage)
	msgPkt.Message = msg
	s.presence.SendTo(msgPkt, sess.Username(), targetName)
	s.presence.SendTo(commandResponsePacket(resp), sess.Username(), targetName)
	return nil
}

func commandResponsePacket(resp *pb.CommandResponse) *pb.Packet {
	pkt := pb.New(pb.TypeCommandResponse)
	pkt.CommandResponse = resp
	return pkt
}

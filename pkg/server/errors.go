package server

import (
	"errors"
	"fmt"

	"github.com/photonchat/photon/pkg/datastore"
	"github.com/photonchat/photon/pkg/model"
	pb "github.com/photonchat/photon/pkg/protocol/pb"
)

// Kind classifies a fault by who caused it and how it is reported.
type Kind string

const (
	KindProtocol       Kind = "ProtocolError"
	KindAuth           Kind = "AuthError"
	KindCommand        Kind = "CommandError"
	KindConnectionLost Kind = "ConnectionLost"
	KindStorage        Kind = "StorageFault"
	KindForbidden      Kind = "Forbidden"
)

// Code identifies a specific fault. Clients match on it.
type Code string

const (
	CodeMalformed           Code = "Malformed"
	CodeUnexpectedPacket    Code = "UnexpectedPacket"
	CodeInvalidUsername     Code = "InvalidUsername"
	CodeInvalidCredentials  Code = "InvalidCredentials"
	CodeDuplicateUser       Code = "DuplicateUser"
	CodeAlreadyLoggedIn     Code = "AlreadyLoggedIn"
	CodeUnknownUser         Code = "UnknownUser"
	CodeUnknownMessage      Code = "UnknownMessage"
	CodeUnrecognisedCommand Code = "UnrecognisedCommand"
	CodeMissingArguments    Code = "MissingArguments"
	CodeInvalidContents     Code = "InvalidContents"
	CodeForbidden           Code = "Forbidden"
	CodeQueueFull           Code = "QueueFull"
	CodeStorage             Code = "StorageFailure"
	CodeConnectionLost      Code = "ConnectionLost"
)

// Error is a fault raised while serving one session. It never affects other
// sessions or the listener.
type Error struct {
	Kind Kind
	Code Code
	Op   string // packet type or command that failed
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Code, so callers can test against the
// sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidCredentials  = &Error{Kind: KindAuth, Code: CodeInvalidCredentials}
	ErrDuplicateUser       = &Error{Kind: KindAuth, Code: CodeDuplicateUser}
	ErrAlreadyLoggedIn     = &Error{Kind: KindAuth, Code: CodeAlreadyLoggedIn}
	ErrUnknownUser         = &Error{Kind: KindCommand, Code: CodeUnknownUser}
	ErrUnrecognisedCommand = &Error{Kind: KindCommand, Code: CodeUnrecognisedCommand}
	ErrForbidden           = &Error{Kind: KindForbidden, Code: CodeForbidden}
)

func newError(kind Kind, code Code, op string, err error) *Error {
	return &Error{Kind: kind, Code: code, Op: op, Err: err}
}

func protocolError(code Code, op string, format string, args ...any) *Error {
	return newError(KindProtocol, code, op, fmt.Errorf(format, args...))
}

// storageError maps datastore failures onto the session error taxonomy.
func storageError(op string, err error) *Error {
	switch {
	case errors.Is(err, datastore.ErrQueueFull):
		return newError(KindStorage, CodeQueueFull, op, err)
	case errors.Is(err, datastore.ErrUserExists):
		return newError(KindAuth, CodeDuplicateUser, op, err)
	case errors.Is(err, datastore.ErrUserNotFound):
		return newError(KindCommand, CodeUnknownUser, op, err)
	case errors.Is(err, datastore.ErrMessageNotFound), errors.Is(err, datastore.ErrMessageDeleted):
		return newError(KindCommand, CodeUnknownMessage, op, err)
	case errors.Is(err, model.ErrMessageContentsEmpty):
		return newError(KindProtocol, CodeInvalidContents, op, err)
	default:
		return newError(KindStorage, CodeStorage, op, err)
	}
}

// packet renders the fault as an ERROR packet answering request.
func (e *Error) packet(request pb.Type) *pb.Packet {
	pkt := pb.New(pb.TypeError)
	pkt.Error = &pb.Error{
		Kind:    string(e.Kind),
		Code:    string(e.Code),
		Message: e.publicMessage(),
		Request: request,
	}
	return pkt
}

// publicMessage hides storage internals from clients.
func (e *Error) publicMessage() string {
	switch {
	case e.Kind == KindStorage:
		return "the server could not complete the request"
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code)
	}
}

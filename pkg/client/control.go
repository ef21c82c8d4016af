// Package client implements a Photon chat client.
//
// A Client owns one connection, runs a receive loop and reports server
// events through the callbacks in Handler. Handshake calls (Register, Login)
// block until the server answers; everything else is fire-and-forget with
// results delivered as events.
package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/photonchat/photon/pkg/model"
	"github.com/photonchat/photon/pkg/protocol"
	pb "github.com/photonchat/photon/pkg/protocol/pb"
	"github.com/photonchat/photon/pkg/transport"
)

// Handler receives server events. Nil callbacks are skipped. Callbacks run
// on the receive goroutine and must not block for long.
type Handler struct {
	OnMessage         func(msg model.Message)
	OnHistory         func(msgs []model.Message)
	OnRosterChanged   func(users []string)
	OnCommandResponse func(resp pb.CommandResponse)
	OnMessageEdited   func(id int64, contents string)
	OnMessageDeleted  func(id int64)
	OnUserList        func(users []model.UserSummary)
	OnUserInfo        func(info model.UserDetails)
	OnError           func(err *ServerError)
	OnConnectionLost  func(err error)
}

// ServerError is an error reported by the server.
type ServerError struct {
	Kind    string
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" && e.Message != e.Code {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.Message)
	}
	return e.Kind + ": " + e.Code
}

// ErrConnectionLost is returned by blocking calls once the connection is gone.
var ErrConnectionLost = errors.New("client: connection lost")

// LoginInfo describes the account a login bound to.
type LoginInfo struct {
	UserID int64
	Admin  bool
}

// Client is a connection to a Photon server.
type Client struct {
	conn    net.Conn
	maxSize int
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex // serializes writes
	replies chan *pb.Packet
	done    chan struct{}
	err     error // set before done is closed
}

// Dial connects over TCP.
func Dial(ctx context.Context, addr string, h Handler) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	return New(conn, h), nil
}

// DialWebSocket connects to a server's /ws endpoint.
func DialWebSocket(ctx context.Context, url string, h Handler) (*Client, error) {
	conn, err := transport.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("client: connect websocket: %w", err)
	}
	return New(conn, h), nil
}

// New starts a client on an established connection.
func New(conn net.Conn, h Handler) *Client {
	c := &Client{
		conn:    conn,
		maxSize: protocol.DefaultMaxPacketSize,
		handler: h,
		logger:  slog.Default().With("component", "client"),
		replies: make(chan *pb.Packet, 1),
		done:    make(chan struct{}),
	}
	go c.receive()
	return c
}

// HashPassword derives the credential sent to the server, so the plaintext
// password never leaves the client.
func HashPassword(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

// Send writes one packet to the server.
func (c *Client) Send(pkt *pb.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WritePacket(c.conn, pkt, c.maxSize)
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, passwordHash string) error {
	pkt := pb.New(pb.TypeRegister)
	pkt.Credentials = &pb.Credentials{Username: username, PasswordHash: passwordHash}
	resp, err := c.roundTrip(ctx, pkt)
	if err != nil {
		return err
	}
	if resp.Result == nil {
		return fmt.Errorf("client: unexpected %s reply to REGISTER", resp.Type)
	}
	if !resp.Result.Success {
		return &ServerError{Kind: "AuthError", Code: resp.Result.Error}
	}
	return nil
}

// Login authenticates the connection. Call Ready afterwards to receive history.
func (c *Client) Login(ctx context.Context, username, passwordHash string) (LoginInfo, error) {
	pkt := pb.New(pb.TypeLogin)
	pkt.Credentials = &pb.Credentials{Username: username, PasswordHash: passwordHash}
	resp, err := c.roundTrip(ctx, pkt)
	if err != nil {
		return LoginInfo{}, err
	}
	if resp.LoginResult == nil {
		return LoginInfo{}, fmt.Errorf("client: unexpected %s reply to LOGIN", resp.Type)
	}
	if !resp.LoginResult.Success {
		return LoginInfo{}, &ServerError{Kind: "AuthError", Code: resp.LoginResult.Error}
	}
	return LoginInfo{UserID: resp.LoginResult.UserID, Admin: resp.LoginResult.Admin}, nil
}

func (c *Client) roundTrip(ctx context.Context, pkt *pb.Packet) (*pb.Packet, error) {
	if err := c.Send(pkt); err != nil {
		return nil, fmt.Errorf("client: send %s: %w", pkt.Type, err)
	}
	select {
	case resp := <-c.replies:
		if resp.Error != nil {
			return nil, serverError(resp.Error)
		}
		return resp, nil
	case <-c.done:
		return nil, ErrConnectionLost
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready asks the server to start the session and replay history.
func (c *Client) Ready() error {
	return c.Send(pb.New(pb.TypeReady))
}

// SendMessage posts a public message.
func (c *Client) SendMessage(contents string) error {
	pkt := pb.New(pb.TypeMessage)
	pkt.Message = &model.Message{Contents: contents}
	return c.Send(pkt)
}

// Command runs a slash command, e.g. Command("whisper", "bob", "hi").
func (c *Client) Command(name string, args ...string) error {
	pkt := pb.New(pb.TypeCommand)
	pkt.Command = &pb.Command{Name: name, Args: args}
	return c.Send(pkt)
}

// Edit replaces the contents of a message.
func (c *Client) Edit(messageID int64, contents string) error {
	pkt := pb.New(pb.TypeEditMessage)
	pkt.Edit = &pb.EditMessage{MessageID: messageID, NewContents: contents}
	return c.Send(pkt)
}

// Delete removes a message.
func (c *Client) Delete(messageID int64) error {
	pkt := pb.New(pb.TypeDeleteMessage)
	pkt.Delete = &pb.DeleteMessage{MessageID: messageID}
	return c.Send(pkt)
}

// Report flags a message for moderators.
func (c *Client) Report(messageID int64, reason string) error {
	pkt := pb.New(pb.TypeReport)
	pkt.Report = &pb.Report{MessageID: messageID, Reason: reason}
	return c.Send(pkt)
}

// RequestUserList asks for all accounts; the answer arrives via OnUserList.
func (c *Client) RequestUserList() error {
	return c.Send(pb.New(pb.TypeRequestUserList))
}

// RequestUserInfo asks for one user's details; the answer arrives via OnUserInfo.
func (c *Client) RequestUserInfo(username string) error {
	pkt := pb.New(pb.TypeRequestUserInfo)
	pkt.Username = username
	return c.Send(pkt)
}

// SetAdminStatus grants or revokes admin rights. The target must log in
// again for it to take effect.
func (c *Client) SetAdminStatus(userID int64, admin bool) error {
	pkt := pb.New(pb.TypeSetAdminStatus)
	pkt.AdminStatus = &pb.AdminStatus{UserID: userID, Admin: admin}
	return c.Send(pkt)
}

// Ping sends a keepalive; the server answers with PONG.
func (c *Client) Ping() error {
	pkt := pb.New(pb.TypePing)
	pkt.Timestamp = time.Now().UnixMilli()
	return c.Send(pkt)
}

// Close closes the connection. OnConnectionLost is not called for a local close.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

// Done returns a channel that's closed when the connection is lost.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, once Done is closed.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

func (c *Client) receive() {
	var err error
	defer func() {
		c.err = err
		close(c.done)
	}()
	for {
		var pkt *pb.Packet
		pkt, err = protocol.ReadPacket(c.conn, c.maxSize)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				c.logger.Warn("dropping malformed packet", "err", err)
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				c.logger.Debug("connection closed locally")
				return
			}
			if errors.Is(err, io.EOF) {
				err = ErrConnectionLost
			}
			c.logger.Debug("connection lost", "err", err)
			if c.handler.OnConnectionLost != nil {
				c.handler.OnConnectionLost(err)
			}
			return
		}
		c.handle(pkt)
	}
}

func (c *Client) handle(pkt *pb.Packet) {
	h := c.handler
	switch pkt.Type {
	case pb.TypeRegisterResponse, pb.TypeLoginResponse:
		c.deliverReply(pkt)
	case pb.TypeError:
		if pkt.Error != nil && (pkt.Error.Request == pb.TypeRegister || pkt.Error.Request == pb.TypeLogin) {
			c.deliverReply(pkt)
			return
		}
		if h.OnError != nil && pkt.Error != nil {
			h.OnError(serverError(pkt.Error))
		}
	case pb.TypeMessage:
		if h.OnMessage != nil && pkt.Message != nil {
			h.OnMessage(*pkt.Message)
		}
	case pb.TypeMessageList:
		if h.OnHistory != nil {
			msgs := make([]model.Message, 0, len(pkt.Messages))
			for _, m := range pkt.Messages {
				msgs = append(msgs, *m)
			}
			h.OnHistory(msgs)
		}
	case pb.TypeOnlineUsers:
		if h.OnRosterChanged != nil {
			h.OnRosterChanged(pkt.Users)
		}
	case pb.TypeCommandResponse:
		if h.OnCommandResponse != nil && pkt.CommandResponse != nil {
			h.OnCommandResponse(*pkt.CommandResponse)
		}
	case pb.TypeEditMessage:
		if h.OnMessageEdited != nil && pkt.Edit != nil {
			h.OnMessageEdited(pkt.Edit.MessageID, pkt.Edit.NewContents)
		}
	case pb.TypeDeleteMessage:
		if h.OnMessageDeleted != nil && pkt.Delete != nil {
			h.OnMessageDeleted(pkt.Delete.MessageID)
		}
	case pb.TypeUserList:
		if h.OnUserList != nil {
			h.OnUserList(pkt.UserList)
		}
	case pb.TypeUserInfo:
		if h.OnUserInfo != nil && pkt.UserInfo != nil {
			h.OnUserInfo(*pkt.UserInfo)
		}
	case pb.TypePong:
	default:
		c.logger.Debug("ignoring packet", "type", pkt.Type)
	}
}

// deliverReply hands a handshake answer to the waiting call. Unsolicited
// replies are dropped.
func (c *Client) deliverReply(pkt *pb.Packet) {
	select {
	case c.replies <- pkt:
	default:
		c.logger.Debug("dropping unsolicited reply", "type", pkt.Type)
	}
}

func serverError(e *pb.Error) *ServerError {
	return &ServerError{Kind: e.Kind, Code: e.Code, Message: e.Message}
}

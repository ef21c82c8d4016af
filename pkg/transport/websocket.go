// Package transport carries the framed Photon protocol over WebSocket.
//
// A Conn adapts a *websocket.Conn to net.Conn so sessions and clients can use
// the same code for TCP and WebSocket peers. Each Write becomes one binary
// WebSocket message; reads span message boundaries transparently.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a net.Conn over a WebSocket connection.
type Conn struct {
	ws *websocket.Conn

	readMu sync.Mutex
	reader io.Reader // current message, nil between messages

	writeMu sync.Mutex
}

var _ net.Conn = (*Conn)(nil)

// NewConn wraps ws.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	for {
		if c.reader == nil {
			typ, r, err := c.ws.NextReader()
			if err != nil {
				return 0, mapCloseError(err)
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, mapCloseError(err)
	}
	return len(p), nil
}

// Close sends a close frame and closes the underlying connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Conn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

// mapCloseError turns a normal WebSocket close into io.EOF so callers treat
// it like a TCP hangup.
func mapCloseError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return io.EOF
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return io.ErrUnexpectedEOF
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return net.ErrClosed
	}
	return err
}

// Upgrader accepts WebSocket connections for the chat protocol.
type Upgrader struct {
	upgrader  websocket.Upgrader
	readLimit int64
}

// NewUpgrader creates an upgrader accepting messages of up to maxMessageSize
// bytes. A nil checkOrigin allows same-origin requests only.
func NewUpgrader(maxMessageSize int, checkOrigin func(*http.Request) bool) *Upgrader {
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		readLimit: int64(maxMessageSize),
	}
}

// Upgrade upgrades the HTTP request and returns the connection as a net.Conn.
// On failure the upgrader has already written an HTTP error response.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	if u.readLimit > 0 {
		ws.SetReadLimit(u.readLimit)
	}
	return NewConn(ws), nil
}

// Dial connects to a chat server's WebSocket endpoint, e.g. ws://host:9602/ws.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(ws), nil
}

package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/photonchat/photon/pkg/client"
	"github.com/photonchat/photon/pkg/crypto"
	"github.com/photonchat/photon/pkg/datastore"
	"github.com/photonchat/photon/pkg/model"
	pb "github.com/photonchat/photon/pkg/protocol/pb"
	"github.com/photonchat/photon/pkg/server"
)

func startServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	st, err := datastore.Open(filepath.Join(t.TempDir(), "chat.db"), datastore.Options{
		PasswordParams: crypto.Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cfg := server.DefaultConfig()
	cfg.HTTPAddr = ""
	srv := server.New(cfg, server.Dependencies{Store: st, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() {
		_ = ln.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv, ln.Addr().String()
}

// events records callbacks on channels so tests can wait for them.
type events struct {
	messages chan model.Message
	history  chan []model.Message
	roster   chan []string
	commands chan pb.CommandResponse
	edited   chan int64
	deleted  chan int64
	users    chan []model.UserSummary
	errs     chan *client.ServerError
	lost     chan error
}

func newEvents() *events {
	return &events{
		messages: make(chan model.Message, 64),
		history:  make(chan []model.Message, 4),
		roster:   make(chan []string, 64),
		commands: make(chan pb.CommandResponse, 16),
		edited:   make(chan int64, 16),
		deleted:  make(chan int64, 16),
		users:    make(chan []model.UserSummary, 4),
		errs:     make(chan *client.ServerError, 16),
		lost:     make(chan error, 1),
	}
}

func (e *events) handler() client.Handler {
	return client.Handler{
		OnMessage:         func(m model.Message) { e.messages <- m },
		OnHistory:         func(m []model.Message) { e.history <- m },
		OnRosterChanged:   func(u []string) { e.roster <- u },
		OnCommandResponse: func(r pb.CommandResponse) { e.commands <- r },
		OnMessageEdited:   func(id int64, _ string) { e.edited <- id },
		OnMessageDeleted:  func(id int64) { e.deleted <- id },
		OnUserList:        func(u []model.UserSummary) { e.users <- u },
		OnError:           func(err *client.ServerError) { e.errs <- err },
		OnConnectionLost:  func(err error) { e.lost <- err },
	}
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func waitMessage(t *testing.T, ev *events, contents string) model.Message {
	t.Helper()
	for {
		m := recv(t, ev.messages, "message "+contents)
		if m.Contents == contents {
			return m
		}
	}
}

func join(t *testing.T, c *client.Client, ev *events, name string) []model.Message {
	t.Helper()
	ctx := context.Background()
	hash := client.HashPassword(name, "secret")
	if err := c.Register(ctx, name, hash); err != nil {
		t.Fatalf("Register %s: %v", name, err)
	}
	if _, err := c.Login(ctx, name, hash); err != nil {
		t.Fatalf("Login %s: %v", name, err)
	}
	if err := c.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	return recv(t, ev.history, "history")
}

func dial(t *testing.T, addr string) (*client.Client, *events) {
	t.Helper()
	ev := newEvents()
	c, err := client.Dial(context.Background(), addr, ev.handler())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, ev
}

func TestHandshakeErrors(t *testing.T) {
	_, addr := startServer(t)
	c, _ := dial(t, addr)
	ctx := context.Background()

	hash := client.HashPassword("alice", "secret")
	if err := c.Register(ctx, "alice", hash); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var se *client.ServerError
	err := c.Register(ctx, "alice", hash)
	if !errors.As(err, &se) || se.Code != "DuplicateUser" {
		t.Fatalf("duplicate Register = %v", err)
	}
	err = c.Register(ctx, "not valid!", hash)
	if !errors.As(err, &se) || se.Code != "InvalidUsername" || se.Kind != "ProtocolError" {
		t.Fatalf("invalid Register = %v", err)
	}
	_, err = c.Login(ctx, "alice", client.HashPassword("alice", "wrong"))
	if !errors.As(err, &se) || se.Code != "InvalidCredentials" {
		t.Fatalf("bad Login = %v", err)
	}

	info, err := c.Login(ctx, "alice", hash)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if info.UserID == 0 || info.Admin {
		t.Fatalf("login info = %+v", info)
	}
}

func TestChatFlow(t *testing.T) {
	_, addr := startServer(t)
	alice, aev := dial(t, addr)
	join(t, alice, aev, "alice")
	bob, bev := dial(t, addr)
	join(t, bob, bev, "bob")

	for {
		if r := recv(t, aev.roster, "roster"); len(r) == 2 {
			if diff := cmp.Diff([]string{"alice", "bob"}, r); diff != "" {
				t.Fatalf("roster mismatch (-want +got):\n%s", diff)
			}
			break
		}
	}

	if err := alice.SendMessage("hello bob"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	msg := waitMessage(t, bev, "hello bob")
	if msg.SenderName != "alice" || msg.ID == 0 {
		t.Fatalf("message = %+v", msg)
	}

	if err := bob.Command("whisper", "alice", "hi"); err != nil {
		t.Fatalf("Command: %v", err)
	}
	if w := waitMessage(t, aev, "hi"); w.Tag != model.TagWhisper {
		t.Fatalf("whisper = %+v", w)
	}
	if resp := recv(t, bev.commands, "whisper response"); !resp.Success {
		t.Fatalf("whisper response = %+v", resp)
	}

	if err := alice.Edit(msg.ID, "hello, bob"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if id := recv(t, bev.edited, "edit"); id != msg.ID {
		t.Fatalf("edited id = %d, want %d", id, msg.ID)
	}

	if err := bob.Delete(msg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if se := recv(t, bev.errs, "forbidden"); se.Code != "Forbidden" {
		t.Fatalf("error = %v", se)
	}
	if err := alice.Delete(msg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if id := recv(t, bev.deleted, "delete"); id != msg.ID {
		t.Fatalf("deleted id = %d, want %d", id, msg.ID)
	}

	if err := bob.RequestUserList(); err != nil {
		t.Fatalf("RequestUserList: %v", err)
	}
	if users := recv(t, bev.users, "user list"); len(users) != 2 {
		t.Fatalf("users = %+v", users)
	}

	_ = bob.Close()
	waitMessage(t, aev, "bob left")
}

func TestConnectionLost(t *testing.T) {
	srv, addr := startServer(t)
	c, ev := dial(t, addr)
	join(t, c, ev, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	if err := recv(t, ev.lost, "connection lost"); err == nil {
		t.Fatal("OnConnectionLost called with nil error")
	}
	<-c.Done()
	if _, err := c.Login(context.Background(), "alice", "x"); err == nil {
		t.Fatal("Login after connection loss succeeded")
	}
}

func TestWebSocket(t *testing.T) {
	srv, _ := startServer(t)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ev := newEvents()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, err := client.DialWebSocket(context.Background(), url, ev.handler())
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	join(t, c, ev, "alice")
	if err := c.SendMessage("over websocket"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	waitMessage(t, ev, "over websocket")

	if err := c.Command("help"); err != nil {
		t.Fatalf("Command: %v", err)
	}
	if resp := recv(t, ev.commands, "help"); !resp.Success || resp.Payload == "" {
		t.Fatalf("help = %+v", resp)
	}
}

func TestHashPassword(t *testing.T) {
	a := client.HashPassword("alice", "secret")
	if a != client.HashPassword("alice", "secret") {
		t.Fatal("hash not deterministic")
	}
	if a == client.HashPassword("bob", "secret") {
		t.Fatal("hash ignores username")
	}
	if strings.Contains(a, "secret") {
		t.Fatal("hash contains plaintext")
	}
}
